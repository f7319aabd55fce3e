package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartpharma/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// StockError reports a billing rejection in enough detail for the caller to
// correct the cart: which medicine fell short, how much was asked for
// (summed across duplicate cart lines) and how much is actually available.
// It unwraps to ErrInsufficientStock.
type StockError struct {
	MedicineID int64  `json:"medicine_id"`
	Name       string `json:"name"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (id %d): requested %d, available %d",
		e.Name, e.MedicineID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the persistence boundary. Implementations must keep stock
// non-negative and must run CreateSale as one atomic validate-then-deduct
// step so concurrent carts against the same medicine serialize instead of
// both passing validation on stale stock.
type Repository interface {
	ListMedicines(ctx context.Context, query string) ([]domain.Medicine, error)
	ListInStock(ctx context.Context) ([]domain.Medicine, error)
	GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error)
	CreateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error)
	DeleteMedicine(ctx context.Context, id int64) error

	// CreateSale validates the whole cart cumulatively, deducts stock and
	// writes one Sale per cart line with the unit price captured at this
	// moment. Any failure leaves stock and sales untouched.
	CreateSale(ctx context.Context, items []domain.CartItem, at time.Time) ([]domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	SalesOnDate(ctx context.Context, day time.Time) ([]domain.Sale, error)

	TotalStock(ctx context.Context) (int, error)

	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, sup domain.Supplier) (*domain.Supplier, error)
}
