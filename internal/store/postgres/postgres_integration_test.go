package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("SMARTPHARMA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SMARTPHARMA_TEST_DATABASE_URL to run postgres integration tests")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func insertIntegrationMedicine(t *testing.T, s *Store, stock int, price string) *domain.Medicine {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("Integration Dolo 650mg %d", time.Now().UnixNano())
	med, err := s.CreateMedicine(ctx, domain.Medicine{
		Name:         name,
		Manufacturer: "Micro Labs",
		Category:     "Painkiller",
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		ExpiryDate:   domain.DateOnly(time.Now().UTC().AddDate(1, 0, 0)),
	})
	if err != nil {
		t.Fatalf("create medicine: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE medicine_id = $1`, med.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, med.ID)
	})
	return med
}

func TestCreateSaleDeductsAndRecords(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	med := insertIntegrationMedicine(t, s, 5, "10.00")

	sales, err := s.CreateSale(ctx, []domain.CartItem{{MedicineID: med.ID, Quantity: 3}}, time.Now().UTC())
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale row, got %d", len(sales))
	}
	if !sales[0].TotalAmount.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("expected total 30, got %s", sales[0].TotalAmount)
	}

	after, err := s.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("get medicine: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", after.Stock)
	}
}

func TestCreateSaleRejectsCumulativeOverdemand(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	med := insertIntegrationMedicine(t, s, 5, "10.00")

	_, err := s.CreateSale(ctx, []domain.CartItem{
		{MedicineID: med.ID, Quantity: 3},
		{MedicineID: med.ID, Quantity: 4},
	}, time.Now().UTC())

	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.Requested != 7 || stockErr.Available != 5 {
		t.Fatalf("unexpected detail: %+v", stockErr)
	}

	after, err := s.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("get medicine: %v", err)
	}
	if after.Stock != 5 {
		t.Fatalf("stock must stay 5 after rejection, got %d", after.Stock)
	}
}

// TestCreateSaleSerializesConcurrentCarts drives two carts at the same
// medicine from separate goroutines. The row locks must force one cart to
// observe the other's deduction: with stock 5 at most one 3-unit cart may
// commit. The loser surfaces either a stock rejection or a serialization
// failure, never a second success.
func TestCreateSaleSerializesConcurrentCarts(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	med := insertIntegrationMedicine(t, s, 5, "10.00")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(ctx, []domain.CartItem{{MedicineID: med.ID, Quantity: 3}}, time.Now().UTC())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded > 1 {
		t.Fatalf("two 3-unit carts cannot both fit in stock 5, got %d successes", succeeded)
	}
	if succeeded == 0 {
		t.Fatal("at least one cart must commit")
	}

	after, err := s.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("get medicine: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("expected stock 2 after one successful cart, got %d", after.Stock)
	}
}
