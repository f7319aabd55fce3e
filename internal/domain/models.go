package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates (expiry, report dates).
const DateLayout = "2006-01-02"

// Medicine is a stocked inventory item. Price is exact decimal money and
// Stock can never go below zero. SeasonalTag is derived from Category when
// the medicine is created or edited and is otherwise left alone; it is a
// snapshot, not a live mapping.
type Medicine struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Manufacturer string          `json:"manufacturer"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	SeasonalTag  string          `json:"seasonal_tag,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Sale is one line of a completed billing transaction. TotalAmount captures
// quantity times the unit price at the moment of sale and is never
// recomputed. MedicineID is a weak reference: deleting a medicine leaves its
// sales behind, so MedicineName keeps a display snapshot.
type Sale struct {
	ID           int64           `json:"id"`
	MedicineID   int64           `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	SaleDate     time.Time       `json:"sale_date"`
}

// Supplier is reference data only; nothing in inventory or billing depends
// on it.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CartItem is one requested line of a sale. Carts are transient: they exist
// only inside a billing request and are never persisted.
type CartItem struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

// Invoice is the result of a successful billing run: one Sale per cart line
// plus the exact grand total. An empty cart produces an empty invoice with a
// zero total.
type Invoice struct {
	Number     string
	IssuedAt   time.Time
	Items      []Sale
	GrandTotal decimal.Decimal
}

type CreateMedicineRequest struct {
	Name         string  `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	ExpiryDate   string  `json:"expiry_date"`
}

// UpdateMedicineRequest carries partial updates; nil fields are left
// untouched.
type UpdateMedicineRequest struct {
	Name         *string  `json:"name,omitempty"`
	Manufacturer *string  `json:"manufacturer,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Stock        *int     `json:"stock,omitempty"`
	ExpiryDate   *string  `json:"expiry_date,omitempty"`
}

type SaleRequest struct {
	Items []CartItem `json:"items"`
}

type CreateSupplierRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

/// MedicineView is the wire shape of a medicine: float price, date-only
// expiry and the day countdown the dashboard renders.
type MedicineView struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Manufacturer    string    `json:"manufacturer"`
	Category        string    `json:"category"`
	Price           float64   `json:"price"`
	Stock           int       `json:"stock"`
	ExpiryDate      string    `json:"expiry_date"`
	SeasonalTag     string    `json:"seasonal_tag,omitempty"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	CreatedAt       time.Time `json:"created_at"`
}

type SaleView struct {
	ID           int64     `json:"id"`
	MedicineID   int64     `json:"medicine_id"`
	MedicineName string    `json:"medicine_name"`
	Quantity     int       `json:"quantity"`
	TotalAmount  float64   `json:"total_amount"`
	SaleDate     time.Time `json:"sale_date"`
}

type InvoiceResponse struct {
	InvoiceNumber string     `json:"invoice_number"`
	IssuedAt      time.Time  `json:"issued_at"`
	Items         []SaleView `json:"items"`
	ItemCount     int        `json:"item_count"`
	GrandTotal    float64    `json:"grand_total"`
}

type MedicineListResponse struct {
	Medicines []MedicineView `json:"medicines"`
	Count     int            `json:"count"`
}

type SaleListResponse struct {
	Sales []SaleView `json:"sales"`
	Count int        `json:"count"`
}

type SupplierListResponse struct {
	Suppliers []Supplier `json:"suppliers"`
	Count     int        `json:"count"`
}

type RecommendationResponse struct {
	Season          string         `json:"season"`
	Recommendations []MedicineView `json:"recommendations"`
	Count           int            `json:"count"`
}

type DashboardResponse struct {
	TotalMedicines int            `json:"total_medicines"`
	TotalStock     int            `json:"total_stock"`
	SalesToday     float64        `json:"sales_today"`
	LowStock       []MedicineView `json:"low_stock"`
	LowStockCount  int            `json:"low_stock_count"`
	ExpiringSoon   []MedicineView `json:"expiring_soon"`
	ExpiringCount  int            `json:"expiring_count"`
	Season         string         `json:"season"`
	SeasonalPicks  []MedicineView `json:"seasonal_picks"`
}

type DailyReport struct {
	Date         string            `json:"date"`
	SaleCount    int               `json:"sale_count"`
	UnitsSold    int               `json:"units_sold"`
	GrossRevenue float64           `json:"gross_revenue"`
	Lines        []DailyReportLine `json:"lines"`
}

type DailyReportLine struct {
	MedicineName string  `json:"medicine_name"`
	Quantity     int     `json:"quantity"`
	Revenue      float64 `json:"revenue"`
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntilExpiry is the whole-calendar-day distance from today to the
// expiry date. Negative means already expired.
func DaysUntilExpiry(expiry, today time.Time) int {
	return int(DateOnly(expiry).Sub(DateOnly(today)).Hours() / 24)
}

func MedicineViewFrom(m Medicine, today time.Time) MedicineView {
	return MedicineView{
		ID:              m.ID,
		Name:            m.Name,
		Manufacturer:    m.Manufacturer,
		Category:        m.Category,
		Price:           m.Price.InexactFloat64(),
		Stock:           m.Stock,
		ExpiryDate:      DateOnly(m.ExpiryDate).Format(DateLayout),
		SeasonalTag:     m.SeasonalTag,
		DaysUntilExpiry: DaysUntilExpiry(m.ExpiryDate, today),
		CreatedAt:       m.CreatedAt,
	}
}

func SaleViewFrom(s Sale) SaleView {
	name := s.MedicineName
	if name == "" {
		name = "Unknown"
	}
	return SaleView{
		ID:           s.ID,
		MedicineID:   s.MedicineID,
		MedicineName: name,
		Quantity:     s.Quantity,
		TotalAmount:  s.TotalAmount.InexactFloat64(),
		SaleDate:     s.SaleDate,
	}
}

func InvoiceResponseFrom(inv Invoice) InvoiceResponse {
	items := make([]SaleView, 0, len(inv.Items))
	for _, sale := range inv.Items {
		items = append(items, SaleViewFrom(sale))
	}
	return InvoiceResponse{
		InvoiceNumber: inv.Number,
		IssuedAt:      inv.IssuedAt,
		Items:         items,
		ItemCount:     len(items),
		GrandTotal:    inv.GrandTotal.InexactFloat64(),
	}
}
