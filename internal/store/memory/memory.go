package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

// Store is the in-memory Repository used for tests and for running without
// a database. All returned values are copies; callers never see the backing
// maps.
type Store struct {
	mu             sync.RWMutex
	medicines      map[int64]domain.Medicine
	sales          []domain.Sale
	suppliers      map[int64]domain.Supplier
	nextMedicineID int64
	nextSaleID     int64
	nextSupplierID int64
}

func New() *Store {
	return &Store{
		medicines:      make(map[int64]domain.Medicine),
		sales:          make([]domain.Sale, 0, 64),
		suppliers:      make(map[int64]domain.Supplier),
		nextMedicineID: 1,
		nextSaleID:     1,
		nextSupplierID: 1,
	}
}

// NewSeeded returns a store preloaded with a small pharmacy catalog in every
// season bucket plus a few deliberately low-stock, near-expiry and expired
// rows, and the standard supplier list. Expiry dates are relative to now so
// the dashboard always has something to warn about.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedMedicines := []struct {
		name         string
		manufacturer string
		category     string
		price        string
		stock        int
		expiryDays   int
	}{
		{"Benadryl Cough Syrup 100ml", "Cipla", "Cough Syrup", "110.00", 85, 240},
		{"Ascoril Cough Syrup 100ml", "Glenmark", "Cough Syrup", "128.50", 7, 400},
		{"Vicks Cold Relief 10ml", "P&G", "Cold Relief", "45.00", 140, 300},
		{"Strepsils Throat Lozenges", "Reckitt", "Throat Lozenges", "40.00", 60, 25},
		{"Limcee Vitamin C 500mg", "Abbott", "Vitamin C", "25.00", 190, 520},
		{"Azithral Antibiotic 500mg", "Alkem", "Antibiotic", "119.00", 45, 365},
		{"Dettol Antiseptic 100ml", "Reckitt", "Antiseptic", "78.00", 110, 600},
		{"Candid Antifungal Cream", "Glenmark", "Antifungal", "95.00", 9, 280},
		{"Digene Antacid Syrup 200ml", "Abbott", "Antacid", "132.00", 75, 180},
		{"Electral Oral Rehydration", "FDC", "Oral Rehydration", "22.00", 200, 450},
		{"Allegra Antihistamine 120mg", "Sanofi", "Antihistamine", "185.50", 38, 330},
		{"Lacto Calamine Sunscreen", "Piramal", "Sunscreen", "250.00", 0, 500},
		{"Zyrtec Allergy Relief 10mg", "GSK", "Allergy Relief", "68.00", 55, 12},
		{"Refresh Eye Drops 10ml", "Allergan", "Eye Drops", "155.00", 30, 270},
		{"Otrivin Nasal Spray 10ml", "GSK", "Nasal Spray", "105.00", 48, 210},
		{"Dolo Painkiller 650mg", "Micro Labs", "Painkiller", "30.00", 175, 540},
		{"Crocin Painkiller 500mg", "GSK", "Painkiller", "28.50", 5, -14},
		{"Glycomet Diabetes 500mg", "USV", "Diabetes", "42.00", 90, 365},
	}

	for _, m := range seedMedicines {
		med := domain.Medicine{
			ID:           s.nextMedicineID,
			Name:         m.name,
			Manufacturer: m.manufacturer,
			Category:     m.category,
			Price:        decimal.RequireFromString(m.price),
			Stock:        m.stock,
			ExpiryDate:   domain.DateOnly(now.AddDate(0, 0, m.expiryDays)),
			SeasonalTag:  domain.SeasonForCategory(m.category),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.medicines[med.ID] = med
		s.nextMedicineID++
	}

	seedSuppliers := []domain.Supplier{
		{Name: "MedSupply Co.", Contact: "9876543210", Email: "contact@medsupply.com", Address: "Mumbai, Maharashtra"},
		{Name: "PharmaDirect Ltd.", Contact: "9876543211", Email: "info@pharmadirect.com", Address: "Delhi, NCR"},
		{Name: "HealthCare Distributors", Contact: "9876543212", Email: "sales@healthcare.com", Address: "Bangalore, Karnataka"},
		{Name: "Wellness Suppliers", Contact: "9876543213", Email: "support@wellness.com", Address: "Pune, Maharashtra"},
		{Name: "MediQuick Traders", Contact: "9876543214", Email: "orders@mediquick.com", Address: "Chennai, Tamil Nadu"},
	}
	for _, sup := range seedSuppliers {
		sup.ID = s.nextSupplierID
		sup.CreatedAt = now
		s.suppliers[sup.ID] = sup
		s.nextSupplierID++
	}

	return s
}

func (s *Store) ListMedicines(_ context.Context, query string) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	medicines := make([]domain.Medicine, 0, len(s.medicines))
	for _, med := range s.medicines {
		if needle != "" && !medicineMatches(med, needle) {
			continue
		}
		medicines = append(medicines, med)
	}

	sortMedicines(medicines)
	return medicines, nil
}

func (s *Store) ListInStock(_ context.Context) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicines := make([]domain.Medicine, 0, len(s.medicines))
	for _, med := range s.medicines {
		if med.Stock < 1 {
			continue
		}
		medicines = append(medicines, med)
	}

	sortMedicines(medicines)
	return medicines, nil
}

func (s *Store) GetMedicine(_ context.Context, id int64) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	med, exists := s.medicines[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyMed := med
	return &copyMed, nil
}

func (s *Store) CreateMedicine(_ context.Context, med domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateMedicine(med); err != nil {
		return nil, err
	}

	med.ID = s.nextMedicineID
	s.nextMedicineID++
	if med.CreatedAt.IsZero() {
		med.CreatedAt = time.Now().UTC()
	}
	if med.UpdatedAt.IsZero() {
		med.UpdatedAt = med.CreatedAt
	}

	s.medicines[med.ID] = med
	created := med
	return &created, nil
}

func (s *Store) UpdateMedicine(_ context.Context, med domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateMedicine(med); err != nil {
		return nil, err
	}
	if _, exists := s.medicines[med.ID]; !exists {
		return nil, store.ErrNotFound
	}

	if med.UpdatedAt.IsZero() {
		med.UpdatedAt = time.Now().UTC()
	}
	s.medicines[med.ID] = med
	updated := med
	return &updated, nil
}

// DeleteMedicine removes the medicine only. Historical sales keep their
// medicine_id and name snapshot and stay queryable.
func (s *Store) DeleteMedicine(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.medicines[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.medicines, id)
	return nil
}

// CreateSale runs the whole billing step under one lock: every line is
// validated against current stock with duplicate lines summed per medicine,
// and only when the full cart fits is anything deducted or recorded. One
// Sale row is written per cart line with the price captured here.
func (s *Store) CreateSale(_ context.Context, items []domain.CartItem, at time.Time) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		return []domain.Sale{}, nil
	}

	demand := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive for medicine %d", store.ErrInvalidInput, item.MedicineID)
		}
		if _, exists := s.medicines[item.MedicineID]; !exists {
			return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, item.MedicineID)
		}
		demand[item.MedicineID] += item.Quantity
	}

	// Check cumulative demand in cart order so the reported shortage is
	// deterministic when more than one medicine falls short.
	checked := make(map[int64]bool, len(demand))
	for _, item := range items {
		if checked[item.MedicineID] {
			continue
		}
		checked[item.MedicineID] = true
		med := s.medicines[item.MedicineID]
		if demand[item.MedicineID] > med.Stock {
			return nil, &store.StockError{
				MedicineID: med.ID,
				Name:       med.Name,
				Requested:  demand[item.MedicineID],
				Available:  med.Stock,
			}
		}
	}

	sales := make([]domain.Sale, 0, len(items))
	for _, item := range items {
		med := s.medicines[item.MedicineID]
		med.Stock -= item.Quantity
		med.UpdatedAt = at
		s.medicines[item.MedicineID] = med

		sale := domain.Sale{
			ID:           s.nextSaleID,
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Quantity:     item.Quantity,
			TotalAmount:  med.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			SaleDate:     at,
		}
		s.nextSaleID++
		s.sales = append(s.sales, sale)
		sales = append(sales, sale)
	}

	return sales, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, len(s.sales))
	copy(sales, s.sales)

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return int(b.ID - a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})

	return sales, nil
}

func (s *Store) SalesOnDate(_ context.Context, day time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := domain.DateOnly(day)
	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if domain.DateOnly(sale.SaleDate).Equal(target) {
			sales = append(sales, sale)
		}
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return int(a.ID - b.ID)
	})

	return sales, nil
}

func (s *Store) TotalStock(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, med := range s.medicines {
		total += med.Stock
	}
	return total, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}

	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})

	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, sup domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(sup.Name) == "" || strings.TrimSpace(sup.Contact) == "" {
		return nil, fmt.Errorf("%w: supplier name and contact are required", store.ErrInvalidInput)
	}
	for _, existing := range s.suppliers {
		if strings.EqualFold(existing.Name, sup.Name) {
			return nil, fmt.Errorf("%w: supplier %q already exists", store.ErrInvalidInput, sup.Name)
		}
	}

	sup.ID = s.nextSupplierID
	s.nextSupplierID++
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}

	s.suppliers[sup.ID] = sup
	created := sup
	return &created, nil
}

func validateMedicine(med domain.Medicine) error {
	if strings.TrimSpace(med.Name) == "" || strings.TrimSpace(med.Manufacturer) == "" || strings.TrimSpace(med.Category) == "" {
		return fmt.Errorf("%w: name, manufacturer and category are required", store.ErrInvalidInput)
	}
	if med.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", store.ErrInvalidInput)
	}
	if med.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", store.ErrInvalidInput)
	}
	if med.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: expiry date is required", store.ErrInvalidInput)
	}
	return nil
}

func medicineMatches(med domain.Medicine, needle string) bool {
	return strings.Contains(strings.ToLower(med.Name), needle) ||
		strings.Contains(strings.ToLower(med.Manufacturer), needle) ||
		strings.Contains(strings.ToLower(med.Category), needle)
}

func sortMedicines(medicines []domain.Medicine) {
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if a.Name == b.Name {
			return int(a.ID - b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
