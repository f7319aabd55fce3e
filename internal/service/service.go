package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/invoice"
	"smartpharma/internal/recommendation"
	"smartpharma/internal/store"
)

const (
	defaultLowStockThreshold = 10
	defaultExpiryWindowDays  = 30

	// Seasonal dashboard picks: in-season medicines worth restocking
	// before the season peaks.
	seasonalPickMaxStock = 50
	seasonalPickLimit    = 10
)

type Service struct {
	repo              store.Repository
	recommender       *recommendation.Engine
	lowStockThreshold int
	expiryWindowDays  int
}

func New(repo store.Repository, recommender *recommendation.Engine, lowStockThreshold int, expiryWindowDays int) *Service {
	if lowStockThreshold < 1 {
		lowStockThreshold = defaultLowStockThreshold
	}
	if expiryWindowDays < 1 {
		expiryWindowDays = defaultExpiryWindowDays
	}

	return &Service{
		repo:              repo,
		recommender:       recommender,
		lowStockThreshold: lowStockThreshold,
		expiryWindowDays:  expiryWindowDays,
	}
}

func (s *Service) ListMedicines(ctx context.Context, query string) ([]domain.Medicine, error) {
	return s.repo.ListMedicines(ctx, query)
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error) {
	return s.repo.GetMedicine(ctx, id)
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.CreateMedicineRequest) (*domain.Medicine, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Manufacturer = strings.TrimSpace(req.Manufacturer)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Manufacturer == "" || req.Category == "" {
		return nil, fmt.Errorf("%w: name, manufacturer and category are required", store.ErrInvalidInput)
	}

	price, err := priceFromFloat(req.Price)
	if err != nil {
		return nil, err
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidInput)
	}
	expiry, err := parseExpiryDate(req.ExpiryDate)
	if err != nil {
		return nil, err
	}

	return s.repo.CreateMedicine(ctx, domain.Medicine{
		Name:         req.Name,
		Manufacturer: req.Manufacturer,
		Category:     req.Category,
		Price:        price,
		Stock:        req.Stock,
		ExpiryDate:   expiry,
		SeasonalTag:  domain.SeasonForCategory(req.Category),
	})
}

func (s *Service) UpdateMedicine(ctx context.Context, id int64, req domain.UpdateMedicineRequest) (*domain.Medicine, error) {
	existing, err := s.repo.GetMedicine(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Manufacturer != nil {
		manufacturer := strings.TrimSpace(*req.Manufacturer)
		if manufacturer == "" {
			return nil, fmt.Errorf("%w: manufacturer must not be empty", store.ErrInvalidInput)
		}
		updated.Manufacturer = manufacturer
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, fmt.Errorf("%w: category must not be empty", store.ErrInvalidInput)
		}
		updated.Category = category
		// Changing the category is the one edit that re-derives the
		// seasonal tag; everything else leaves it as stored.
		updated.SeasonalTag = domain.SeasonForCategory(category)
	}
	if req.Price != nil {
		price, err := priceFromFloat(*req.Price)
		if err != nil {
			return nil, err
		}
		updated.Price = price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidInput)
		}
		updated.Stock = *req.Stock
	}
	if req.ExpiryDate != nil {
		expiry, err := parseExpiryDate(*req.ExpiryDate)
		if err != nil {
			return nil, err
		}
		updated.ExpiryDate = expiry
	}

	return s.repo.UpdateMedicine(ctx, updated)
}

// DeleteMedicine removes a medicine from the catalogue. Its recorded
// sales stay behind with the name they were sold under.
func (s *Service) DeleteMedicine(ctx context.Context, id int64) error {
	return s.repo.DeleteMedicine(ctx, id)
}

// BillingCatalog lists what the counter can actually sell right now.
func (s *Service) BillingCatalog(ctx context.Context) ([]domain.Medicine, error) {
	return s.repo.ListInStock(ctx)
}

// ProcessSale rings up a cart as one atomic unit: either every line is
// sold and stock deducted, or nothing changes. An empty cart is not an
// error; it produces an invoice with no lines and a zero total.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (*domain.Invoice, error) {
	now := time.Now().UTC()

	if len(req.Items) == 0 {
		return &domain.Invoice{
			Number:     invoice.Number(now),
			IssuedAt:   now,
			Items:      []domain.Sale{},
			GrandTotal: decimal.Zero,
		}, nil
	}

	sales, err := s.repo.CreateSale(ctx, req.Items, now)
	if err != nil {
		return nil, err
	}

	grandTotal := decimal.Zero
	for _, sale := range sales {
		grandTotal = grandTotal.Add(sale.TotalAmount)
	}

	return &domain.Invoice{
		Number:     invoice.Number(now),
		IssuedAt:   now,
		Items:      sales,
		GrandTotal: grandTotal,
	}, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// ExpiringSoon returns medicines whose expiry date falls inside the
// warning window, counted in whole days from today. Already expired
// stock is included: it needs attention more, not less.
func (s *Service) ExpiringSoon(ctx context.Context, today time.Time) ([]domain.Medicine, error) {
	medicines, err := s.repo.ListMedicines(ctx, "")
	if err != nil {
		return nil, err
	}

	expiring := make([]domain.Medicine, 0, len(medicines))
	for _, med := range medicines {
		if domain.DaysUntilExpiry(med.ExpiryDate, today) < s.expiryWindowDays {
			expiring = append(expiring, med)
		}
	}
	sortByExpiry(expiring)
	return expiring, nil
}

// LowStock returns medicines with fewer units than the threshold, emptiest
// first. A medicine holding exactly the threshold is fine.
func (s *Service) LowStock(ctx context.Context) ([]domain.Medicine, error) {
	medicines, err := s.repo.ListMedicines(ctx, "")
	if err != nil {
		return nil, err
	}

	low := make([]domain.Medicine, 0, len(medicines))
	for _, med := range medicines {
		if med.Stock < s.lowStockThreshold {
			low = append(low, med)
		}
	}
	sortByStock(low)
	return low, nil
}

func (s *Service) Dashboard(ctx context.Context, today time.Time) (*domain.DashboardResponse, error) {
	medicines, err := s.repo.ListMedicines(ctx, "")
	if err != nil {
		return nil, err
	}
	totalStock, err := s.repo.TotalStock(ctx)
	if err != nil {
		return nil, err
	}
	salesToday, err := s.repo.SalesOnDate(ctx, today)
	if err != nil {
		return nil, err
	}

	revenue := decimal.Zero
	for _, sale := range salesToday {
		revenue = revenue.Add(sale.TotalAmount)
	}

	low := make([]domain.Medicine, 0, len(medicines))
	expiring := make([]domain.Medicine, 0, len(medicines))
	for _, med := range medicines {
		if med.Stock < s.lowStockThreshold {
			low = append(low, med)
		}
		if domain.DaysUntilExpiry(med.ExpiryDate, today) < s.expiryWindowDays {
			expiring = append(expiring, med)
		}
	}
	sortByStock(low)
	sortByExpiry(expiring)

	season := domain.SeasonForDate(today)
	picks := make([]domain.Medicine, 0, seasonalPickLimit)
	for _, med := range medicines {
		if med.SeasonalTag != season || med.Stock < 1 || med.Stock >= seasonalPickMaxStock {
			continue
		}
		picks = append(picks, med)
		if len(picks) == seasonalPickLimit {
			break
		}
	}

	return &domain.DashboardResponse{
		TotalMedicines: len(medicines),
		TotalStock:     totalStock,
		SalesToday:     revenue.InexactFloat64(),
		LowStock:       medicineViews(low, today),
		LowStockCount:  len(low),
		ExpiringSoon:   medicineViews(expiring, today),
		ExpiringCount:  len(expiring),
		Season:         season,
		SeasonalPicks:  medicineViews(picks, today),
	}, nil
}

// DailyReport aggregates one calendar day of sales per medicine name.
func (s *Service) DailyReport(ctx context.Context, date time.Time) (*domain.DailyReport, error) {
	sales, err := s.repo.SalesOnDate(ctx, date)
	if err != nil {
		return nil, err
	}

	type lineTotals struct {
		quantity int
		revenue  decimal.Decimal
	}
	byName := make(map[string]*lineTotals)
	unitsSold := 0
	grossRevenue := decimal.Zero

	for _, sale := range sales {
		name := sale.MedicineName
		if name == "" {
			name = "Unknown"
		}
		totals, exists := byName[name]
		if !exists {
			totals = &lineTotals{}
			byName[name] = totals
		}
		totals.quantity += sale.Quantity
		totals.revenue = totals.revenue.Add(sale.TotalAmount)

		unitsSold += sale.Quantity
		grossRevenue = grossRevenue.Add(sale.TotalAmount)
	}

	type namedTotals struct {
		name string
		lineTotals
	}
	ordered := make([]namedTotals, 0, len(byName))
	for name, totals := range byName {
		ordered = append(ordered, namedTotals{name: name, lineTotals: *totals})
	}
	slices.SortFunc(ordered, func(a, b namedTotals) int {
		if c := b.revenue.Cmp(a.revenue); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})

	lines := make([]domain.DailyReportLine, 0, len(ordered))
	for _, entry := range ordered {
		lines = append(lines, domain.DailyReportLine{
			MedicineName: entry.name,
			Quantity:     entry.quantity,
			Revenue:      entry.revenue.InexactFloat64(),
		})
	}

	return &domain.DailyReport{
		Date:         domain.DateOnly(date).Format(domain.DateLayout),
		SaleCount:    len(sales),
		UnitsSold:    unitsSold,
		GrossRevenue: grossRevenue.InexactFloat64(),
		Lines:        lines,
	}, nil
}

func (s *Service) Recommendations(ctx context.Context, date time.Time) (*domain.RecommendationResponse, error) {
	return s.recommender.Recommend(ctx, date)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.CreateSupplierRequest) (*domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	if req.Name == "" || req.Contact == "" {
		return nil, fmt.Errorf("%w: supplier name and contact are required", store.ErrInvalidInput)
	}

	return s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Contact: req.Contact,
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
}

func priceFromFloat(value float64) (decimal.Decimal, error) {
	if value < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: price must not be negative", store.ErrInvalidInput)
	}
	return decimal.NewFromFloat(value).Round(2), nil
}

func parseExpiryDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expiry_date must look like 2026-12-31", store.ErrInvalidInput)
	}
	return parsed, nil
}

func sortByExpiry(medicines []domain.Medicine) {
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			if a.ExpiryDate.Before(b.ExpiryDate) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
}

func sortByStock(medicines []domain.Medicine) {
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return int(a.ID - b.ID)
	})
}

func medicineViews(medicines []domain.Medicine, today time.Time) []domain.MedicineView {
	views := make([]domain.MedicineView, 0, len(medicines))
	for _, med := range medicines {
		views = append(views, domain.MedicineViewFrom(med, today))
	}
	return views
}
