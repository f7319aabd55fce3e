package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

func mustCreateMedicine(t *testing.T, s *Store, name, category, price string, stock int, expiryDays int) *domain.Medicine {
	t.Helper()

	med, err := s.CreateMedicine(context.Background(), domain.Medicine{
		Name:         name,
		Manufacturer: "Cipla",
		Category:     category,
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		ExpiryDate:   domain.DateOnly(time.Now().UTC().AddDate(0, 0, expiryDays)),
		SeasonalTag:  domain.SeasonForCategory(category),
	})
	if err != nil {
		t.Fatalf("create medicine %s: %v", name, err)
	}
	return med
}

func TestListMedicinesFiltersAcrossFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	mustCreateMedicine(t, s, "Dolo 650mg", "Painkiller", "30.00", 100, 365)
	med, err := s.CreateMedicine(ctx, domain.Medicine{
		Name:         "Digene Antacid Syrup",
		Manufacturer: "Abbott",
		Category:     "Antacid",
		Price:        decimal.RequireFromString("132.00"),
		Stock:        40,
		ExpiryDate:   domain.DateOnly(time.Now().UTC().AddDate(0, 0, 180)),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byManufacturer, err := s.ListMedicines(ctx, "abbott")
	if err != nil {
		t.Fatalf("list by manufacturer: %v", err)
	}
	if len(byManufacturer) != 1 || byManufacturer[0].ID != med.ID {
		t.Fatalf("expected only the Abbott medicine, got %+v", byManufacturer)
	}

	byCategory, err := s.ListMedicines(ctx, "antacid")
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(byCategory) != 1 {
		t.Fatalf("expected one antacid, got %d", len(byCategory))
	}

	all, err := s.ListMedicines(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 medicines, got %d", len(all))
	}
	// Deterministic order: by name.
	if all[0].Name != "Digene Antacid Syrup" {
		t.Fatalf("expected name-sorted order, got %s first", all[0].Name)
	}
}

func TestGetMedicineReturnsACopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	created := mustCreateMedicine(t, s, "Limcee Vitamin C 500mg", "Vitamin C", "25.00", 50, 400)

	got, err := s.GetMedicine(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Stock = 0
	got.Name = "mutated"

	again, err := s.GetMedicine(ctx, created.ID)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Stock != 50 || again.Name != "Limcee Vitamin C 500mg" {
		t.Fatalf("store state leaked through returned pointer: %+v", again)
	}
}

func TestCreateSaleAggregatesDuplicateLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	med := mustCreateMedicine(t, s, "Dolo 650mg", "Painkiller", "10.00", 5, 365)

	_, err := s.CreateSale(ctx, []domain.CartItem{
		{MedicineID: med.ID, Quantity: 3},
		{MedicineID: med.ID, Quantity: 4},
	}, time.Now().UTC())

	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.Requested != 7 || stockErr.Available != 5 {
		t.Fatalf("expected requested 7 available 5, got %+v", stockErr)
	}

	after, err := s.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("get after failed sale: %v", err)
	}
	if after.Stock != 5 {
		t.Fatalf("stock must be untouched after rejection, got %d", after.Stock)
	}
	sales, err := s.ListSales(ctx)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("no sale rows may exist after rejection, got %d", len(sales))
	}
}

func TestCreateSaleWritesOneRowPerLine(t *testing.T) {
	s := New()
	ctx := context.Background()
	med := mustCreateMedicine(t, s, "Dolo 650mg", "Painkiller", "10.00", 5, 365)

	sales, err := s.CreateSale(ctx, []domain.CartItem{
		{MedicineID: med.ID, Quantity: 2},
		{MedicineID: med.ID, Quantity: 1},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected one sale row per cart line, got %d", len(sales))
	}
	if !sales[0].TotalAmount.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("expected first line total 20, got %s", sales[0].TotalAmount)
	}
	if !sales[1].TotalAmount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected second line total 10, got %s", sales[1].TotalAmount)
	}

	after, _ := s.GetMedicine(ctx, med.ID)
	if after.Stock != 2 {
		t.Fatalf("expected stock 2 after selling 3 of 5, got %d", after.Stock)
	}
}

func TestCreateSaleWholeCartFailsTogether(t *testing.T) {
	s := New()
	ctx := context.Background()
	plenty := mustCreateMedicine(t, s, "Limcee Vitamin C 500mg", "Vitamin C", "25.00", 100, 400)
	scarce := mustCreateMedicine(t, s, "Candid Antifungal Cream", "Antifungal", "95.00", 2, 280)

	_, err := s.CreateSale(ctx, []domain.CartItem{
		{MedicineID: plenty.ID, Quantity: 10},
		{MedicineID: scarce.ID, Quantity: 3},
	}, time.Now().UTC())
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	plentyAfter, _ := s.GetMedicine(ctx, plenty.ID)
	if plentyAfter.Stock != 100 {
		t.Fatalf("valid line must not be deducted when the cart fails, stock %d", plentyAfter.Stock)
	}
}

func TestDeleteMedicineOrphansSales(t *testing.T) {
	s := New()
	ctx := context.Background()
	med := mustCreateMedicine(t, s, "Otrivin Nasal Spray 10ml", "Nasal Spray", "105.00", 20, 210)

	if _, err := s.CreateSale(ctx, []domain.CartItem{{MedicineID: med.ID, Quantity: 2}}, time.Now().UTC()); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if err := s.DeleteMedicine(ctx, med.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetMedicine(ctx, med.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	sales, err := s.ListSales(ctx)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("sale must survive medicine deletion, got %d rows", len(sales))
	}
	if sales[0].MedicineID != med.ID || sales[0].MedicineName != "Otrivin Nasal Spray 10ml" {
		t.Fatalf("orphaned sale lost its reference or name snapshot: %+v", sales[0])
	}
}

func TestSalesOnDateUsesCalendarDay(t *testing.T) {
	s := New()
	ctx := context.Background()
	med := mustCreateMedicine(t, s, "Dolo 650mg", "Painkiller", "30.00", 100, 365)

	today := time.Date(2026, time.August, 24, 15, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	if _, err := s.CreateSale(ctx, []domain.CartItem{{MedicineID: med.ID, Quantity: 1}}, yesterday); err != nil {
		t.Fatalf("sale yesterday: %v", err)
	}
	if _, err := s.CreateSale(ctx, []domain.CartItem{{MedicineID: med.ID, Quantity: 2}}, today); err != nil {
		t.Fatalf("sale today: %v", err)
	}

	sales, err := s.SalesOnDate(ctx, time.Date(2026, time.August, 24, 0, 0, 1, 0, time.UTC))
	if err != nil {
		t.Fatalf("sales on date: %v", err)
	}
	if len(sales) != 1 || sales[0].Quantity != 2 {
		t.Fatalf("expected only today's sale, got %+v", sales)
	}
}

func TestCreateSupplierRejectsDuplicateName(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateSupplier(ctx, domain.Supplier{Name: "MedSupply Co.", Contact: "9876543210"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateSupplier(ctx, domain.Supplier{Name: "medsupply co.", Contact: "9876543211"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate supplier, got %v", err)
	}
}

func TestNewSeededHasAllSeasonsAndAlerts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	medicines, err := s.ListMedicines(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(medicines) == 0 {
		t.Fatalf("seeded store is empty")
	}

	seasons := map[string]bool{}
	lowStock := false
	expired := false
	today := time.Now().UTC()
	for _, med := range medicines {
		if med.SeasonalTag != "" {
			seasons[med.SeasonalTag] = true
		}
		if med.Stock < 10 {
			lowStock = true
		}
		if domain.DaysUntilExpiry(med.ExpiryDate, today) < 0 {
			expired = true
		}
	}
	for _, season := range domain.Seasons() {
		if !seasons[season] {
			t.Fatalf("seed has no medicine tagged %s", season)
		}
	}
	if !lowStock || !expired {
		t.Fatalf("seed should include low-stock and expired rows (low=%v expired=%v)", lowStock, expired)
	}

	suppliers, err := s.ListSuppliers(ctx)
	if err != nil {
		t.Fatalf("suppliers: %v", err)
	}
	if len(suppliers) != 5 {
		t.Fatalf("expected 5 seeded suppliers, got %d", len(suppliers))
	}
}
