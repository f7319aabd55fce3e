// Package seed loads startup inventory from CSV files and fills in the
// supplier directory on first boot.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

// LoadMedicinesCSV imports medicines from a CSV file with the header
// name,manufacturer,category,price,stock,expiry_date. Rows whose name
// already exists in the store are skipped, so re-running the import on
// the same file is harmless. Returns the number of medicines created.
func LoadMedicinesCSV(ctx context.Context, repo store.Repository, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "manufacturer", "category", "price", "stock", "expiry_date"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("seed file %s is missing column %q", path, required)
		}
	}

	existing, err := repo.ListMedicines(ctx, "")
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, med := range existing {
		known[strings.ToLower(med.Name)] = true
	}

	created := 0
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return created, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		name := strings.TrimSpace(record[col["name"]])
		if name == "" || known[strings.ToLower(name)] {
			continue
		}

		price, err := decimal.NewFromString(strings.TrimSpace(record[col["price"]]))
		if err != nil {
			return created, fmt.Errorf("line %d: bad price %q: %w", line, record[col["price"]], err)
		}
		stock, err := strconv.Atoi(strings.TrimSpace(record[col["stock"]]))
		if err != nil {
			return created, fmt.Errorf("line %d: bad stock %q: %w", line, record[col["stock"]], err)
		}
		expiry, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(record[col["expiry_date"]]), time.UTC)
		if err != nil {
			return created, fmt.Errorf("line %d: bad expiry date %q: %w", line, record[col["expiry_date"]], err)
		}

		category := strings.TrimSpace(record[col["category"]])
		_, err = repo.CreateMedicine(ctx, domain.Medicine{
			Name:         name,
			Manufacturer: strings.TrimSpace(record[col["manufacturer"]]),
			Category:     category,
			Price:        price,
			Stock:        stock,
			ExpiryDate:   expiry,
			SeasonalTag:  domain.SeasonForCategory(category),
		})
		if err != nil {
			return created, fmt.Errorf("line %d: %w", line, err)
		}

		known[strings.ToLower(name)] = true
		created++
	}

	return created, nil
}

// DefaultSuppliers is the starter supplier directory for a fresh store.
func DefaultSuppliers() []domain.Supplier {
	return []domain.Supplier{
		{Name: "MedSupply Co.", Contact: "9876543210", Email: "contact@medsupply.com", Address: "Mumbai, Maharashtra"},
		{Name: "PharmaDirect Ltd.", Contact: "9876543211", Email: "info@pharmadirect.com", Address: "Delhi, NCR"},
		{Name: "HealthCare Distributors", Contact: "9876543212", Email: "sales@healthcare.com", Address: "Bangalore, Karnataka"},
		{Name: "Wellness Suppliers", Contact: "9876543213", Email: "support@wellness.com", Address: "Pune, Maharashtra"},
		{Name: "MediQuick Traders", Contact: "9876543214", Email: "orders@mediquick.com", Address: "Chennai, Tamil Nadu"},
	}
}

// EnsureSuppliers creates any default supplier that is not in the store
// yet. Safe to run on every boot.
func EnsureSuppliers(ctx context.Context, repo store.Repository) (int, error) {
	existing, err := repo.ListSuppliers(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, sup := range existing {
		known[strings.ToLower(sup.Name)] = true
	}

	created := 0
	for _, sup := range DefaultSuppliers() {
		if known[strings.ToLower(sup.Name)] {
			continue
		}
		if _, err := repo.CreateSupplier(ctx, sup); err != nil {
			return created, fmt.Errorf("supplier %q: %w", sup.Name, err)
		}
		created++
	}

	return created, nil
}
