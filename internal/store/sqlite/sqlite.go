package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

// Dates and timestamps are stored as TEXT in these layouts; both sort
// lexicographically in date order, which the sale_date range scan relies on.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

// sales.medicine_id has no foreign key on purpose: deleting a medicine
// orphans its sales instead of cascading or blocking.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS medicines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		category TEXT NOT NULL,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		expiry_date TEXT NOT NULL,
		seasonal_tag TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines (name)`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_category ON medicines (category)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		medicine_id INTEGER NOT NULL,
		medicine_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		sale_date TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales (sale_date)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
}

// Store is the SQLite-backed Repository. The pool is capped at one
// connection, so statements never interleave; CreateSale still wraps its
// validate-then-deduct in an explicit transaction so a mid-cart failure
// rolls back cleanly.
type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type medicineRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Manufacturer string `db:"manufacturer"`
	Category     string `db:"category"`
	Price        string `db:"price"`
	Stock        int    `db:"stock"`
	ExpiryDate   string `db:"expiry_date"`
	SeasonalTag  string `db:"seasonal_tag"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r medicineRow) toDomain() (domain.Medicine, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("medicine %d: bad price %q: %w", r.ID, r.Price, err)
	}
	expiry, err := time.ParseInLocation(dateLayout, r.ExpiryDate, time.UTC)
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("medicine %d: bad expiry %q: %w", r.ID, r.ExpiryDate, err)
	}
	createdAt, err := time.ParseInLocation(timeLayout, r.CreatedAt, time.UTC)
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("medicine %d: bad created_at %q: %w", r.ID, r.CreatedAt, err)
	}
	updatedAt, err := time.ParseInLocation(timeLayout, r.UpdatedAt, time.UTC)
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("medicine %d: bad updated_at %q: %w", r.ID, r.UpdatedAt, err)
	}

	return domain.Medicine{
		ID:           r.ID,
		Name:         r.Name,
		Manufacturer: r.Manufacturer,
		Category:     r.Category,
		Price:        price,
		Stock:        r.Stock,
		ExpiryDate:   expiry,
		SeasonalTag:  r.SeasonalTag,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

type saleRow struct {
	ID           int64  `db:"id"`
	MedicineID   int64  `db:"medicine_id"`
	MedicineName string `db:"medicine_name"`
	Quantity     int    `db:"quantity"`
	TotalAmount  string `db:"total_amount"`
	SaleDate     string `db:"sale_date"`
}

func (r saleRow) toDomain() (domain.Sale, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %d: bad total %q: %w", r.ID, r.TotalAmount, err)
	}
	saleDate, err := time.ParseInLocation(timeLayout, r.SaleDate, time.UTC)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %d: bad sale_date %q: %w", r.ID, r.SaleDate, err)
	}

	return domain.Sale{
		ID:           r.ID,
		MedicineID:   r.MedicineID,
		MedicineName: r.MedicineName,
		Quantity:     r.Quantity,
		TotalAmount:  total,
		SaleDate:     saleDate,
	}, nil
}

const medicineColumns = `id, name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at`

func (s *Store) ListMedicines(ctx context.Context, query string) ([]domain.Medicine, error) {
	var rows []medicineRow
	if needle := strings.TrimSpace(query); needle != "" {
		like := "%" + strings.ToLower(needle) + "%"
		err := s.db.SelectContext(ctx, &rows, `
			SELECT `+medicineColumns+`
			FROM medicines
			WHERE lower(name) LIKE ? OR lower(manufacturer) LIKE ? OR lower(category) LIKE ?
			ORDER BY name, id
		`, like, like, like)
		if err != nil {
			return nil, err
		}
	} else {
		err := s.db.SelectContext(ctx, &rows, `
			SELECT `+medicineColumns+`
			FROM medicines
			ORDER BY name, id
		`)
		if err != nil {
			return nil, err
		}
	}

	return medicinesFromRows(rows)
}

func (s *Store) ListInStock(ctx context.Context) ([]domain.Medicine, error) {
	var rows []medicineRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE stock > 0
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	return medicinesFromRows(rows)
}

func (s *Store) GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error) {
	var row medicineRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	med, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &med, nil
}

func (s *Store) CreateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error) {
	if err := validateMedicine(med); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if med.CreatedAt.IsZero() {
		med.CreatedAt = now
	}
	med.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, med.Name, med.Manufacturer, med.Category, med.Price.String(), med.Stock,
		domain.DateOnly(med.ExpiryDate).Format(dateLayout), med.SeasonalTag,
		med.CreatedAt.Format(timeLayout), med.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, err
	}

	med.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := med
	return &created, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error) {
	if err := validateMedicine(med); err != nil {
		return nil, err
	}

	med.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE medicines
		SET name = ?, manufacturer = ?, category = ?, price = ?, stock = ?,
			expiry_date = ?, seasonal_tag = ?, updated_at = ?
		WHERE id = ?
	`, med.Name, med.Manufacturer, med.Category, med.Price.String(), med.Stock,
		domain.DateOnly(med.ExpiryDate).Format(dateLayout), med.SeasonalTag,
		med.UpdatedAt.Format(timeLayout), med.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := med
	return &updated, nil
}

func (s *Store) DeleteMedicine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, items []domain.CartItem, at time.Time) ([]domain.Sale, error) {
	if len(items) == 0 {
		return []domain.Sale{}, nil
	}

	demand := make(map[int64]int, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive for medicine %d", store.ErrInvalidInput, item.MedicineID)
		}
		if _, seen := demand[item.MedicineID]; !seen {
			ids = append(ids, item.MedicineID)
		}
		demand[item.MedicineID] += item.Quantity
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sqlx.In(`
		SELECT id, name, price, stock
		FROM medicines
		WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}

	var lockedRows []struct {
		ID    int64  `db:"id"`
		Name  string `db:"name"`
		Price string `db:"price"`
		Stock int    `db:"stock"`
	}
	if err := tx.SelectContext(ctx, &lockedRows, tx.Rebind(query), args...); err != nil {
		return nil, err
	}

	type medState struct {
		name  string
		price decimal.Decimal
		stock int
	}
	locked := make(map[int64]medState, len(lockedRows))
	for _, row := range lockedRows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, fmt.Errorf("medicine %d: bad price %q: %w", row.ID, row.Price, err)
		}
		locked[row.ID] = medState{name: row.Name, price: price, stock: row.Stock}
	}

	for _, id := range ids {
		med, exists := locked[id]
		if !exists {
			return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, id)
		}
		if demand[id] > med.stock {
			return nil, &store.StockError{
				MedicineID: id,
				Name:       med.name,
				Requested:  demand[id],
				Available:  med.stock,
			}
		}
	}

	// Stored at second precision; the returned sales carry the same
	// truncated stamp so a re-read matches.
	saleAt := at.UTC().Truncate(time.Second)
	saleStamp := saleAt.Format(timeLayout)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE medicines SET stock = stock - ?, updated_at = ? WHERE id = ?
		`, demand[id], saleStamp, id); err != nil {
			return nil, err
		}
	}

	sales := make([]domain.Sale, 0, len(items))
	for _, item := range items {
		med := locked[item.MedicineID]
		sale := domain.Sale{
			MedicineID:   item.MedicineID,
			MedicineName: med.name,
			Quantity:     item.Quantity,
			TotalAmount:  med.price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			SaleDate:     saleAt,
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sales (medicine_id, medicine_name, quantity, total_amount, sale_date)
			VALUES (?,?,?,?,?)
		`, sale.MedicineID, sale.MedicineName, sale.Quantity, sale.TotalAmount.String(), saleStamp)
		if err != nil {
			return nil, err
		}
		if sale.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	var rows []saleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, medicine_id, medicine_name, quantity, total_amount, sale_date
		FROM sales
		ORDER BY sale_date DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	return salesFromRows(rows)
}

func (s *Store) SalesOnDate(ctx context.Context, day time.Time) ([]domain.Sale, error) {
	from := domain.DateOnly(day)
	to := from.AddDate(0, 0, 1)

	var rows []saleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, medicine_id, medicine_name, quantity, total_amount, sale_date
		FROM sales
		WHERE sale_date >= ? AND sale_date < ?
		ORDER BY id
	`, from.Format(timeLayout), to.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	return salesFromRows(rows)
}

func (s *Store) TotalStock(ctx context.Context) (int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(stock), 0) FROM medicines`); err != nil {
		return 0, err
	}
	return total, nil
}

type supplierRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Contact   string `db:"contact"`
	Email     string `db:"email"`
	Address   string `db:"address"`
	CreatedAt string `db:"created_at"`
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var rows []supplierRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, contact, email, address, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	suppliers := make([]domain.Supplier, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.ParseInLocation(timeLayout, row.CreatedAt, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("supplier %d: bad created_at %q: %w", row.ID, row.CreatedAt, err)
		}
		suppliers = append(suppliers, domain.Supplier{
			ID:        row.ID,
			Name:      row.Name,
			Contact:   row.Contact,
			Email:     row.Email,
			Address:   row.Address,
			CreatedAt: createdAt,
		})
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, sup domain.Supplier) (*domain.Supplier, error) {
	if sup.Name == "" || sup.Contact == "" {
		return nil, fmt.Errorf("%w: supplier name and contact are required", store.ErrInvalidInput)
	}

	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (name, contact, email, address, created_at)
		VALUES (?,?,?,?,?)
	`, sup.Name, sup.Contact, sup.Email, sup.Address, sup.CreatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %q already exists", store.ErrInvalidInput, sup.Name)
		}
		return nil, err
	}

	if sup.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	created := sup
	return &created, nil
}

func medicinesFromRows(rows []medicineRow) ([]domain.Medicine, error) {
	medicines := make([]domain.Medicine, 0, len(rows))
	for _, row := range rows {
		med, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, med)
	}
	return medicines, nil
}

func salesFromRows(rows []saleRow) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func validateMedicine(med domain.Medicine) error {
	if med.Name == "" || med.Manufacturer == "" || med.Category == "" {
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

// modernc.org/sqlite reports constraint failures as plain errors; matching
// on the message is the practical way to spot the duplicate-name case.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
