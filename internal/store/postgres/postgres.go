package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

// migrations are applied in order at startup. Statements must stay
// idempotent. sales.medicine_id deliberately has no foreign key: sales are
// weak references that survive medicine deletion.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS medicines (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		category TEXT NOT NULL,
		price NUMERIC(10,2) NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		expiry_date DATE NOT NULL,
		seasonal_tag TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines (name)`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_category ON medicines (category)`,
	`CREATE INDEX IF NOT EXISTS idx_medicines_seasonal_tag ON medicines (seasonal_tag)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		medicine_id BIGINT NOT NULL,
		medicine_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		total_amount NUMERIC(12,2) NOT NULL,
		sale_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales (sale_date)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

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

func (s *Store) ListMedicines(ctx context.Context, query string) ([]domain.Medicine, error) {
	sqlQuery := `
		SELECT id, name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at
		FROM medicines
		ORDER BY name, id
	`
	args := []any{}
	if q := normalizeQuery(query); q != "" {
		sqlQuery = `
			SELECT id, name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at
			FROM medicines
			WHERE name ILIKE $1 OR manufacturer ILIKE $1 OR category ILIKE $1
			ORDER BY name, id
		`
		args = append(args, "%"+q+"%")
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMedicines(rows)
}

func (s *Store) ListInStock(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at
		FROM medicines
		WHERE stock > 0
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMedicines(rows)
}

func (s *Store) GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error) {
	var med domain.Medicine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at
		FROM medicines
		WHERE id = $1
	`, id).Scan(&med.ID, &med.Name, &med.Manufacturer, &med.Category, &med.Price, &med.Stock,
		&med.ExpiryDate, &med.SeasonalTag, &med.CreatedAt, &med.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &med, nil
}

func (s *Store) CreateMedicine(ctx context.Context, med domain.Medicine) (*domain.Medicine, error) {
	if err := validateMedicine(med); err != nil {
		return nil, err
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO medicines (name, manufacturer, category, price, stock, expiry_date, seasonal_tag, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING id, created_at, updated_at
	`, med.Name, med.Manufacturer, med.Category, med.Price, med.Stock,
		domain.DateOnly(med.ExpiryDate), med.SeasonalTag).Scan(&med.ID, &med.CreatedAt, &med.UpdatedAt)
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

	res, err := s.db.ExecContext(ctx, `
		UPDATE medicines
		SET name = $2, manufacturer = $3, category = $4, price = $5, stock = $6,
			expiry_date = $7, seasonal_tag = $8, updated_at = now()
		WHERE id = $1
	`, med.ID, med.Name, med.Manufacturer, med.Category, med.Price, med.Stock,
		domain.DateOnly(med.ExpiryDate), med.SeasonalTag)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, id)
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

// CreateSale validates and books the whole cart in one serializable
// transaction. The medicine rows are locked up front so two concurrent
// carts against the same medicine cannot both pass the stock check.
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	medRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM medicines
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	locked := make(map[int64]domain.Medicine, len(ids))
	for medRows.Next() {
		var med domain.Medicine
		if err := medRows.Scan(&med.ID, &med.Name, &med.Price, &med.Stock); err != nil {
			_ = medRows.Close()
			return nil, err
		}
		locked[med.ID] = med
	}
	if err := medRows.Err(); err != nil {
		_ = medRows.Close()
		return nil, err
	}
	_ = medRows.Close()

	for _, id := range ids {
		med, exists := locked[id]
		if !exists {
			return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, id)
		}
		if demand[id] > med.Stock {
			return nil, &store.StockError{
				MedicineID: med.ID,
				Name:       med.Name,
				Requested:  demand[id],
				Available:  med.Stock,
			}
		}
	}

	for _, id := range ids {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE medicines SET stock = stock - $1, updated_at = now() WHERE id = $2
		`, demand[id], id); err != nil {
			return nil, err
		}
	}

	sales := make([]domain.Sale, 0, len(items))
	for _, item := range items {
		med := locked[item.MedicineID]
		sale := domain.Sale{
			MedicineID:   med.ID,
			MedicineName: med.Name,
			Quantity:     item.Quantity,
			TotalAmount:  med.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			SaleDate:     at,
		}
		if err := pgTx.QueryRowContext(ctx, `
			INSERT INTO sales (medicine_id, medicine_name, quantity, total_amount, sale_date)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, sale.MedicineID, sale.MedicineName, sale.Quantity, sale.TotalAmount, sale.SaleDate).Scan(&sale.ID); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, medicine_name, quantity, total_amount, sale_date
		FROM sales
		ORDER BY sale_date DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

func (s *Store) SalesOnDate(ctx context.Context, day time.Time) ([]domain.Sale, error) {
	from := domain.DateOnly(day)
	to := from.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, medicine_name, quantity, total_amount, sale_date
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

func (s *Store) TotalStock(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(stock), 0) FROM medicines`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, email, address, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Email, &sup.Address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, sup domain.Supplier) (*domain.Supplier, error) {
	if sup.Name == "" || sup.Contact == "" {
		return nil, fmt.Errorf("%w: supplier name and contact are required", store.ErrInvalidInput)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact, email, address, created_at)
		VALUES ($1,$2,$3,$4,now())
		RETURNING id, created_at
	`, sup.Name, sup.Contact, sup.Email, sup.Address).Scan(&sup.ID, &sup.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %q already exists", store.ErrInvalidInput, sup.Name)
		}
		return nil, err
	}

	created := sup
	return &created, nil
}

func scanMedicines(rows *sql.Rows) ([]domain.Medicine, error) {
	medicines := make([]domain.Medicine, 0, 128)
	for rows.Next() {
		var med domain.Medicine
		if err := rows.Scan(&med.ID, &med.Name, &med.Manufacturer, &med.Category, &med.Price, &med.Stock,
			&med.ExpiryDate, &med.SeasonalTag, &med.CreatedAt, &med.UpdatedAt); err != nil {
			return nil, err
		}
		medicines = append(medicines, med)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func scanSales(rows *sql.Rows) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.MedicineID, &sale.MedicineName, &sale.Quantity, &sale.TotalAmount, &sale.SaleDate); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

// normalizeQuery strips ILIKE wildcards from the user-supplied filter so a
// search for "50%" cannot widen the match.
func normalizeQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '%' || r == '_' {
			return -1
		}
		return r
	}, query)
	return strings.TrimSpace(cleaned)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
