package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fjod/go_pos/dev-backend/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

var productColumns = []string{"PRD_ID", "CODE", "NAME", "PRICE"}

type Repository struct {
	db *sql.DB
}

type RepoInterface interface {
	ProductByCode(ctx context.Context, code string) (*domain.Product, error)
	ProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, skip, limit uint64) ([]*domain.Product, error)
	CreateTransaction(ctx context.Context, trx *domain.Transaction) error
	Transaction(ctx context.Context, id int64) (*domain.Transaction, error)
	Ping(ctx context.Context) error
	Close() error
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: gets its own empty database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// RunMigrations applies the embedded schema and seed migrations.
func (r *Repository) RunMigrations() error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) ProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	return r.product(ctx, sq.Eq{"CODE": code})
}

func (r *Repository) ProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	return r.product(ctx, sq.Eq{"PRD_ID": id})
}

func (r *Repository) product(ctx context.Context, where sq.Eq) (*domain.Product, error) {
	p := &domain.Product{}
	err := sq.Select(productColumns...).
		From("product_master").
		Where(where).
		Limit(1).
		RunWith(r.db).
		QueryRowContext(ctx).
		Scan(&p.ID, &p.Code, &p.Name, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, skip, limit uint64) ([]*domain.Product, error) {
	rows, err := sq.Select(productColumns...).
		From("product_master").
		OrderBy("PRD_ID").
		Limit(limit).
		Offset(skip).
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

// CreateTransaction stores the header and its details in one database
// transaction. trx.ID, trx.CreatedAt and the detail keys are filled in.
func (r *Repository) CreateTransaction(ctx context.Context, trx *domain.Transaction) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	createdAt := time.Now().UTC()
	res, err := sq.Insert("transactions").
		SetMap(map[string]interface{}{
			"DATETIME":       createdAt,
			"EMP_CD":         nullString(trx.EmployeeCD),
			"STORE_CD":       nullString(trx.StoreCD),
			"POS_NO":         nullString(trx.PosNo),
			"TOTAL_AMT":      trx.TotalAmount,
			"TTL_AMT_EX_TAX": trx.TotalExTax,
		}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read transaction id: %w", err)
	}

	if len(trx.Details) > 0 {
		ins := sq.Insert("transaction_details").
			Columns("TRD_ID", "DTL_ID", "PRD_ID", "PRD_CODE", "PRD_NAME", "PRD_PRICE", "TAX_CD")
		for i := range trx.Details {
			d := &trx.Details[i]
			d.TransactionID = id
			d.DetailID = int64(i + 1)
			ins = ins.Values(d.TransactionID, d.DetailID, d.ProductID, d.ProductCode, d.ProductName, d.ProductPrice, nullString(d.TaxCD))
		}
		if _, err = ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert transaction details: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	trx.ID = id
	trx.CreatedAt = createdAt
	return nil
}

func (r *Repository) Transaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	trx := &domain.Transaction{}
	var emp, store, pos sql.NullString
	var total, exTax sql.NullInt64
	err := sq.Select("TRD_ID", "DATETIME", "EMP_CD", "STORE_CD", "POS_NO", "TOTAL_AMT", "TTL_AMT_EX_TAX").
		From("transactions").
		Where(sq.Eq{"TRD_ID": id}).
		RunWith(r.db).
		QueryRowContext(ctx).
		Scan(&trx.ID, &trx.CreatedAt, &emp, &store, &pos, &total, &exTax)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	trx.EmployeeCD, trx.StoreCD, trx.PosNo = emp.String, store.String, pos.String
	trx.TotalAmount, trx.TotalExTax = total.Int64, exTax.Int64

	rows, err := sq.Select("TRD_ID", "DTL_ID", "PRD_ID", "PRD_CODE", "PRD_NAME", "PRD_PRICE", "TAX_CD").
		From("transaction_details").
		Where(sq.Eq{"TRD_ID": id}).
		OrderBy("DTL_ID").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.TransactionDetail
		var taxCD sql.NullString
		if err := rows.Scan(&d.TransactionID, &d.DetailID, &d.ProductID, &d.ProductCode, &d.ProductName, &d.ProductPrice, &taxCD); err != nil {
			return nil, fmt.Errorf("failed to scan transaction detail: %w", err)
		}
		d.TaxCD = taxCD.String
		trx.Details = append(trx.Details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return trx, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
