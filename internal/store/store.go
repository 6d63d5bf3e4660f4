package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"leftuber-api/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// pq error code for unique_violation
const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// escapeLike escapes LIKE metacharacters so search text matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// setBuilder accumulates "col = $n" fragments for partial updates
type setBuilder struct {
	sets []string
	args []interface{}
}

func (b *setBuilder) add(column string, value interface{}) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *setBuilder) empty() bool {
	return len(b.sets) == 0
}

// build returns "UPDATE table SET ... WHERE id = $n RETURNING *"
func (b *setBuilder) build(table, id string) (string, []interface{}) {
	b.sets = append(b.sets, "updated_at = NOW()")
	args := append(b.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		table, strings.Join(b.sets, ", "), len(args))
	return query, args
}

// productRow is a product joined with its merchant
type productRow struct {
	models.Product
	MerchantName  sql.NullString `db:"merchant_name"`
	MerchantPhone sql.NullString `db:"merchant_phone"`
}

func (r productRow) toModel() models.Product {
	p := r.Product
	p.Merchant = &models.UserSummary{
		ID:    p.MerchantID,
		Name:  r.MerchantName.String,
		Phone: r.MerchantPhone.String,
	}
	return p
}

const productSelect = `
	SELECT p.*, u.name AS merchant_name, u.phone AS merchant_phone
	FROM products p
	LEFT JOIN users u ON u.id = p.merchant_id`

func toProducts(rows []productRow) []models.Product {
	products := make([]models.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toModel())
	}
	return products
}

// ListAvailableProducts returns in-stock products, newest first
func (s *Store) ListAvailableProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	query := productSelect + " WHERE p.quantity > 0"
	var args []interface{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND p.category = $%d", len(args))
	}
	if filter.MerchantID != "" {
		args = append(args, filter.MerchantID)
		query += fmt.Sprintf(" AND p.merchant_id = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		query += fmt.Sprintf(" AND (p.title ILIKE $%d OR p.description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY p.created_at DESC"

	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toProducts(rows), nil
}

// ListProductsByMerchant returns every product of a merchant, sold-out included
func (s *Store) ListProductsByMerchant(ctx context.Context, merchantID string) ([]models.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows,
		productSelect+" WHERE p.merchant_id = $1 ORDER BY p.created_at DESC", merchantID)
	if err != nil {
		return nil, err
	}
	return toProducts(rows), nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, productSelect+" WHERE p.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	p := row.toModel()
	return &p, nil
}

// RecordProductView increments the view counter
func (s *Store) RecordProductView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE products SET views = views + 1 WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	return nil
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, merchant_id, title, description, image, original_price,
			offer_price, quantity, category, pickup_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.MerchantID, p.Title, p.Description, p.Image, p.OriginalPrice,
		p.OfferPrice, p.Quantity, p.Category, p.PickupTime,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct writes only the fields set in patch. Counters and
// popularity flags are never touched so concurrent sales are not lost.
func (s *Store) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	var b setBuilder
	if patch.Title.Set {
		b.add("title", patch.Title.Value)
	}
	if patch.Description.Set {
		b.add("description", patch.Description.Value)
	}
	if patch.Image.Set {
		b.add("image", patch.Image.Value)
	}
	if patch.Category.Set {
		b.add("category", patch.Category.Value)
	}
	if patch.OriginalPrice.Set {
		b.add("original_price", patch.OriginalPrice.Value)
	}
	if patch.OfferPrice.Set {
		b.add("offer_price", patch.OfferPrice.Value)
	}
	if patch.Quantity.Set {
		b.add("quantity", patch.Quantity.Value)
	}
	if patch.PickupTime.Set {
		b.add("pickup_time", patch.PickupTime.Value)
	}
	if b.empty() {
		return s.GetProductByID(ctx, id)
	}

	query, args := b.build("products", id)
	var p models.Product
	err := s.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProduct removes a product permanently
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	return nil
}

// DecrementOnSale takes one unit of stock outside of an order transaction
func (s *Store) DecrementOnSale(ctx context.Context, productID string) (*models.Product, error) {
	return decrementOnSale(ctx, s.db, productID)
}

// RestoreOnCancel puts one unit of stock back outside of an order transaction
func (s *Store) RestoreOnCancel(ctx context.Context, productID string) error {
	return restoreOnCancel(ctx, s.db, productID)
}

// decrementOnSale is a single conditional statement: the quantity check and
// the write happen under the row lock taken by UPDATE, so concurrent
// callers can never drive quantity below zero. SET expressions see the old
// row, hence sales_count + 1 in the flag expressions.
func decrementOnSale(ctx context.Context, q sqlx.QueryerContext, productID string) (*models.Product, error) {
	var p models.Product
	err := sqlx.GetContext(ctx, q, &p, `
		UPDATE products
		SET quantity    = quantity - 1,
		    sales_count = sales_count + 1,
		    hot         = sales_count + 1 > $2,
		    best_seller = sales_count + 1 > $3,
		    updated_at  = NOW()
		WHERE id = $1 AND quantity > 0
		RETURNING *`,
		productID, models.HotThreshold, models.BestSellerThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", models.ErrOutOfStock, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return &p, nil
}

// restoreOnCancel is the compensation for decrementOnSale. The sales
// counter is clamped at zero.
func restoreOnCancel(ctx context.Context, e sqlx.ExecerContext, productID string) error {
	res, err := e.ExecContext(ctx, `
		UPDATE products
		SET quantity    = quantity + 1,
		    sales_count = GREATEST(sales_count - 1, 0),
		    hot         = GREATEST(sales_count - 1, 0) > $2,
		    best_seller = GREATEST(sales_count - 1, 0) > $3,
		    updated_at  = NOW()
		WHERE id = $1`,
		productID, models.HotThreshold, models.BestSellerThreshold)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
	}
	return nil
}
