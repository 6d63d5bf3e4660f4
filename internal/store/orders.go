package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"leftuber-api/internal/models"
)

// orderRow is an order joined with its buyer and merchant
type orderRow struct {
	models.Order
	BuyerName     sql.NullString `db:"buyer_name"`
	BuyerPhone    sql.NullString `db:"buyer_phone"`
	MerchantName  sql.NullString `db:"merchant_name"`
	MerchantPhone sql.NullString `db:"merchant_phone"`
}

func (r orderRow) toModel() models.Order {
	o := r.Order
	o.Snapshot()
	o.Buyer = &models.UserSummary{ID: o.BuyerID, Name: r.BuyerName.String, Phone: r.BuyerPhone.String}
	o.Merchant = &models.UserSummary{ID: o.MerchantID, Name: r.MerchantName.String, Phone: r.MerchantPhone.String}
	return o
}

const orderSelect = `
	SELECT o.*,
	       b.name AS buyer_name, b.phone AS buyer_phone,
	       m.name AS merchant_name, m.phone AS merchant_phone
	FROM orders o
	LEFT JOIN users b ON b.id = o.buyer_id
	LEFT JOIN users m ON m.id = o.merchant_id`

// PlaceOrder inserts the order and takes one unit of stock in a single
// transaction. When the stock is gone the transaction rolls back and
// models.ErrOutOfStock is returned; no order row survives.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order) (*models.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	product, err := decrementOnSale(ctx, tx, order.ProductID)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO orders (id, buyer_id, merchant_id, product_id, product_title, product_image,
			delivery_type, address_text, latitude, longitude, scheduled_date, scheduled_time, note,
			subtotal, delivery_fee, total, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.ID, order.BuyerID, order.MerchantID, order.ProductID, order.ProductTitle, order.ProductImage,
		order.DeliveryType, order.AddressText, order.Latitude, order.Longitude,
		order.ScheduledDate, order.ScheduledTime, order.Note,
		order.Subtotal, order.DeliveryFee, order.Total, order.Status, order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return product, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, orderSelect+" WHERE o.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	o := row.toModel()
	return &o, nil
}

// GetOrderByIdempotencyKey retrieves a buyer's order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, buyerID, key string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row,
		orderSelect+" WHERE o.buyer_id = $1 AND o.idempotency_key = $2", buyerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := row.toModel()
	return &o, nil
}

// ListOrders retrieves a buyer's or a merchant's orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		query string
		args  []interface{}
	)
	if filter.MerchantID != "" {
		query = orderSelect + " WHERE o.merchant_id = $1"
		args = append(args, filter.MerchantID)
	} else {
		query = orderSelect + " WHERE o.buyer_id = $1"
		args = append(args, filter.BuyerID)
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	query += " ORDER BY o.created_at DESC"

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toModel())
	}
	return orders, nil
}

// UpdateOrderStatus moves order from its current status to to. The status
// write is a compare-and-set on order.Status, so two racing cancels restock
// once; the loser gets models.ErrConflict. Moving into CANCELLED restores
// the product's stock in the same transaction. restocked is false when the
// product no longer exists.
func (s *Store) UpdateOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus) (restocked bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, order.ID, order.Status)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("%w: order %s is no longer %s", models.ErrConflict, order.ID, order.Status)
	}

	if to == models.StatusCancelled && order.Status != models.StatusCancelled {
		err = restoreOnCancel(ctx, tx, order.ProductID)
		switch {
		case err == nil:
			restocked = true
		case errors.Is(err, models.ErrNotFound):
		default:
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return restocked, nil
}

// MerchantStats counts a merchant's products and orders and sums completed sales
func (s *Store) MerchantStats(ctx context.Context, merchantID string) (*models.MerchantStats, error) {
	var stats models.MerchantStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM products WHERE merchant_id = $1) AS product_count,
			(SELECT COUNT(*) FROM orders WHERE merchant_id = $1) AS order_count,
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE merchant_id = $1 AND status = $2) AS total_sales`,
		merchantID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
