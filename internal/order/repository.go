package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Repository interface {
	Create(ctx context.Context, o *Order) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, newStatus PaymentStatus) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) (orderID uuid.UUID, err error) {
	finalID := o.ID
	if finalID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order id: %w", genErr)
		}
		finalID = genID
	}
	o.ID = finalID

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", finalID).Msg("repository: failed to rollback order insert")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()

	queryOrder := `
		INSERT INTO orders (id, user_id, buyer_name, buyer_email, buyer_phone,
			shipping_street, shipping_city, shipping_county, shipping_notes,
			subtotal, shipping_fee, total, status, payment_status, payment_method,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.Exec(ctx, queryOrder,
		finalID,
		o.UserID,
		o.Buyer.Name,
		o.Buyer.Email,
		o.Buyer.Phone,
		o.Shipping.Street,
		o.Shipping.City,
		o.Shipping.County,
		o.Shipping.Notes,
		o.Subtotal,
		o.ShippingFee,
		o.Total,
		string(o.Status),
		string(o.PaymentStatus),
		string(o.PaymentMethod),
		now,
		now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order item id: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = finalID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			finalID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			item.ImageURL,
			now,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to insert order item for order %s: %w", finalID, err)
		}
	}

	return finalID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	queryOrder := `
		SELECT id, user_id, buyer_name, buyer_email, buyer_phone,
			shipping_street, shipping_city, shipping_county, shipping_notes,
			subtotal, shipping_fee, total, status, payment_status, payment_method,
			created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.db.QueryRow(ctx, queryOrder, orderID).Scan(
		&o.ID,
		&o.UserID,
		&o.Buyer.Name,
		&o.Buyer.Email,
		&o.Buyer.Phone,
		&o.Shipping.Street,
		&o.Shipping.City,
		&o.Shipping.County,
		&o.Shipping.Notes,
		&o.Subtotal,
		&o.ShippingFee,
		&o.Total,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	items, err := r.itemsForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *postgresRepository) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, order_id, product_id, name, price, quantity, image_url, created_at
		FROM order_items
		WHERE order_id = $1
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.ImageURL,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}

	return items, nil
}

func (r *postgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	queryOrders := `
		SELECT id, user_id, buyer_name, buyer_email, buyer_phone,
			shipping_street, shipping_city, shipping_county, shipping_notes,
			subtotal, shipping_fee, total, status, payment_status, payment_method,
			created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, queryOrders, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Buyer.Name,
			&o.Buyer.Email,
			&o.Buyer.Phone,
			&o.Shipping.Street,
			&o.Shipping.City,
			&o.Shipping.County,
			&o.Shipping.Notes,
			&o.Subtotal,
			&o.ShippingFee,
			&o.Total,
			&o.Status,
			&o.PaymentStatus,
			&o.PaymentMethod,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		o.Items = make([]Item, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	queryItems := `
		SELECT id, order_id, product_id, name, price, quantity, image_url, created_at
		FROM order_items
		WHERE order_id = ANY($1)
	`
	itemRows, err := r.db.Query(ctx, queryItems, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for user %s: %w", userID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item Item
		err := itemRows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.ImageURL,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for user %s: %w", userID, err)
		}
		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for user %s: %w", userID, err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if o, ok := ordersMap[id]; ok {
			result = append(result, *o)
		}
	}

	return result, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update status for order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, newStatus PaymentStatus) error {
	query := `
		UPDATE orders
		SET payment_status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment status for order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}
