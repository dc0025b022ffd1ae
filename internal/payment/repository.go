package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTransactionNotFound = errors.New("payment transaction not found")

type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, checkoutRequestID string, newStatus Status, receiptNumber string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate transaction id: %w", err)
		}
		tx.ID = id
	}

	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	query := `
		INSERT INTO payment_transactions (id, checkout_request_id, order_id, phone_number,
			amount, status, receipt_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.CheckoutRequestID,
		tx.OrderID,
		tx.PhoneNumber,
		tx.Amount,
		string(tx.Status),
		tx.ReceiptNumber,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment transaction: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	query := `
		SELECT id, checkout_request_id, order_id, phone_number, amount, status,
			receipt_number, created_at, updated_at
		FROM payment_transactions
		WHERE checkout_request_id = $1
	`

	var tx Transaction
	err := r.db.QueryRow(ctx, query, checkoutRequestID).Scan(
		&tx.ID,
		&tx.CheckoutRequestID,
		&tx.OrderID,
		&tx.PhoneNumber,
		&tx.Amount,
		&tx.Status,
		&tx.ReceiptNumber,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("repository: failed to select transaction %s: %w", checkoutRequestID, err)
	}

	return &tx, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, checkoutRequestID string, newStatus Status, receiptNumber string) error {
	query := `
		UPDATE payment_transactions
		SET status = $1,
			receipt_number = CASE WHEN $2 <> '' THEN $2 ELSE receipt_number END,
			updated_at = $3
		WHERE checkout_request_id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), receiptNumber, time.Now().UTC(), checkoutRequestID)
	if err != nil {
		return fmt.Errorf("repository: failed to update transaction %s: %w", checkoutRequestID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}
