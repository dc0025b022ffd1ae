package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dukalink/checkout-service/internal/mpesa"
	"github.com/dukalink/checkout-service/internal/order"
)

// StaleAfter is how long a pending transaction may sit without a terminal
// gateway response before it is unilaterally marked timeout. The gateway's
// own query API can hang or keep answering pending; this window is the local
// safety net independent of it.
const DefaultStaleAfter = 2 * time.Minute

// Gateway is the slice of the Daraja client the reconciliation path needs.
type Gateway interface {
	STKPush(ctx context.Context, phone, accountRef string, amount int) (*mpesa.STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

// OrderMarker is the slice of the order service the payment side effects need.
type OrderMarker interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, status order.PaymentStatus) error
}

// Notifier delivers the best-effort SMS confirmation.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// Publisher emits payment lifecycle events to the message bus.
type Publisher interface {
	PublishPaymentCompleted(ctx context.Context, tx *Transaction) error
}

// StatusResult is what the reconciliation endpoint reports back to a poller.
type StatusResult struct {
	Status        Status
	ReceiptNumber string
	OrderID       uuid.UUID
	Amount        float64
}

// CallbackResult carries the fields extracted from a Daraja stkCallback.
type CallbackResult struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
	Amount            float64
}

type Service interface {
	Initiate(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*Transaction, error)
	GetStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error)
	HandleCallback(ctx context.Context, cb CallbackResult) error
}

type service struct {
	repo       Repository
	cache      StatusCache
	gateway    Gateway
	orders     OrderMarker
	events     Publisher
	notifier   Notifier
	staleAfter time.Duration
}

func NewService(repo Repository, cache StatusCache, gateway Gateway, orders OrderMarker, events Publisher, notifier Notifier, staleAfter time.Duration) Service {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &service{
		repo:       repo,
		cache:      cache,
		gateway:    gateway,
		orders:     orders,
		events:     events,
		notifier:   notifier,
		staleAfter: staleAfter,
	}
}

// Initiate pushes a payment prompt for the order and records the pending
// transaction keyed by the gateway's checkout request id. A gateway rejection
// surfaces as an error with nothing persisted: the retried checkout starts a
// fresh transaction with a fresh handle.
func (s *service) Initiate(ctx context.Context, orderID uuid.UUID, phone string, amount float64) (*Transaction, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("service: order id is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("service: amount must be greater than zero, got %f", amount)
	}

	normalized, err := order.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	pushResp, err := s.gateway.STKPush(ctx, normalized, orderID.String(), int(math.Ceil(amount)))
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: stk push failed")
		return nil, fmt.Errorf("service: failed to initiate payment: %w", err)
	}

	tx := &Transaction{
		CheckoutRequestID: pushResp.CheckoutRequestID,
		OrderID:           orderID,
		PhoneNumber:       normalized,
		Amount:            amount,
		Status:            StatusPending,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		log.Error().Err(err).Str("checkout_request_id", tx.CheckoutRequestID).Msg("service: failed to persist transaction after push")
		return nil, fmt.Errorf("service: failed to record transaction: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Str("checkout_request_id", tx.CheckoutRequestID).
		Float64("amount", amount).
		Msg("service: stk push sent")

	return tx, nil
}

// GetStatus resolves the current status of a push attempt: local terminal
// state first, then a live gateway query, then the staleness timeout as the
// final fallback. Terminal states are immutable here; a recorded outcome is
// returned verbatim without touching the gateway again.
func (s *service) GetStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	if cached := s.cachedStatus(ctx, checkoutRequestID); cached != nil {
		return cached, nil
	}

	tx, err := s.repo.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("service: failed to load transaction: %w", err)
	}

	if tx.Status.IsTerminal() {
		s.cacheTerminal(ctx, tx)
		return resultOf(tx), nil
	}

	queryResult, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	switch {
	case err != nil:
		// Gateway unreachable. Fall through to the staleness check rather
		// than failing the poll.
		log.Warn().Err(err).Str("checkout_request_id", checkoutRequestID).Msg("service: gateway status query failed")
	case queryResult.Pending:
	case queryResult.ResultCode == mpesa.ResultCodeSuccess:
		return s.finalize(ctx, tx, StatusCompleted, "")
	case queryResult.ResultCode == mpesa.ResultCodeCancelledByUser:
		return s.finalize(ctx, tx, StatusCancelled, "")
	default:
		log.Info().
			Str("checkout_request_id", checkoutRequestID).
			Int("result_code", queryResult.ResultCode).
			Str("result_desc", queryResult.ResultDesc).
			Msg("service: gateway reported payment failure")
		return s.finalize(ctx, tx, StatusFailed, "")
	}

	if time.Since(tx.CreatedAt) > s.staleAfter {
		log.Info().
			Str("checkout_request_id", checkoutRequestID).
			Time("created_at", tx.CreatedAt).
			Msg("service: pending transaction exceeded staleness window, marking timeout")
		return s.finalize(ctx, tx, StatusTimeout, "")
	}

	return resultOf(tx), nil
}

// HandleCallback applies the authoritative result the gateway pushes to the
// callback URL. A late success may upgrade a locally declared timeout to
// completed; every other terminal state is immutable.
func (s *service) HandleCallback(ctx context.Context, cb CallbackResult) error {
	tx, err := s.repo.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			log.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("service: callback for unknown transaction")
			return ErrTransactionNotFound
		}
		return fmt.Errorf("service: failed to load transaction for callback: %w", err)
	}

	newStatus := StatusFailed
	switch cb.ResultCode {
	case mpesa.ResultCodeSuccess:
		newStatus = StatusCompleted
	case mpesa.ResultCodeCancelledByUser:
		newStatus = StatusCancelled
	}

	if tx.Status.IsTerminal() {
		switch {
		case tx.Status == StatusTimeout && newStatus == StatusCompleted:
			log.Info().
				Str("checkout_request_id", cb.CheckoutRequestID).
				Msg("service: late gateway confirmation after local timeout, upgrading to completed")
		case tx.Status == StatusCompleted && newStatus == StatusCompleted && tx.ReceiptNumber == "" && cb.ReceiptNumber != "":
			// The query API settles a payment without a receipt; only the
			// callback carries MpesaReceiptNumber. Backfill it without
			// re-firing the completion side effects.
			return s.backfillReceipt(ctx, tx, cb.ReceiptNumber)
		default:
			log.Info().
				Str("checkout_request_id", cb.CheckoutRequestID).
				Stringer("recorded_status", tx.Status).
				Stringer("callback_status", newStatus).
				Msg("service: callback for settled transaction ignored")
			return nil
		}
	}

	_, err = s.finalize(ctx, tx, newStatus, cb.ReceiptNumber)
	return err
}

// finalize persists the terminal status and fires the completion side
// effects. The order update, event and SMS are each best-effort beyond the
// transaction record itself.
func (s *service) finalize(ctx context.Context, tx *Transaction, newStatus Status, receiptNumber string) (*StatusResult, error) {
	if err := s.repo.UpdateStatus(ctx, tx.CheckoutRequestID, newStatus, receiptNumber); err != nil {
		return nil, fmt.Errorf("service: failed to persist %s status: %w", newStatus, err)
	}
	tx.Status = newStatus
	if receiptNumber != "" {
		tx.ReceiptNumber = receiptNumber
	}

	s.cacheTerminal(ctx, tx)

	switch newStatus {
	case StatusCompleted:
		if err := s.orders.MarkPaid(ctx, tx.OrderID); err != nil {
			log.Error().Err(err).Stringer("order_id", tx.OrderID).Msg("service: failed to mark order paid")
		}
		if s.events != nil {
			if err := s.events.PublishPaymentCompleted(ctx, tx); err != nil {
				log.Error().Err(err).Str("checkout_request_id", tx.CheckoutRequestID).Msg("service: failed to publish payment completed event")
			}
		}
		if s.notifier != nil {
			msg := fmt.Sprintf("Your payment of KES %.0f was received. Receipt: %s", tx.Amount, tx.ReceiptNumber)
			if err := s.notifier.Send(ctx, tx.PhoneNumber, msg); err != nil {
				log.Error().Err(err).Str("phone", tx.PhoneNumber).Msg("service: failed to send confirmation sms")
			}
		}
	case StatusFailed, StatusCancelled:
		if err := s.orders.MarkPaymentFailed(ctx, tx.OrderID, order.PaymentFailed); err != nil {
			log.Error().Err(err).Stringer("order_id", tx.OrderID).Msg("service: failed to record failed payment on order")
		}
	case StatusTimeout:
		if err := s.orders.MarkPaymentFailed(ctx, tx.OrderID, order.PaymentTimeout); err != nil {
			log.Error().Err(err).Stringer("order_id", tx.OrderID).Msg("service: failed to record payment timeout on order")
		}
	}

	log.Info().
		Str("checkout_request_id", tx.CheckoutRequestID).
		Stringer("status", newStatus).
		Msg("service: transaction settled")

	return resultOf(tx), nil
}

func (s *service) backfillReceipt(ctx context.Context, tx *Transaction, receiptNumber string) error {
	if err := s.repo.UpdateStatus(ctx, tx.CheckoutRequestID, StatusCompleted, receiptNumber); err != nil {
		return fmt.Errorf("service: failed to persist receipt number: %w", err)
	}
	tx.ReceiptNumber = receiptNumber

	s.cacheTerminal(ctx, tx)

	log.Info().
		Str("checkout_request_id", tx.CheckoutRequestID).
		Str("receipt_number", receiptNumber).
		Msg("service: receipt number recorded for settled transaction")

	return nil
}

func (s *service) cachedStatus(ctx context.Context, checkoutRequestID string) *StatusResult {
	if s.cache == nil {
		return nil
	}

	entry, err := s.cache.Get(ctx, checkoutRequestID)
	if err != nil {
		log.Warn().Err(err).Str("checkout_request_id", checkoutRequestID).Msg("service: status cache read failed")
		return nil
	}
	if entry == nil {
		return nil
	}

	orderID, err := uuid.FromString(entry.OrderID)
	if err != nil {
		return nil
	}

	return &StatusResult{
		Status:        entry.Status,
		ReceiptNumber: entry.ReceiptNumber,
		OrderID:       orderID,
		Amount:        entry.Amount,
	}
}

func (s *service) cacheTerminal(ctx context.Context, tx *Transaction) {
	if s.cache == nil || !tx.Status.IsTerminal() {
		return
	}

	entry := CachedStatus{
		Status:        tx.Status,
		ReceiptNumber: tx.ReceiptNumber,
		OrderID:       tx.OrderID.String(),
		Amount:        tx.Amount,
	}
	if err := s.cache.Set(ctx, tx.CheckoutRequestID, entry); err != nil {
		log.Warn().Err(err).Str("checkout_request_id", tx.CheckoutRequestID).Msg("service: status cache write failed")
	}
}

func resultOf(tx *Transaction) *StatusResult {
	return &StatusResult{
		Status:        tx.Status,
		ReceiptNumber: tx.ReceiptNumber,
		OrderID:       tx.OrderID,
		Amount:        tx.Amount,
	}
}
