package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusAssigned:  true,
		StatusCancelled: true,
	},
	StatusAssigned: {
		StatusPickedUp:  true,
		StatusCancelled: true,
	},
	StatusPickedUp: {
		StatusInTransit: true,
		StatusCancelled: true,
	},
	StatusInTransit: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// Publisher emits order lifecycle events to the message bus. Failures are
// logged, not surfaced: events are a side channel, not part of the contract.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

type Service interface {
	CreateOrder(ctx context.Context, in DraftInput) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, status PaymentStatus) error
}

type service struct {
	repo   Repository
	events Publisher
}

func NewService(repo Repository, events Publisher) Service {
	return &service{repo: repo, events: events}
}

func (s *service) CreateOrder(ctx context.Context, in DraftInput) (*Order, error) {
	o, err := BuildDraft(in)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", in.UserID).Msg("service: order draft rejected")
		return nil, err
	}

	if _, err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, o); err != nil {
			log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to publish order created event")
		}
	}

	log.Info().Stringer("order_id", o.ID).Stringer("user_id", o.UserID).Float64("total", o.Total).Msg("service: order created")

	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if current.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status unchanged")
		return nil
	}

	if !allowedTransitions[current.Status][newStatus] {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, newStatus)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", current.Status).Stringer("new_status", newStatus).Msg("service: order status updated")
	return nil
}

// MarkPaid records a completed payment against the order and moves a pending
// order into processing.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID) error {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for payment update: %w", err)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, orderID, PaymentCompleted); err != nil {
		return fmt.Errorf("service: failed to mark order paid: %w", err)
	}

	if current.Status == StatusPending {
		if err := s.repo.UpdateStatus(ctx, orderID, StatusProcessing); err != nil {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to advance paid order to processing")
		}
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order marked paid")
	return nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, status PaymentStatus) error {
	if status != PaymentFailed && status != PaymentTimeout {
		return fmt.Errorf("service: %q is not a failed payment status", status)
	}

	if err := s.repo.UpdatePaymentStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to record failed payment: %w", err)
	}

	return nil
}
