// Package checkout is a client for the checkout service: order submission,
// STK push initiation, and the payment status polling loop a storefront runs
// while the buyer confirms the prompt on their handset.
package checkout

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PollState is the local polling state, tracked independently of the
// transaction's own status on the server.
type PollState int

const (
	StateIdle PollState = iota
	StatePending
	StatePolling
	StateSuccess
	StateFailed
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30
)

// StatusFunc queries the current payment status. Implementations return the
// server-reported status string (pending/completed/failed/cancelled/timeout)
// or a transport error.
type StatusFunc func(ctx context.Context) (string, error)

// PollResult describes how a polling run ended.
type PollResult struct {
	State    PollState
	Status   string
	Attempts int
	// TimedOut is set when the attempt budget ran out while the server
	// still reported pending.
	TimedOut bool
}

// Poller drives the status polling state machine. Each poll is chained from
// the completion of the previous one, so there is never more than one status
// query in flight; a slow response naturally delays the next attempt. STK
// prompts expire on the handset after a short window, so the attempt budget
// bounds total wall-clock exposure: transport errors and pending responses
// both consume an attempt.
type Poller struct {
	query       StatusFunc
	interval    time.Duration
	maxAttempts int
	onSuccess   func()
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the inter-poll delay.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithOnSuccess registers a hook fired exactly once when polling lands on a
// completed payment (the storefront clears the cart and navigates here).
func WithOnSuccess(fn func()) Option {
	return func(p *Poller) {
		p.onSuccess = fn
	}
}

func NewPoller(query StatusFunc, opts ...Option) *Poller {
	p := &Poller{
		query:       query,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until a terminal status, the attempt budget, or ctx cancellation.
// Cancelling ctx suppresses any further scheduling; the in-flight query is
// abandoned via the same context.
func (p *Poller) Run(ctx context.Context) (PollResult, error) {
	state := StatePending

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		state = StatePolling

		status, err := p.query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{State: state, Attempts: attempt}, ctx.Err()
			}
			// Transport errors consume an attempt like a pending result:
			// the budget bounds wall-clock time, not successful responses.
			log.Warn().Err(err).Int("attempt", attempt).Msg("checkout: status query failed")
			status = "pending"
		}

		switch status {
		case "completed":
			state = StateSuccess
			if p.onSuccess != nil {
				p.onSuccess()
			}
			return PollResult{State: state, Status: status, Attempts: attempt}, nil
		case "failed", "cancelled", "timeout":
			return PollResult{State: StateFailed, Status: status, Attempts: attempt}, nil
		}

		if attempt == p.maxAttempts {
			break
		}

		// Next poll is scheduled only after this one resolved.
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollResult{State: state, Attempts: attempt}, ctx.Err()
		case <-timer.C:
		}
	}

	return PollResult{State: StateFailed, Status: "pending", Attempts: p.maxAttempts, TimedOut: true}, nil
}
