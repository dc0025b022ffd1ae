package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dukalink/checkout-service/pkg/checkout"
)

func TestPoller_CompletesAfterPendingPolls(t *testing.T) {
	queries := 0
	successCalls := 0

	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			queries++
			if queries < 6 {
				return "pending", nil
			}
			return "completed", nil
		},
		checkout.WithInterval(time.Millisecond),
		checkout.WithMaxAttempts(30),
		checkout.WithOnSuccess(func() { successCalls++ }),
	)

	result, err := poller.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, checkout.StateSuccess, result.State)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 6, result.Attempts)
	assert.Equal(t, 6, queries, "no polls may be issued after a terminal status")
	assert.Equal(t, 1, successCalls, "success hook must fire exactly once")
	assert.False(t, result.TimedOut)
}

func TestPoller_ExhaustsAttemptBudget(t *testing.T) {
	queries := 0
	successCalls := 0

	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			queries++
			return "pending", nil
		},
		checkout.WithInterval(time.Millisecond),
		checkout.WithMaxAttempts(30),
		checkout.WithOnSuccess(func() { successCalls++ }),
	)

	result, err := poller.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, checkout.StateFailed, result.State)
	assert.Equal(t, 30, result.Attempts)
	assert.Equal(t, 30, queries, "exactly the budget, not one more")
	assert.True(t, result.TimedOut)
	assert.Equal(t, 0, successCalls)
}

func TestPoller_StopsOnFailureStatuses(t *testing.T) {
	for _, status := range []string{"failed", "cancelled", "timeout"} {
		t.Run(status, func(t *testing.T) {
			queries := 0
			poller := checkout.NewPoller(
				func(ctx context.Context) (string, error) {
					queries++
					return status, nil
				},
				checkout.WithInterval(time.Millisecond),
			)

			result, err := poller.Run(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, checkout.StateFailed, result.State)
			assert.Equal(t, status, result.Status)
			assert.Equal(t, 1, queries)
			assert.False(t, result.TimedOut)
		})
	}
}

func TestPoller_TransportErrorsConsumeAttempts(t *testing.T) {
	queries := 0

	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			queries++
			if queries <= 2 {
				return "", errors.New("connection reset")
			}
			return "completed", nil
		},
		checkout.WithInterval(time.Millisecond),
		checkout.WithMaxAttempts(5),
	)

	result, err := poller.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, checkout.StateSuccess, result.State)
	assert.Equal(t, 3, result.Attempts)
}

func TestPoller_OnlyErrorsExhaustBudget(t *testing.T) {
	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			return "", errors.New("connection reset")
		},
		checkout.WithInterval(time.Millisecond),
		checkout.WithMaxAttempts(3),
	)

	result, err := poller.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, checkout.StateFailed, result.State)
	assert.Equal(t, 3, result.Attempts)
	assert.True(t, result.TimedOut)
}

func TestPoller_CancellationSuppressesScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	queries := 0

	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			queries++
			if queries == 2 {
				cancel()
			}
			return "pending", nil
		},
		checkout.WithInterval(time.Hour), // a leaked timer would hang the test
		checkout.WithMaxAttempts(30),
	)

	done := make(chan struct{})
	var result checkout.PollResult
	var err error
	go func() {
		result, err = poller.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, queries)
	assert.Equal(t, 2, result.Attempts)
}

func TestPoller_PollsAreChainedNotOverlapping(t *testing.T) {
	inFlight := 0
	maxInFlight := 0

	poller := checkout.NewPoller(
		func(ctx context.Context) (string, error) {
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			time.Sleep(2 * time.Millisecond) // slower than the poll interval
			inFlight--
			return "pending", nil
		},
		checkout.WithInterval(time.Millisecond),
		checkout.WithMaxAttempts(5),
	)

	_, err := poller.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, maxInFlight, "at most one status query in flight")
}
