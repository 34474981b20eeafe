package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name string
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before a trial call.
	Cooldown time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:     "cart-storage",
		Failures: 5,
		Cooldown: 30 * time.Second,
	}
}

type getResult struct {
	value string
	ok    bool
}

// BreakerStore fails fast with ErrUnavailable while the wrapped backend keeps
// failing.
type BreakerStore struct {
	next KV
	cb   *gobreaker.CircuitBreaker[getResult]
}

func WithBreaker(next KV, st BreakerSettings, log *zap.Logger) *BreakerStore {
	if log == nil {
		log = zap.NewNop()
	}
	failures := st.Failures
	if failures == 0 {
		failures = 1
	}

	cb := gobreaker.NewCircuitBreaker[getResult](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	_, err := b.cb.Execute(func() (getResult, error) {
		return getResult{}, b.next.Ping(ctx)
	})
	return mapBreakerErr(err)
}

func (b *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := b.cb.Execute(func() (getResult, error) {
		v, ok, err := b.next.Get(ctx, key)
		return getResult{value: v, ok: ok}, err
	})
	if err != nil {
		return "", false, mapBreakerErr(err)
	}
	return res.value, res.ok, nil
}

func (b *BreakerStore) Set(ctx context.Context, key, value string) error {
	_, err := b.cb.Execute(func() (getResult, error) {
		return getResult{}, b.next.Set(ctx, key, value)
	})
	return mapBreakerErr(err)
}

func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
