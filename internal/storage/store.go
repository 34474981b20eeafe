package storage

import (
	"context"
	"errors"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

// ErrUnavailable is returned when the backend is known to be down and the
// call was rejected without reaching it.
var ErrUnavailable = errors.New("storage unavailable")

// KV is a single-namespace string slot store. Get reports a missing key as
// ok=false with a nil error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
