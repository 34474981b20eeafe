package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStore means the cart API was reached outside a provided store
	// scope. It is a wiring bug, not a runtime condition.
	ErrNoStore = errors.New("cart: used outside of a store scope")

	ErrMalformedCart = errors.New("malformed cart payload")
)

// PersistenceError wraps a failed read or write against the storage slot.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cart %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
