package cart

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides what AddToCart does when the id is already present.
type DuplicatePolicy int

const (
	// KeepExisting leaves the present item untouched.
	KeepExisting DuplicatePolicy = iota
	// IncrementExisting bumps the present item's quantity by one.
	IncrementExisting
)

func (p DuplicatePolicy) String() string {
	switch p {
	case KeepExisting:
		return "keep"
	case IncrementExisting:
		return "increment"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepExisting, nil
	case "increment":
		return IncrementExisting, nil
	default:
		return KeepExisting, fmt.Errorf("unknown duplicate policy %q", s)
	}
}
