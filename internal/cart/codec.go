package cart

import (
	"encoding/json"
	"fmt"
)

// Encode renders c in the persisted wire format: a JSON array of items.
// A nil cart encodes as [].
func Encode(c Cart) (string, error) {
	if c == nil {
		c = Cart{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(b), nil
}

// Decode parses a persisted payload. Any payload that is not a JSON array of
// valid items fails with ErrMalformedCart.
func Decode(payload string) (Cart, error) {
	var c Cart
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCart, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: not an array", ErrMalformedCart)
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(c Cart) error {
	seen := make(map[string]struct{}, len(c))
	for i, it := range c {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has empty id", ErrMalformedCart, i)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrMalformedCart, it.ID)
		}
		seen[it.ID] = struct{}{}

		if !validPrice(it.Price) {
			return fmt.Errorf("%w: item %q has price %v", ErrMalformedCart, it.ID, it.Price)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrMalformedCart, it.ID, it.Quantity)
		}
	}
	return nil
}
