package cart

import "math"

// Item is one distinct product held in the cart.
type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Cart is insertion-ordered and keyed by Item.ID.
type Cart []Item

func (c Cart) indexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares nothing with c.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// Units is the sum of all quantities.
func (c Cart) Units() int {
	n := 0
	for _, it := range c {
		n += it.Quantity
	}
	return n
}

// with returns a new cart where position i holds it.
func (c Cart) with(i int, it Item) Cart {
	out := c.Clone()
	out[i] = it
	return out
}

func (c Cart) without(i int) Cart {
	out := make(Cart, 0, len(c)-1)
	out = append(out, c[:i]...)
	return append(out, c[i+1:]...)
}

func (c Cart) appended(it Item) Cart {
	out := make(Cart, 0, len(c)+1)
	out = append(out, c...)
	return append(out, it)
}

// validPrice reports whether p can be stored and encoded.
func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

// bumped returns it with one more unit, or false when the count is saturated.
func (it Item) bumped() (Item, bool) {
	if it.Quantity == math.MaxInt {
		return it, false
	}
	it.Quantity++
	return it, true
}
