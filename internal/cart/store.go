package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"GoMarketplace/internal/storage"
)

// DefaultKey is the storage slot earlier app sessions wrote the cart under.
const DefaultKey = "@GoMarketPlace:cartproducts"

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// Store owns the canonical cart for the session and mirrors every applied
// mutation into a single storage slot.
//
// Mutations read and replace the in-memory cart under one lock, so two calls
// racing each other never lose an update. The slot write happens after the
// new cart is visible to readers and subscribers; a write carrying an older
// revision than one already attempted is dropped.
type Store struct {
	kv      storage.KV
	key     string
	log     *zap.Logger
	metrics *Metrics
	policy  DuplicatePolicy

	mu      sync.Mutex
	items   Cart
	rev     uint64
	subs    map[int]chan Cart
	nextSub int

	writeMu   sync.Mutex
	attempted uint64
}

// Open builds a store over kv and loads the persisted cart. Storage or
// payload problems leave the cart empty; Open itself never fails.
func Open(ctx context.Context, kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		key:   DefaultKey,
		log:   zap.NewNop(),
		items: Cart{},
		subs:  map[int]chan Cart{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hydrate(ctx)
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	payload, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("cart hydrate failed, starting empty",
			zap.Error(&PersistenceError{Op: "read", Key: s.key, Err: err}))
		s.metrics.hydrated(hydrateFailed)
		return
	}
	if !ok {
		s.metrics.hydrated(hydrateEmpty)
		return
	}

	c, err := Decode(payload)
	if err != nil {
		s.log.Warn("cart payload unreadable, starting empty",
			zap.String("key", s.key),
			zap.Error(err),
		)
		s.metrics.hydrated(hydrateCorrupt)
		return
	}

	s.mu.Lock()
	s.items = c
	s.mu.Unlock()

	s.metrics.hydrated(hydrateLoaded)
	s.metrics.observe(c)
	s.log.Debug("cart hydrated", zap.Int("lines", len(c)))
}

// Items returns a snapshot of the cart. Changing it does not affect the store.
func (s *Store) Items() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Clone()
}

func (s *Store) Key() string { return s.key }

func (s *Store) Ping(ctx context.Context) error { return s.kv.Ping(ctx) }

// AddToCart appends candidate with quantity 1, whatever quantity it carries.
// If the id is already present the DuplicatePolicy applies; the default
// leaves the cart unchanged. Candidates with an empty id or a price that is
// negative, NaN or infinite are dropped.
func (s *Store) AddToCart(ctx context.Context, candidate Item) {
	if candidate.ID == "" || !validPrice(candidate.Price) {
		s.log.Warn("cart add rejected",
			zap.String("id", candidate.ID),
			zap.Float64("price", candidate.Price),
		)
		s.metrics.mutation("add", resultRejected)
		return
	}

	s.mutate(ctx, "add", func(c Cart) (Cart, bool) {
		if i := c.indexOf(candidate.ID); i >= 0 {
			if s.policy != IncrementExisting {
				return c, false
			}
			it, ok := c[i].bumped()
			if !ok {
				return c, false
			}
			return c.with(i, it), true
		}

		return c.appended(Item{
			ID:       candidate.ID,
			Title:    candidate.Title,
			ImageURL: candidate.ImageURL,
			Price:    candidate.Price,
			Quantity: 1,
		}), true
	})
}

// Increment raises the quantity of id by one. Unknown ids and quantities
// already at math.MaxInt are left alone.
func (s *Store) Increment(ctx context.Context, id string) {
	s.mutate(ctx, "increment", func(c Cart) (Cart, bool) {
		i := c.indexOf(id)
		if i < 0 {
			return c, false
		}
		it, ok := c[i].bumped()
		if !ok {
			return c, false
		}
		return c.with(i, it), true
	})
}

// Decrement lowers the quantity of id by one and removes the item when it
// reaches zero. Unknown ids are ignored.
func (s *Store) Decrement(ctx context.Context, id string) {
	s.mutate(ctx, "decrement", func(c Cart) (Cart, bool) {
		i := c.indexOf(id)
		if i < 0 {
			return c, false
		}
		it := c[i]
		it.Quantity--
		if it.Quantity <= 0 {
			return c.without(i), true
		}
		return c.with(i, it), true
	})
}

func (s *Store) mutate(ctx context.Context, op string, fn func(Cart) (Cart, bool)) {
	s.mu.Lock()
	next, changed := fn(s.items)
	if !changed {
		s.mu.Unlock()
		s.metrics.mutation(op, resultNoop)
		return
	}

	s.items = next
	s.rev++
	rev := s.rev
	s.publishLocked(next)
	s.mu.Unlock()

	s.metrics.mutation(op, resultApplied)
	s.metrics.observe(next)

	// the caller going away must not abandon the write
	s.persist(context.WithoutCancel(ctx), op, rev, next)
}

func (s *Store) persist(ctx context.Context, op string, rev uint64, c Cart) {
	payload, err := Encode(c)
	if err != nil {
		s.log.Error("cart encode failed", zap.String("op", op), zap.Error(err))
		s.metrics.persistFailed(op)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if rev <= s.attempted {
		return
	}
	s.attempted = rev

	if err := s.kv.Set(ctx, s.key, payload); err != nil {
		s.log.Warn("cart persist failed",
			zap.String("op", op),
			zap.Uint64("revision", rev),
			zap.Error(&PersistenceError{Op: "write", Key: s.key, Err: err}),
		)
		s.metrics.persistFailed(op)
	}
}

// Subscribe returns a channel that receives the cart after every applied
// mutation. Slow readers only see the latest cart. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Cart, func()) {
	ch := make(chan Cart, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publishLocked(c Cart) {
	for _, ch := range s.subs {
		snap := c.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
