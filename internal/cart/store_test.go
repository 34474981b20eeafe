package cart_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"GoMarketplace/internal/cart"
	"GoMarketplace/internal/storage"
)

// recordingKV wraps a MemStore, counts writes and can be told to fail.
type recordingKV struct {
	*storage.MemStore

	mu     sync.Mutex
	writes int
	getErr error
	setErr error
}

func newRecordingKV() *recordingKV {
	return &recordingKV{MemStore: storage.NewMemStore()}
}

func (k *recordingKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	err := k.getErr
	k.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return k.MemStore.Get(ctx, key)
}

func (k *recordingKV) Set(ctx context.Context, key, value string) error {
	k.mu.Lock()
	k.writes++
	err := k.setErr
	k.mu.Unlock()
	if err != nil {
		return err
	}
	return k.MemStore.Set(ctx, key, value)
}

func (k *recordingKV) writeCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.writes
}

func (k *recordingKV) stored(t *testing.T) cart.Cart {
	t.Helper()
	v, ok, err := k.MemStore.Get(context.Background(), cart.DefaultKey)
	if err != nil || !ok {
		t.Fatalf("slot empty: ok=%v err=%v", ok, err)
	}
	c, err := cart.Decode(v)
	if err != nil {
		t.Fatalf("decode slot: %v", err)
	}
	return c
}

func mug() cart.Item {
	return cart.Item{ID: "p1", Title: "Mug", ImageURL: "u", Price: 10, Quantity: 5}
}

func quantities(c cart.Cart) map[string]int {
	out := make(map[string]int, len(c))
	for _, it := range c {
		out[it.ID] = it.Quantity
	}
	return out
}

func TestOpen_EmptySlot(t *testing.T) {
	s := cart.Open(context.Background(), storage.NewMemStore())

	if got := s.Items(); len(got) != 0 {
		t.Fatalf("items=%v want empty", got)
	}
	if s.Key() != "@GoMarketPlace:cartproducts" {
		t.Fatalf("key=%q", s.Key())
	}
}

func TestAddToCart_NewItemStartsAtOne(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)

	s.AddToCart(ctx, mug())

	want := cart.Cart{{ID: "p1", Title: "Mug", ImageURL: "u", Price: 10, Quantity: 1}}
	if got := s.Items(); !reflect.DeepEqual(got, want) {
		t.Fatalf("items=%+v want %+v", got, want)
	}
	if got := kv.stored(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("stored=%+v want %+v", got, want)
	}
}

func TestAddToCart_DuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)

	s.AddToCart(ctx, mug())
	s.AddToCart(ctx, cart.Item{ID: "p1", Title: "Other title", Price: 99, Quantity: 3})

	got := s.Items()
	if len(got) != 1 || got[0].Quantity != 1 || got[0].Title != "Mug" {
		t.Fatalf("items=%+v", got)
	}
	if n := kv.writeCount(); n != 1 {
		t.Fatalf("writes=%d want 1 (no-op must not persist)", n)
	}
}

func TestAddToCart_IncrementPolicy(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore(), cart.WithDuplicatePolicy(cart.IncrementExisting))

	s.AddToCart(ctx, mug())
	s.AddToCart(ctx, mug())

	if q := quantities(s.Items())["p1"]; q != 2 {
		t.Fatalf("quantity=%d want 2", q)
	}
}

func TestAddToCart_RejectsInvalidCandidate(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)

	s.AddToCart(ctx, cart.Item{ID: "", Title: "ghost"})
	s.AddToCart(ctx, cart.Item{ID: "p9", Price: -1})

	if got := s.Items(); len(got) != 0 {
		t.Fatalf("items=%+v want empty", got)
	}
	if kv.writeCount() != 0 {
		t.Fatalf("rejected adds must not persist")
	}
}

func TestAddToCart_NonFinitePriceDoesNotWedgePersistence(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)

	s.AddToCart(ctx, cart.Item{ID: "ok", Price: 1})
	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		s.AddToCart(ctx, cart.Item{ID: "bad", Price: p})
	}
	s.AddToCart(ctx, cart.Item{ID: "later", Price: 2})
	s.Increment(ctx, "ok")

	want := map[string]int{"ok": 2, "later": 1}
	if q := quantities(s.Items()); !reflect.DeepEqual(q, want) {
		t.Fatalf("memory=%v want %v", q, want)
	}

	reopened := cart.Open(ctx, kv)
	if q := quantities(reopened.Items()); !reflect.DeepEqual(q, want) {
		t.Fatalf("after reopen=%v want %v", q, want)
	}
}

func TestAddToCart_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore())

	ids := []string{"a", "b", "a", "c", "b", "a"}
	for _, id := range ids {
		s.AddToCart(ctx, cart.Item{ID: id, Price: 1})
	}

	got := s.Items()
	if len(got) != 3 {
		t.Fatalf("items=%+v want 3 distinct", got)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Fatalf("order=%+v", got)
		}
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore())
	s.AddToCart(ctx, mug())
	s.AddToCart(ctx, cart.Item{ID: "p2", Price: 3})

	s.Increment(ctx, "p1")

	q := quantities(s.Items())
	if q["p1"] != 2 || q["p2"] != 1 {
		t.Fatalf("quantities=%v", q)
	}
}

func TestIncrement_SaturatesAtMaxInt(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	payload := `[{"id":"p1","price":1,"quantity":` + strconv.Itoa(math.MaxInt) + `}]`
	if err := kv.MemStore.Set(ctx, cart.DefaultKey, payload); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := cart.Open(ctx, kv)
	s.Increment(ctx, "p1")

	if q := quantities(s.Items()); q["p1"] != math.MaxInt {
		t.Fatalf("quantity=%d want MaxInt", q["p1"])
	}
	if kv.writeCount() != 0 {
		t.Fatalf("saturated increment must not persist")
	}

	inc := cart.Open(ctx, kv, cart.WithDuplicatePolicy(cart.IncrementExisting))
	inc.AddToCart(ctx, cart.Item{ID: "p1", Price: 1})
	if q := quantities(inc.Items()); q["p1"] != math.MaxInt {
		t.Fatalf("re-add quantity=%d want MaxInt", q["p1"])
	}
	if kv.writeCount() != 0 {
		t.Fatalf("saturated re-add must not persist")
	}

	// still decrementable
	s.Decrement(ctx, "p1")
	if got := kv.stored(t); got[0].Quantity != math.MaxInt-1 {
		t.Fatalf("stored=%+v", got)
	}
}

func TestIncrement_UnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)
	s.AddToCart(ctx, mug())
	before := s.Items()

	s.Increment(ctx, "unknown")

	if got := s.Items(); !reflect.DeepEqual(got, before) {
		t.Fatalf("items changed: %+v", got)
	}
	if kv.writeCount() != 1 {
		t.Fatalf("writes=%d want 1", kv.writeCount())
	}
}

func TestDecrement(t *testing.T) {
	ctx := context.Background()

	t.Run("removes at one", func(t *testing.T) {
		kv := newRecordingKV()
		s := cart.Open(ctx, kv)
		s.AddToCart(ctx, mug())

		s.Decrement(ctx, "p1")

		if got := s.Items(); len(got) != 0 {
			t.Fatalf("items=%+v want empty", got)
		}
		if got := kv.stored(t); len(got) != 0 {
			t.Fatalf("stored=%+v want empty", got)
		}
	})

	t.Run("keeps above one", func(t *testing.T) {
		s := cart.Open(ctx, storage.NewMemStore())
		s.AddToCart(ctx, mug())
		s.Increment(ctx, "p1")
		s.Increment(ctx, "p1")

		s.Decrement(ctx, "p1")

		if q := quantities(s.Items())["p1"]; q != 2 {
			t.Fatalf("quantity=%d want 2", q)
		}
	})

	t.Run("unknown is noop", func(t *testing.T) {
		s := cart.Open(ctx, storage.NewMemStore())
		s.AddToCart(ctx, mug())

		s.Decrement(ctx, "nope")

		if q := quantities(s.Items())["p1"]; q != 1 {
			t.Fatalf("quantity=%d want 1", q)
		}
	})

	t.Run("keeps order of the rest", func(t *testing.T) {
		s := cart.Open(ctx, storage.NewMemStore())
		for _, id := range []string{"a", "b", "c"} {
			s.AddToCart(ctx, cart.Item{ID: id})
		}

		s.Decrement(ctx, "b")

		got := s.Items()
		if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
			t.Fatalf("items=%+v", got)
		}
	})
}

func TestItems_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore())
	s.AddToCart(ctx, mug())

	snap := s.Items()
	snap[0].Quantity = 42

	if q := quantities(s.Items())["p1"]; q != 1 {
		t.Fatalf("store aliased the snapshot: quantity=%d", q)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()

	first := cart.Open(ctx, kv)
	first.AddToCart(ctx, cart.Item{ID: "p1", Title: "Mug", ImageURL: "u1", Price: 10})
	first.AddToCart(ctx, cart.Item{ID: "p2", Title: "Tee", ImageURL: "u2", Price: 19.9})
	first.AddToCart(ctx, cart.Item{ID: "p3", Title: "Cap", ImageURL: "u3", Price: 7.5})
	first.Increment(ctx, "p2")
	first.Increment(ctx, "p2")
	first.Decrement(ctx, "p3")

	second := cart.Open(ctx, kv)

	if got, want := second.Items(), first.Items(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rehydrated=%+v want %+v", got, want)
	}
}

func TestHydrate_LegacyPayload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	// earlier app revisions stored whole product objects
	payload := `[{"id":"p1","title":"Mug","image_url":"u","price":10,"quantity":2,"description":"ceramic"}]`
	if err := kv.Set(ctx, cart.DefaultKey, payload); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := cart.Open(ctx, kv)

	want := cart.Cart{{ID: "p1", Title: "Mug", ImageURL: "u", Price: 10, Quantity: 2}}
	if got := s.Items(); !reflect.DeepEqual(got, want) {
		t.Fatalf("items=%+v want %+v", got, want)
	}
}

func TestHydrate_CorruptPayloadStartsEmpty(t *testing.T) {
	payloads := map[string]string{
		"garbage":       "not json",
		"truncated":     `[{"id":"p1","qua`,
		"object":        `{"id":"p1","quantity":1}`,
		"null":          `null`,
		"empty id":      `[{"id":"","quantity":1}]`,
		"duplicate id":  `[{"id":"a","quantity":1},{"id":"a","quantity":2}]`,
		"zero quantity": `[{"id":"a","quantity":0}]`,
		"negative":      `[{"id":"a","quantity":1,"price":-2}]`,
		"wrong type":    `[{"id":7,"quantity":1}]`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemStore()
			if err := kv.Set(ctx, cart.DefaultKey, payload); err != nil {
				t.Fatalf("seed: %v", err)
			}

			s := cart.Open(ctx, kv)

			if got := s.Items(); len(got) != 0 {
				t.Fatalf("items=%+v want empty", got)
			}

			// the store stays usable afterwards
			s.AddToCart(ctx, mug())
			if len(s.Items()) != 1 {
				t.Fatalf("store unusable after corrupt hydrate")
			}
		})
	}
}

func TestHydrate_ReadFailureStartsEmpty(t *testing.T) {
	kv := newRecordingKV()
	kv.getErr = errors.New("io error")

	s := cart.Open(context.Background(), kv)

	if got := s.Items(); len(got) != 0 {
		t.Fatalf("items=%+v want empty", got)
	}
}

func TestPersistFailure_KeepsInMemoryState(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	kv.setErr = errors.New("quota exceeded")

	reg := prometheus.NewRegistry()
	m := cart.NewMetrics(reg)
	s := cart.Open(ctx, kv, cart.WithMetrics(m))

	s.AddToCart(ctx, mug())
	s.Increment(ctx, "p1")

	if q := quantities(s.Items())["p1"]; q != 2 {
		t.Fatalf("quantity=%d want 2", q)
	}
	if got := testutil.ToFloat64(m.PersistFailures.WithLabelValues("add")); got != 1 {
		t.Fatalf("add persist failures=%v", got)
	}
	if got := testutil.ToFloat64(m.PersistFailures.WithLabelValues("increment")); got != 1 {
		t.Fatalf("increment persist failures=%v", got)
	}
}

func TestMetrics_TrackMutationsAndHydration(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := cart.NewMetrics(reg)

	s := cart.Open(ctx, storage.NewMemStore(), cart.WithMetrics(m))
	s.AddToCart(ctx, mug())
	s.AddToCart(ctx, mug())
	s.Increment(ctx, "p1")
	s.Decrement(ctx, "missing")

	checks := []struct {
		c    prometheus.Collector
		want float64
	}{
		{m.Hydrations.WithLabelValues("empty"), 1},
		{m.Mutations.WithLabelValues("add", "applied"), 1},
		{m.Mutations.WithLabelValues("add", "noop"), 1},
		{m.Mutations.WithLabelValues("increment", "applied"), 1},
		{m.Mutations.WithLabelValues("decrement", "noop"), 1},
		{m.Lines, 1},
		{m.Units, 2},
	}
	for i, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("check %d: got %v want %v", i, got, c.want)
		}
	}
}

func TestConcurrentIncrements_NoLostUpdates(t *testing.T) {
	ctx := context.Background()
	kv := newRecordingKV()
	s := cart.Open(ctx, kv)
	s.AddToCart(ctx, mug())

	const N = 100
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < N; i++ {
		g.Go(func() error {
			s.Increment(gctx, "p1")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if q := quantities(s.Items())["p1"]; q != N+1 {
		t.Fatalf("quantity=%d want %d", q, N+1)
	}
	if q := quantities(kv.stored(t))["p1"]; q != N+1 {
		t.Fatalf("stored quantity=%d want %d (slot must hold latest revision)", q, N+1)
	}
}

func TestConcurrentAdds_StayUnique(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore())

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	var g errgroup.Group
	for i := 0; i < 200; i++ {
		id := ids[i%len(ids)]
		g.Go(func() error {
			s.AddToCart(ctx, cart.Item{ID: id, Title: fmt.Sprintf("item %s", id), Price: 1})
			return nil
		})
	}
	_ = g.Wait()

	got := s.Items()
	if len(got) != len(ids) {
		t.Fatalf("lines=%d want %d", len(got), len(ids))
	}
	for _, it := range got {
		if it.Quantity != 1 {
			t.Fatalf("item %s quantity=%d want 1", it.ID, it.Quantity)
		}
	}
}

func TestMutation_SurvivesCanceledContext(t *testing.T) {
	kv := newRecordingKV()
	s := cart.Open(context.Background(), kv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.AddToCart(ctx, mug())

	if got := kv.stored(t); len(got) != 1 {
		t.Fatalf("stored=%+v", got)
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := cart.Open(ctx, storage.NewMemStore())

	ch, cancel := s.Subscribe()
	defer cancel()

	s.AddToCart(ctx, mug())
	s.Increment(ctx, "p1")
	s.Increment(ctx, "p1")

	select {
	case c := <-ch:
		if q := quantities(c)["p1"]; q != 3 {
			t.Fatalf("latest quantity=%d want 3", q)
		}
	case <-time.After(time.Second):
		t.Fatalf("no notification")
	}

	s.Increment(ctx, "nope")
	select {
	case c := <-ch:
		t.Fatalf("noop notified: %+v", c)
	default:
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
	cancel()
}
