package cart

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"GoMarketplace/pkg/kit"
)

// Server exposes a Store to a UI shell. Handlers reach the store through the
// request context, the same way any other consumer would.
type Server struct {
	Store *Store
	Log   *zap.Logger
}

const maxItemBody = 1 << 16

func (s *Server) Routes(limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Get("/cart", s.list)

	r.Group(func(mr chi.Router) {
		mr.Use(limit)
		mr.Post("/cart/items", s.add)
		mr.Post("/cart/items/{id}/increment", s.increment)
		mr.Post("/cart/items/{id}/decrement", s.decrement)
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		s.Log.Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, st.Items())
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}

	var it Item
	if err := kit.DecodeJSON(w, r, maxItemBody, &it); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	// ids are opaque; only the empty id is refused
	if it.ID == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "id required", nil)
		return
	}
	if !validPrice(it.Price) {
		kit.WriteError(w, r, http.StatusBadRequest, "price must not be negative", nil)
		return
	}

	st.AddToCart(r.Context(), it)
	kit.WriteJSON(w, http.StatusOK, st.Items())
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	st.Increment(r.Context(), id)
	kit.WriteJSON(w, http.StatusOK, st.Items())
}

func (s *Server) decrement(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	st.Decrement(r.Context(), id)
	kit.WriteJSON(w, http.StatusOK, st.Items())
}

func (s *Server) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	st, err := FromContext(r.Context())
	if err != nil {
		s.Log.Error("cart handler without store", zap.Error(err), zap.String("path", r.URL.Path))
		kit.WriteError(w, r, http.StatusInternalServerError, "cart not configured", nil)
		return nil, false
	}
	return st, true
}

// itemID returns the {id} path segment as the client sent it. chi matches on
// RawPath when the request carried escapes such as %2F, and then hands the
// parameter back still escaped.
func itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, true
	}

	id, err := url.PathUnescape(id)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad item id", map[string]any{"cause": err.Error()})
		return "", false
	}
	return id, true
}
