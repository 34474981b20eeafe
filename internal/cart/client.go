package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrBridgeBadRequest  = errors.New("cart bridge rejected request")
	ErrBridgeBadStatus   = errors.New("cart bridge bad status")
	ErrBridgeUnavailable = errors.New("cart bridge unavailable")
)

// Client talks to the UI bridge served by NewHandler.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *Client) GetCart(ctx context.Context) (Cart, error) {
	return c.do(ctx, http.MethodGet, "/cart", nil)
}

func (c *Client) Add(ctx context.Context, it Item) (Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/items", it)
}

func (c *Client) Increment(ctx context.Context, id string) (Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(id)+"/increment", nil)
}

func (c *Client) Decrement(ctx context.Context, id string) (Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(id)+"/decrement", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (Cart, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrBridgeBadRequest
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrBridgeBadStatus, resp.StatusCode)
	}

	var out Cart
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
