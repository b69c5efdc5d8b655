package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils/response"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ClientOption func(*HTTPClient)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

// WithSessionID presents an existing guest session.
func WithSessionID(sessionID string) ClientOption {
	return func(c *HTTPClient) { c.sessionID = sessionID }
}

func WithBearerToken(token string) ClientOption {
	return func(c *HTTPClient) { c.token = token }
}

// HTTPClient talks to the /api/v1/cart routes. A guest session minted by the
// server on the first add is remembered and sent on later calls.
type HTTPClient struct {
	baseURL string
	client  *http.Client

	mu        sync.RWMutex
	sessionID string
	token     string
}

var _ CartAPI = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *HTTPClient) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// SetBearerToken switches the client to an authenticated user, e.g. after
// sign-in and before merging the guest cart.
func (c *HTTPClient) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *HTTPClient) GetCart(ctx context.Context) (*models.CartResult, error) {
	var out models.CartResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*models.AddToCartResult, error) {
	var out models.AddToCartResult
	body := models.AddToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/items", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateItem(ctx context.Context, itemID uuid.UUID, quantity int) (*models.UpdateCartItemResult, error) {
	var out models.UpdateCartItemResult
	body := models.UpdateCartItemRequest{Quantity: &quantity}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/cart/items/"+itemID.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RemoveItem(ctx context.Context, itemID uuid.UUID) (*models.RemoveFromCartResult, error) {
	var out models.RemoveFromCartResult
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cart/items/"+itemID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ClearCart(ctx context.Context) (*models.ClearCartResult, error) {
	var out models.ClearCartResult
	if err := c.do(ctx, http.MethodDelete, "/api/v1/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MergeGuestCart folds the remembered guest session into the signed-in user's
// cart. It requires a bearer token.
func (c *HTTPClient) MergeGuestCart(ctx context.Context, strategy models.MergeStrategy) (*models.MergeResult, error) {
	var out models.MergeResult
	body := models.MergeCartRequest{GuestSessionID: c.SessionID(), Strategy: strategy}
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/merge", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Success bool                    `json:"success"`
	Data    json.RawMessage         `json:"data"`
	Error   *response.ErrorResponse `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	if c.sessionID != "" {
		req.Header.Set(middleware.SessionHeader, c.sessionID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if minted := resp.Header.Get(middleware.SessionHeader); minted != "" {
		c.mu.Lock()
		c.sessionID = minted
		c.mu.Unlock()
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	return nil
}
