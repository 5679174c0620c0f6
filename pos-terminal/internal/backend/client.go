// Package backend talks to the POS REST service: product lookup by code,
// purchase submission and the health check.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_pos/pkg/circuitbreaker"
	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	headerRequestID   = "X-Request-ID"
	headerIdempotency = "X-Idempotency-Key"

	// maxErrorBody bounds how much of a failed response is kept in a ServiceError.
	maxErrorBody = 512
)

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request. Zero leaves requests bounded only by the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func NewClient(baseURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupProduct fetches the product registered under code.
func (c *Client) LookupProduct(ctx context.Context, code string) (domain.Product, error) {
	const op = "lookup product"

	var p domain.Product
	err := c.call(ctx, op, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/api/products/code/"+url.PathEscape(code), nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &NotFoundError{Code: code}
		}
		if err := checkStatus(op, resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode product: %w", err)}
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	logger.FromContext(ctx, c.log).Debug("product looked up",
		zap.String("code", code),
		zap.Int64("product_id", p.ID))
	return p, nil
}

type purchaseRequest struct {
	Items []domain.Product `json:"items"`
}

// SubmitPurchase sends lines as a single transaction. The returned receipt
// carries the backend's transaction id and totals; callers fill in the
// tax-inclusive figure they confirmed.
func (c *Client) SubmitPurchase(ctx context.Context, lines []domain.CartLine) (domain.Receipt, error) {
	const op = "submit purchase"

	if len(lines) == 0 {
		return domain.Receipt{}, ErrEmptyCart
	}

	body := purchaseRequest{Items: make([]domain.Product, len(lines))}
	for i, l := range lines {
		body.Items[i] = l.Product
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Receipt{}, &PurchaseError{Cause: err}
	}

	idempotencyKey := uuid.NewString()

	var receipt domain.Receipt
	err = c.call(ctx, op, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/api/purchase", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerIdempotency, idempotencyKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		if err := checkStatus(op, resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode purchase response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return domain.Receipt{}, &PurchaseError{Cause: err}
	}

	receipt.Lines = append([]domain.CartLine(nil), lines...)
	receipt.CompletedAt = c.now()

	logger.FromContext(ctx, c.log).Info("purchase submitted",
		zap.Stringer("transaction_id", receipt.TransactionID),
		zap.Int("items_count", receipt.ItemsCount),
		zap.Int64("total_amount", receipt.TotalAmount))
	return receipt, nil
}

// Health returns the body of GET /health untouched.
func (c *Client) Health(ctx context.Context) ([]byte, error) {
	const op = "health"

	var body []byte
	err := c.call(ctx, op, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		if err := checkStatus(op, resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		return nil
	})
	return body, err
}

func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// call applies the per-request timeout and runs fn through the breaker.
// No call is ever repeated.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.breaker.Do(func() error { return fn(ctx) })
	if circuitbreaker.IsOpen(err) {
		return &TransportError{Op: op, Err: err}
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, requestID(ctx))
	return req, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ServiceError{
		Op:     op,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}

type requestIDKey struct{}

// ContextWithRequestID makes outbound calls reuse an inbound request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
