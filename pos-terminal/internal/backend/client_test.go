package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_pos/pkg/circuitbreaker"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pen = domain.Product{ID: 1, Code: "4589901001018", Name: "テクワン・消せるボールペン 黒", Price: 180}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	return NewClient(srv.URL+"/", zap.NewNop(), opts...), &hits
}

func TestLookupProduct_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products/code/4589901001018", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"PRD_ID":1,"CODE":"4589901001018","NAME":"テクワン・消せるボールペン 黒","PRICE":180}`)
	})

	p, err := client.LookupProduct(context.Background(), "4589901001018")
	require.NoError(t, err)
	assert.Equal(t, pen, p)
}

func TestLookupProduct_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Product not found"}`, http.StatusNotFound)
	})

	_, err := client.LookupProduct(context.Background(), "0000000000000")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "0000000000000", nf.Code)
	assert.True(t, IsNotFound(err))
}

func TestLookupProduct_ServiceError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.LookupProduct(context.Background(), "4589901001018")

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "boom", se.Body)
	assert.False(t, IsNotFound(err))
}

func TestLookupProduct_UndecodableBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	})

	_, err := client.LookupProduct(context.Background(), "4589901001018")

	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestLookupProduct_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, zap.NewNop())
	_, err := client.LookupProduct(context.Background(), "4589901001018")

	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestLookupProduct_EscapesCode(t *testing.T) {
	var rawPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		http.NotFound(w, r)
	})

	_, err := client.LookupProduct(context.Background(), "a/b c?d")
	require.Error(t, err)
	assert.Equal(t, "/api/products/code/a%2Fb%20c%3Fd", rawPath)
}

func TestLookupProduct_Timeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := client.LookupProduct(context.Background(), "4589901001018")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLookupProduct_BreakerFailsFast(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:         "backend",
		MaxFailures:  2,
		OpenTimeout:  time.Minute,
		IsSuccessful: BreakerSuccessful,
	}, zap.NewNop())

	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := client.LookupProduct(context.Background(), "x")
		var se *ServiceError
		require.ErrorAs(t, err, &se)
	}

	_, err := client.LookupProduct(context.Background(), "x")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Equal(t, "open", client.BreakerState())
}

func TestLookupProduct_NotFoundKeepsBreakerClosed(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:         "backend",
		MaxFailures:  1,
		OpenTimeout:  time.Minute,
		IsSuccessful: BreakerSuccessful,
	}, zap.NewNop())

	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, WithBreaker(breaker))

	for i := 0; i < 3; i++ {
		_, err := client.LookupProduct(context.Background(), "unknown")
		assert.True(t, IsNotFound(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestSubmitPurchase_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/purchase", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		var body struct {
			Items []domain.Product `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []domain.Product{pen, pen}, body.Items)

		_, _ = io.WriteString(w, `{"transaction_id":17,"items_count":2,"total_amount":360}`)
	})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	lines := []domain.CartLine{{Product: pen}, {Product: pen}}
	receipt, err := client.SubmitPurchase(context.Background(), lines)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionID("17"), receipt.TransactionID)
	assert.Equal(t, 2, receipt.ItemsCount)
	assert.Equal(t, int64(360), receipt.TotalAmount)
	assert.Equal(t, lines, receipt.Lines)
	assert.Equal(t, fixed, receipt.CompletedAt)
}

func TestSubmitPurchase_EmptyCartMakesNoCall(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})

	_, err := client.SubmitPurchase(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestSubmitPurchase_Failure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"database unavailable"}`, http.StatusServiceUnavailable)
	})

	_, err := client.SubmitPurchase(context.Background(), []domain.CartLine{{Product: pen}})

	var pe *PurchaseError
	require.ErrorAs(t, err, &pe)
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
}

func TestSubmitPurchase_DoesNotRetry(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.SubmitPurchase(context.Background(), []domain.CartLine{{Product: pen}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestHealth_ReturnsBodyVerbatim(t *testing.T) {
	const body = `{"status":"healthy","database":"connected"}`
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, body)
	})

	got, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestRequestID_Propagated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-123", r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, "{}")
	})

	_, err := client.Health(ContextWithRequestID(context.Background(), "req-123"))
	require.NoError(t, err)
}

func TestBreakerSuccessful(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"not found", &NotFoundError{Code: "x"}, true},
		{"client error", &ServiceError{Status: http.StatusBadRequest}, true},
		{"server error", &ServiceError{Status: http.StatusBadGateway}, false},
		{"transport", &TransportError{Op: "x", Err: errors.New("refused")}, false},
		{"cancelled", &TransportError{Op: "x", Err: context.Canceled}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BreakerSuccessful(tt.err))
		})
	}
}
