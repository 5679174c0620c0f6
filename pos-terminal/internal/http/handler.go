// Package http is the terminal's local control API for thin screens and
// browser-side decoders.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/backend"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/fjod/go_pos/pos-terminal/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 16

type Terminal interface {
	View() session.View
	Cart() session.CartView
	Arm()
	AddScanned() (domain.Product, error)
	Quote() (domain.Quote, error)
	Purchase(ctx context.Context, confirm func(domain.Quote) bool) (domain.Receipt, error)
	Health(ctx context.Context) ([]byte, error)
}

type CodeSink interface {
	Push(code string) bool
}

type Handler struct {
	term    Terminal
	sink    CodeSink
	timeout time.Duration
	log     *zap.Logger
}

func NewHandler(term Terminal, sink CodeSink, timeout time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{term: term, sink: sink, timeout: timeout, log: log}
}

// NewRouter mounts the handler with the middleware stack used in production.
func NewRouter(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Get("/health", h.Health)
	r.Post("/scans", h.Scan)
	r.Post("/scan/arm", h.Arm)
	r.Get("/session", h.Session)
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.Cart)
		r.Post("/items", h.AddItem)
	})
	r.Route("/purchase", func(r chi.Router) {
		r.Get("/quote", h.Quote)
		r.Post("/", h.Purchase)
	})

	return otelhttp.NewHandler(r, "pos-terminal")
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ScanRequest struct {
	Code string `json:"code"`
}

type ScanResponse struct {
	Accepted bool `json:"accepted"`
}

type AddItemResponse struct {
	Product domain.Product   `json:"product"`
	Cart    session.CartView `json:"cart"`
}

type PurchaseRequest struct {
	Confirm bool `json:"confirm"`
}

type PurchaseResponse struct {
	Status  string          `json:"status"`
	Receipt *domain.Receipt `json:"receipt,omitempty"`
}

// Health proxies the backend health document verbatim.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	body, err := h.term.Health(ctx)
	if err != nil {
		kind, msg := session.Describe(err)
		respondError(w, http.StatusBadGateway, kind, msg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Scan is the webhook for decoders that run outside the terminal.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	respondJSON(w, http.StatusAccepted, ScanResponse{Accepted: h.sink.Push(req.Code)})
}

func (h *Handler) Arm(w http.ResponseWriter, r *http.Request) {
	h.term.Arm()
	respondJSON(w, http.StatusOK, h.term.View())
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.term.View())
}

func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.term.Cart())
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	p, err := h.term.AddScanned()
	switch {
	case errors.Is(err, session.ErrNothingScanned):
		respondError(w, http.StatusConflict, "nothing_scanned", err.Error())
		return
	case errors.Is(err, session.ErrPurchaseInProgress):
		respondError(w, http.StatusConflict, "purchase_in_progress", err.Error())
		return
	case err != nil:
		h.log.Error("add to cart", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondJSON(w, http.StatusCreated, AddItemResponse{Product: p, Cart: h.term.Cart()})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.term.Quote()
	if errors.Is(err, backend.ErrEmptyCart) {
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
		return
	}
	if err != nil {
		h.log.Error("quote", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// Purchase submits the cart when the body confirms it. An unconfirmed
// request changes nothing.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	receipt, err := h.term.Purchase(ctx, func(domain.Quote) bool { return req.Confirm })
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, PurchaseResponse{Status: "completed", Receipt: &receipt})
	case errors.Is(err, session.ErrPurchaseCancelled):
		respondJSON(w, http.StatusOK, PurchaseResponse{Status: "cancelled"})
	case errors.Is(err, backend.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, session.ErrPurchaseInProgress):
		respondError(w, http.StatusConflict, "purchase_in_progress", err.Error())
	default:
		kind, msg := session.Describe(err)
		respondError(w, http.StatusBadGateway, kind, msg)
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
