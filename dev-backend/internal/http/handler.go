// Package http serves the product master and purchase endpoints the terminal
// talks to.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_pos/dev-backend/internal/domain"
	"github.com/fjod/go_pos/dev-backend/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	apiVersion         = "1.0.0"
	defaultListLimit   = 100
	maxRequestBodySize = 1 << 20
	standardTaxCD      = "10"
)

type Handler struct {
	repo    repository.RepoInterface
	taxRate decimal.Decimal
	log     *zap.Logger
}

func NewHandler(repo repository.RepoInterface, taxRate decimal.Decimal, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repo, taxRate: taxRate, log: log}
}

func NewRouter(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/code/{code}", h.ProductByCode)
			r.Get("/{id}", h.ProductByID)
		})
		r.Post("/purchase", h.Purchase)
		r.Get("/transactions/{id}", h.Transaction)
	})

	return otelhttp.NewHandler(r, "dev-backend")
}

// ErrorResponse keeps the {"detail": ...} shape existing clients parse.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

type ProductListResponse struct {
	Count    int               `json:"count"`
	Products []*domain.Product `json:"products"`
}

type PurchaseRequest struct {
	Items []domain.Product `json:"items"`
	// Optional terminal identification, stored on the transaction header.
	EmployeeCD string `json:"emp_cd,omitempty"`
	StoreCD    string `json:"store_cd,omitempty"`
	PosNo      string `json:"pos_no,omitempty"`
}

type PurchaseResponse struct {
	TransactionID int64 `json:"transaction_id"`
	ItemsCount    int   `json:"items_count"`
	TotalAmount   int64 `json:"total_amount"`
}

type TransactionResponse struct {
	ID          int64                       `json:"TRD_ID"`
	CreatedAt   time.Time                   `json:"DATETIME"`
	EmployeeCD  string                      `json:"EMP_CD,omitempty"`
	StoreCD     string                      `json:"STORE_CD,omitempty"`
	PosNo       string                      `json:"POS_NO,omitempty"`
	TotalAmount int64                       `json:"TOTAL_AMT"`
	TotalExTax  int64                       `json:"TTL_AMT_EX_TAX"`
	Details     []TransactionDetailResponse `json:"details"`
}

type TransactionDetailResponse struct {
	DetailID     int64  `json:"DTL_ID"`
	ProductID    int64  `json:"PRD_ID"`
	ProductCode  string `json:"PRD_CODE"`
	ProductName  string `json:"PRD_NAME"`
	ProductPrice int64  `json:"PRD_PRICE"`
	TaxCD        string `json:"TAX_CD,omitempty"`
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "POS API",
		"version": apiVersion,
		"endpoints": map[string]string{
			"health":          "/health",
			"products":        "/api/products/",
			"product_by_id":   "/api/products/{product_id}",
			"product_by_code": "/api/products/code/{code}",
			"purchase":        "/api/purchase",
		},
	})
}

// Health always answers 200; a broken database shows up in the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := h.repo.Ping(r.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: dbStatus, Version: apiVersion})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	skip, err := queryUint(r, "skip", 0)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	limit, err := queryUint(r, "limit", defaultListLimit)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	products, err := h.repo.ListProducts(r.Context(), skip, limit)
	if err != nil {
		h.internalError(w, "list products", err)
		return
	}
	respondJSON(w, http.StatusOK, ProductListResponse{Count: len(products), Products: products})
}

func (h *Handler) ProductByCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.ProductByCode(r.Context(), pathParam(r, "code"))
	h.respondProduct(w, p, err)
}

func (h *Handler) ProductByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "product_id must be an integer")
		return
	}
	p, err := h.repo.ProductByID(r.Context(), id)
	h.respondProduct(w, p, err)
}

func (h *Handler) respondProduct(w http.ResponseWriter, p *domain.Product, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "商品が見つかりません")
	case err != nil:
		h.internalError(w, "get product", err)
	default:
		respondJSON(w, http.StatusOK, p)
	}
}

// Purchase records one transaction. total_amount in the response is the
// pre-tax sum; TOTAL_AMT on the stored header includes tax.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	trx := &domain.Transaction{
		EmployeeCD: req.EmployeeCD,
		StoreCD:    req.StoreCD,
		PosNo:      req.PosNo,
		Details:    make([]domain.TransactionDetail, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		if item.Price < 0 {
			respondError(w, http.StatusBadRequest, "item price must not be negative")
			return
		}
		trx.TotalExTax += item.Price
		trx.Details = append(trx.Details, domain.TransactionDetail{
			ProductID:    item.ID,
			ProductCode:  item.Code,
			ProductName:  item.Name,
			ProductPrice: item.Price,
			TaxCD:        standardTaxCD,
		})
	}
	trx.TotalAmount = decimal.NewFromInt(trx.TotalExTax).
		Mul(decimal.NewFromInt(1).Add(h.taxRate)).
		Floor().
		IntPart()

	if err := h.repo.CreateTransaction(r.Context(), trx); err != nil {
		h.internalError(w, "create transaction", err)
		return
	}

	h.log.Info("purchase recorded",
		zap.Int64("transaction_id", trx.ID),
		zap.Int("items_count", len(trx.Details)),
		zap.Int64("total_ex_tax", trx.TotalExTax),
		zap.Int64("total_amount", trx.TotalAmount),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	respondJSON(w, http.StatusOK, PurchaseResponse{
		TransactionID: trx.ID,
		ItemsCount:    len(trx.Details),
		TotalAmount:   trx.TotalExTax,
	})
}

func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "transaction_id must be an integer")
		return
	}

	trx, err := h.repo.Transaction(r.Context(), id)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		respondError(w, http.StatusNotFound, "取引が見つかりません")
		return
	}
	if err != nil {
		h.internalError(w, "get transaction", err)
		return
	}

	resp := TransactionResponse{
		ID:          trx.ID,
		CreatedAt:   trx.CreatedAt,
		EmployeeCD:  trx.EmployeeCD,
		StoreCD:     trx.StoreCD,
		PosNo:       trx.PosNo,
		TotalAmount: trx.TotalAmount,
		TotalExTax:  trx.TotalExTax,
		Details:     make([]TransactionDetailResponse, 0, len(trx.Details)),
	}
	for _, d := range trx.Details {
		resp.Details = append(resp.Details, TransactionDetailResponse{
			DetailID:     d.DetailID,
			ProductID:    d.ProductID,
			ProductCode:  d.ProductCode,
			ProductName:  d.ProductName,
			ProductPrice: d.ProductPrice,
			TaxCD:        d.TaxCD,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// pathParam decodes a parameter chi matched against the escaped path, which
// it does whenever the request carried an escaped slash.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, ErrorResponse{Detail: detail})
}
