package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cryptopaylink/cryptopaylink/pkg/core"
	"github.com/cryptopaylink/cryptopaylink/pkg/oracle"
	"github.com/cryptopaylink/cryptopaylink/pkg/reconcile"
	"github.com/cryptopaylink/cryptopaylink/pkg/references"
	"github.com/cryptopaylink/cryptopaylink/pkg/storage"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paylink_http_requests_total",
		Help: "Total HTTP requests, labeled by status code",
	}, []string{"method", "endpoint", "status"})
)

type priceSource interface {
	GetPrice(ctx context.Context, quoteID string) (float64, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, intentID uuid.UUID) (reconcile.Outcome, error)
}

type Handler struct {
	store      storage.IntentStore
	prices     priceSource
	reconciler reconciler
	logger     *zap.Logger
	// watch, when set, is started for every created payment; it drives
	// server-side polling until the intent settles or the deadline passes
	watch func(intentID uuid.UUID)
}

func NewHandler(store storage.IntentStore, prices priceSource, r reconciler, logger *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		prices:     prices,
		reconciler: r,
		logger:     logger,
	}
}

// SetWatchFunc installs the background watcher started on payment creation.
func (h *Handler) SetWatchFunc(watch func(intentID uuid.UUID)) {
	h.watch = watch
}

type createPaymentRequest struct {
	ProductID   string `json:"product_id"`
	BuyerEmail  string `json:"buyer_email"`
	BuyerWallet string `json:"buyer_wallet"`
}

type createPaymentResponse struct {
	PaymentID    string  `json:"payment_id"`
	CryptoAmount float64 `json:"crypto_amount"`
	CryptoPrice  float64 `json:"crypto_price"`
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", "POST", "/payments")
		return
	}
	if req.ProductID == "" || req.BuyerEmail == "" || req.BuyerWallet == "" {
		h.respondError(w, http.StatusBadRequest, "missing required fields", "POST", "/payments")
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid product id", "POST", "/payments")
		return
	}
	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil || !product.Active {
		h.respondError(w, http.StatusNotFound, "product not found or inactive", "POST", "/payments")
		return
	}
	quoteID, ok := references.QuoteIDs[product.Currency]
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "no quote source for currency", "POST", "/payments")
		return
	}
	// a price failure aborts creation; a zero price must never silently
	// produce a zero-cost payment
	price, err := h.prices.GetPrice(r.Context(), quoteID)
	if err != nil {
		h.logger.Error("failed to fetch price", zap.String("quote_id", quoteID), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "price source unavailable", "POST", "/payments")
		return
	}
	quantity, err := oracle.ToCryptoQuantity(product.PriceUSD, price)
	if err != nil {
		h.logger.Error("failed to convert amount", zap.Float64("price", price), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "price source unavailable", "POST", "/payments")
		return
	}
	intent := core.PaymentIntent{
		ID:           uuid.New(),
		ProductID:    product.ID,
		BuyerEmail:   req.BuyerEmail,
		BuyerWallet:  req.BuyerWallet,
		AmountUSD:    product.PriceUSD,
		AmountCrypto: quantity,
		Currency:     product.Currency,
		Chain:        product.Chain,
		Status:       core.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := h.store.CreateIntent(r.Context(), intent); err != nil {
		h.logger.Error("failed to create intent", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to create payment", "POST", "/payments")
		return
	}
	if h.watch != nil {
		h.watch(intent.ID)
	}
	h.respondJSON(w, http.StatusCreated, createPaymentResponse{
		PaymentID:    intent.ID.String(),
		CryptoAmount: quantity,
		CryptoPrice:  price,
	}, "POST", "/payments")
}

type verifyPaymentResponse struct {
	Success         bool   `json:"success"`
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Message         string `json:"message,omitempty"`
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/{id}/verify"
	intentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payment id", "POST", endpoint)
		return
	}
	outcome, err := h.reconciler.Reconcile(r.Context(), intentID)
	switch {
	case errors.Is(err, core.ErrIntentNotFound):
		h.respondError(w, http.StatusNotFound, "payment not found", "POST", endpoint)
		return
	case errors.Is(err, core.ErrNoBuyerWallet):
		h.respondError(w, http.StatusBadRequest, "buyer wallet address not found", "POST", endpoint)
		return
	case errors.Is(err, core.ErrDuplicateTransaction):
		h.respondError(w, http.StatusConflict, "transaction already verified for another payment", "POST", endpoint)
		return
	case err != nil:
		h.logger.Error("reconciliation failed", zap.String("intent", intentID.String()), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "verification failed", "POST", endpoint)
		return
	}
	intent, err := h.store.GetIntent(r.Context(), intentID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "verification failed", "POST", endpoint)
		return
	}
	resp := verifyPaymentResponse{
		Success: intent.Status == core.StatusConfirmed,
		Status:  string(intent.Status),
	}
	switch outcome {
	case reconcile.OutcomeConfirmed:
		resp.TransactionHash = intent.TxHash
		resp.Message = "payment verified successfully"
	case reconcile.OutcomeAlreadyConfirmed:
		resp.TransactionHash = intent.TxHash
		resp.Message = "payment already confirmed"
	case reconcile.OutcomePending:
		resp.Message = "payment not found or not yet confirmed on blockchain"
	case reconcile.OutcomeFailed:
		resp.Message = "payment failed"
	}
	h.respondJSON(w, http.StatusOK, resp, "POST", endpoint)
}

type paymentResponse struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"product_id"`
	AmountUSD       float64 `json:"amount_usd"`
	AmountCrypto    float64 `json:"amount_crypto"`
	Currency        string  `json:"currency"`
	Chain           string  `json:"chain"`
	Status          string  `json:"status"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
	CreatedAt       string  `json:"created_at"`
	ConfirmedAt     string  `json:"confirmed_at,omitempty"`
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/{id}"
	intentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payment id", "GET", endpoint)
		return
	}
	intent, err := h.store.GetIntent(r.Context(), intentID)
	if errors.Is(err, core.ErrIntentNotFound) {
		h.respondError(w, http.StatusNotFound, "payment not found", "GET", endpoint)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to load payment", "GET", endpoint)
		return
	}
	resp := paymentResponse{
		ID:              intent.ID.String(),
		ProductID:       intent.ProductID.String(),
		AmountUSD:       intent.AmountUSD,
		AmountCrypto:    intent.AmountCrypto,
		Currency:        string(intent.Currency),
		Chain:           string(intent.Chain),
		Status:          string(intent.Status),
		TransactionHash: intent.TxHash,
		CreatedAt:       intent.CreatedAt.Format(time.RFC3339),
	}
	if !intent.ConfirmedAt.IsZero() {
		resp.ConfirmedAt = intent.ConfirmedAt.Format(time.RFC3339)
	}
	h.respondJSON(w, http.StatusOK, resp, "GET", endpoint)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/healthz")
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
