package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/payledger/payledger/internal/domain"
)

// paymentProcessor is the transfer-processing core the handlers call into.
type paymentProcessor interface {
	ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.Payment, bool, error)
}

// ledgerReader covers the read paths plus account registration.
type ledgerReader interface {
	Balance(ctx context.Context, accountID int64) (int64, error)
	PaymentsFor(ctx context.Context, accountID int64) ([]domain.PaymentWithNames, error)
	CreateAccount(ctx context.Context, name string, accountType domain.AccountType) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

type Handler struct {
	reader    ledgerReader
	processor paymentProcessor
}

func NewHandler(reader ledgerReader, processor paymentProcessor) *Handler {
	return &Handler{reader: reader, processor: processor}
}

// Register wires the handler's routes onto the router under /api/v1.
func (h *Handler) Register(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	v1.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	v1.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods("GET")
	v1.HandleFunc("/accounts/{id}/payments", h.ListPayments).Methods("GET")
	v1.HandleFunc("/payments", h.CreatePayment).Methods("POST")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/payments"))
	defer timer.ObserveDuration()

	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		paymentsTotal.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/payments")
		return
	}
	// The body field is canonical; the header is accepted as an alias.
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	payment, replayed, err := h.processor.ProcessPayment(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			paymentsTotal.WithLabelValues("rejected").Inc()
			respondError(w, http.StatusBadRequest, err.Error(), "POST", "/payments")
		case errors.Is(err, domain.ErrAccountNotFound):
			paymentsTotal.WithLabelValues("rejected").Inc()
			respondError(w, http.StatusNotFound, "Account not found", "POST", "/payments")
		default:
			paymentsTotal.WithLabelValues("failed").Inc()
			respondError(w, http.StatusInternalServerError, "Failed to create payment", "POST", "/payments")
		}
		return
	}

	if replayed {
		paymentsTotal.WithLabelValues("replayed").Inc()
		respondJSON(w, http.StatusOK, payment, "POST", "/payments")
		return
	}
	paymentsTotal.WithLabelValues("created").Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%d", payment.ID))
	respondJSON(w, http.StatusCreated, payment, "POST", "/payments")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid account id", "GET", "/accounts/{id}/balance")
		return
	}

	balance, err := h.reader.Balance(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get balance", "GET", "/accounts/{id}/balance")
		return
	}
	respondJSON(w, http.StatusOK, domain.Balance{AccountID: id, BalanceCents: balance},
		"GET", "/accounts/{id}/balance")
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid account id", "GET", "/accounts/{id}/payments")
		return
	}

	payments, err := h.reader.PaymentsFor(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get payments", "GET", "/accounts/{id}/payments")
		return
	}
	if payments == nil {
		payments = []domain.PaymentWithNames{}
	}
	respondJSON(w, http.StatusOK, payments, "GET", "/accounts/{id}/payments")
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string             `json:"name"`
		Type domain.AccountType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || !req.Type.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid name or type", "POST", "/accounts")
		return
	}

	acc, err := h.reader.CreateAccount(r.Context(), req.Name, req.Type)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create account", "POST", "/accounts")
		return
	}
	respondJSON(w, http.StatusCreated, acc, "POST", "/accounts")
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.reader.ListAccounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list accounts", "GET", "/accounts")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	respondJSON(w, http.StatusOK, accounts, "GET", "/accounts")
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
