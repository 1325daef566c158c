package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the payment endpoints onto a gorilla router.
func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	s.HandleFunc("/payments/{id}", h.GetPayment).Methods(http.MethodGet)
	s.HandleFunc("/payments/{id}/verify", h.VerifyPayment).Methods(http.MethodPost)
	return r
}
