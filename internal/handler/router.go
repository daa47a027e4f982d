package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/auth"
	"github.com/segyhp/emi-engine/pkg/response"
)

type Handlers struct {
	Health  *HealthHandler
	EMI     *EMIHandler
	Admin   *AdminHandler
	Offline *OfflineHandler
}

// NewRouter wires every route. Learner routes need a bearer token and admin
// routes additionally need the admin role. The webhook is verified against the gateway instead.
func NewRouter(h Handlers, resolver auth.Resolver, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})
	router.Use(response.LoggingMiddleware(logger))
	router.Use(response.CORSMiddleware)

	if h.Health != nil {
		router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
		router.HandleFunc("/health/ready", h.Health.Ready).Methods(http.MethodGet)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/webhooks/payments", h.EMI.PaymentWebhook).Methods(http.MethodPost)

	learner := api.PathPrefix("/emi").Subrouter()
	learner.Use(auth.Middleware(resolver))
	learner.HandleFunc("/agreements", h.EMI.CreateAgreement).Methods(http.MethodPost)
	learner.HandleFunc("/agreements", h.EMI.ListAgreements).Methods(http.MethodGet)
	learner.HandleFunc("/agreements/{id}", h.EMI.GetAgreement).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin/emi").Subrouter()
	admin.Use(auth.Middleware(resolver), auth.RequireAdmin)
	admin.HandleFunc("/agreements", h.Admin.ListAgreements).Methods(http.MethodGet)
	admin.HandleFunc("/agreements/{id}/cancel", h.Admin.CancelAgreement).Methods(http.MethodPost)
	admin.HandleFunc("/stats", h.Admin.Stats).Methods(http.MethodGet)
	admin.HandleFunc("/payments", h.Admin.RecordPayment).Methods(http.MethodPost)
	admin.HandleFunc("/sweep", h.Admin.TriggerSweep).Methods(http.MethodPost)

	admin.HandleFunc("/offline", h.Offline.Create).Methods(http.MethodPost)
	admin.HandleFunc("/offline", h.Offline.List).Methods(http.MethodGet)
	admin.HandleFunc("/offline/{id}", h.Offline.Get).Methods(http.MethodGet)
	admin.HandleFunc("/offline/{id}", h.Offline.Update).Methods(http.MethodPut)
	admin.HandleFunc("/offline/{id}", h.Offline.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/offline/{id}/payments", h.Offline.RecordPayment).Methods(http.MethodPost)

	return router
}
