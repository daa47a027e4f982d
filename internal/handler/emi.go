package handler

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/emi-engine/internal/auth"
	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/pkg/response"
)

// EMIHandler serves the learner facing agreement endpoints and the payment webhook
type EMIHandler struct {
	agreements AgreementService
	reconciler Reconciler
	validator  *validator.Validate
}

func NewEMIHandler(agreements AgreementService, reconciler Reconciler) *EMIHandler {
	return &EMIHandler{
		agreements: agreements,
		reconciler: reconciler,
		validator:  NewValidator(),
	}
}

// CreateAgreement opens an agreement for the caller after the first installment was paid
func (h *EMIHandler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Invalid or missing credentials")
		return
	}

	var req domain.CreateAgreementRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), domain.ReconcileRequest{
		UserID:            caller.UserID,
		CourseID:          req.CourseID,
		TransactionID:     req.TransactionID,
		Initial:           true,
		InstallmentCount:  req.InstallmentCount,
		InstallmentAmount: req.InstallmentAmount,
		ProcessingFee:     req.ProcessingFee,
	})
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	writeResult(w, result)
}

// ListAgreements lists the caller's agreements. ?open=true limits the list to open ones.
func (h *EMIHandler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Invalid or missing credentials")
		return
	}

	openOnly, _ := strconv.ParseBool(r.URL.Query().Get("open"))

	agreements, err := h.agreements.ListForUser(r.Context(), caller.UserID, openOnly)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, agreements)
}

func (h *EMIHandler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Invalid or missing credentials")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.BadRequest(w, "Invalid agreement id", err)
		return
	}

	agreement, err := h.agreements.GetForUser(r.Context(), caller.UserID, id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, agreement)
}

// PaymentWebhook receives payment confirmations from the gateway.
// The payload is not trusted: the transaction is verified with the gateway before anything is written.
func (h *EMIHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentWebhookRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), domain.ReconcileRequest{
		UserID:            req.UserID,
		CourseID:          req.CourseID,
		TransactionID:     req.TransactionID,
		Initial:           req.Initial,
		InstallmentCount:  req.InstallmentCount,
		InstallmentAmount: req.InstallmentAmount,
	})
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result *domain.ReconcileResult) {
	if result.Created {
		response.Created(w, result)
		return
	}
	response.Success(w, result)
}
