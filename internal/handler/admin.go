package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/internal/scheduler"
	"github.com/segyhp/emi-engine/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type AdminHandler struct {
	agreements AgreementService
	reconciler Reconciler
	sweeper    Sweeper
	validator  *validator.Validate
}

func NewAdminHandler(agreements AgreementService, reconciler Reconciler, sweeper Sweeper) *AdminHandler {
	return &AdminHandler{
		agreements: agreements,
		reconciler: reconciler,
		sweeper:    sweeper,
		validator:  NewValidator(),
	}
}

// ListAgreements supports ?user_id=, ?status=active,overdue, ?limit= and ?offset=
func (h *AdminHandler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.AgreementFilter{UserID: query.Get("user_id")}

	if raw := query.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, ok := domain.ParseAgreementStatus(strings.TrimSpace(s))
			if !ok {
				response.BadRequest(w, "Invalid status filter", errors.New("unknown status "+s))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	limit, offset, err := pagination(r)
	if err != nil {
		response.BadRequest(w, "Invalid pagination", err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	agreements, err := h.agreements.ListAll(r.Context(), filter)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, agreements)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.agreements.Stats(r.Context())
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, stats)
}

// RecordPayment marks an installment as received out of band. The gateway is not consulted.
func (h *AdminHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.AdminPaymentRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), domain.ReconcileRequest{
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		TransactionID: req.TransactionID,
		Verified:      true,
	})
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *AdminHandler) CancelAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.BadRequest(w, "Invalid agreement id", err)
		return
	}

	agreement, err := h.agreements.Cancel(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, agreement)
}

// TriggerSweep runs the due date sweep now
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Run(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrSweepLocked) {
			response.Error(w, http.StatusConflict, "A sweep is already running", nil)
			return
		}
		response.InternalServerError(w, "Sweep failed", nil)
		return
	}

	response.Success(w, report)
}

func pagination(r *http.Request) (int, int, error) {
	limit, offset := defaultPageSize, 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must not be negative")
		}
		offset = n
	}

	return limit, offset, nil
}
