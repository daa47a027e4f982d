package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/emi-engine/internal/domain"
	"github.com/segyhp/emi-engine/pkg/response"
)

// OfflineHandler serves the manually tracked EMI records of the admin console
type OfflineHandler struct {
	offline   OfflineService
	validator *validator.Validate
}

func NewOfflineHandler(offline OfflineService) *OfflineHandler {
	return &OfflineHandler{
		offline:   offline,
		validator: NewValidator(),
	}
}

func (h *OfflineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.OfflineEMIRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	view, err := h.offline.Create(r.Context(), &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Created(w, view)
}

func (h *OfflineHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		response.BadRequest(w, "Invalid pagination", err)
		return
	}

	views, err := h.offline.List(r.Context(), limit, offset)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, views)
}

func (h *OfflineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	view, err := h.offline.Get(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, view)
}

func (h *OfflineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var req domain.OfflineEMIRequest
	if err := decodeAndValidate(r, h.validator, &req); err != nil {
		response.BadRequest(w, "Invalid request", err)
		return
	}

	view, err := h.offline.Update(r.Context(), id, &req)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, view)
}

// RecordPayment marks the next month of a record as paid
func (h *OfflineHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	view, err := h.offline.RecordPayment(r.Context(), id)
	if err != nil {
		response.BusinessError(w, err)
		return
	}

	response.Success(w, view)
}

func (h *OfflineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := h.offline.Delete(r.Context(), id); err != nil {
		response.BusinessError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.BadRequest(w, "Invalid record id", err)
		return uuid.Nil, false
	}
	return id, true
}
