package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
	"github.com/xela07ax/aegis-vault/internal/infra/httpx"
)

// ApprovalService Описываем, что нам нужно от сервиса
type ApprovalService interface {
	List(ctx context.Context, vaultID, caller, status string) ([]domain.PendingAction, error)
	Get(ctx context.Context, vaultID, actionID, caller string) (*domain.PendingAction, error)
	Decide(ctx context.Context, vaultID, actionID, caller string, approved bool) (domain.ActionStatus, error)
	Expire(ctx context.Context, vaultID, actionID, caller string) (domain.ActionStatus, error)
}

type ApprovalHandler struct {
	service ApprovalService
}

func NewApprovalHandler(s ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

// Решение владельца короткое, лишнего в теле быть не должно
const maxDecideBody = 1 << 10

// DecideRequest Approved обязателен: пустое тело или опечатка в поле не должны превращаться в reject
type DecideRequest struct {
	Approved *bool `json:"approved"`
}

// DecisionResponse Error заполнен, когда решение принято, но исполнение упало (FAILED)
type DecisionResponse struct {
	ActionID string              `json:"action_id"`
	Status   domain.ActionStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
}

// List GET /v1/vaults/{id}/actions?status=...
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...

	list, err := h.service.List(r.Context(), chi.URLParam(r, "id"), auth.CallerFromContext(r.Context()), status)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GetDetails GET /v1/vaults/{id}/actions/{actionID}
func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionID"), auth.CallerFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// Decide POST /v1/vaults/{id}/actions/{actionID}/decide
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDecideBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteJSON(w, http.StatusRequestEntityTooLarge, httpx.ErrorBody{Error: "request body too large"})
			return
		}
		httpx.Bad(w, "invalid json")
		return
	}
	if req.Approved == nil {
		httpx.Bad(w, `field "approved" is required`)
		return
	}

	actionID := chi.URLParam(r, "actionID")
	status, err := h.service.Decide(r.Context(), chi.URLParam(r, "id"), actionID, auth.CallerFromContext(r.Context()), *req.Approved)
	h.writeResolution(w, actionID, status, err)
}

// Expire POST /v1/vaults/{id}/actions/{actionID}/expire
func (h *ApprovalHandler) Expire(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")
	status, err := h.service.Expire(r.Context(), chi.URLParam(r, "id"), actionID, auth.CallerFromContext(r.Context()))
	h.writeResolution(w, actionID, status, err)
}

func (h *ApprovalHandler) writeResolution(w http.ResponseWriter, actionID string, status domain.ActionStatus, err error) {
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, DecisionResponse{ActionID: actionID, Status: status})
	case status == domain.StatusFailed:
		// Переход зафиксирован, исполнитель отказал
		httpx.WriteJSON(w, http.StatusBadGateway, DecisionResponse{ActionID: actionID, Status: status, Error: err.Error()})
	default:
		httpx.WriteError(w, err)
	}
}
