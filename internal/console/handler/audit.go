package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aegis-vault/internal/audit"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
	"github.com/xela07ax/aegis-vault/internal/infra/httpx"
)

type AuditService interface {
	FetchLogs(ctx context.Context, vaultID, caller string, limit int) ([]audit.AuditEvent, error)
}

type AuditHandler struct {
	service AuditService
}

func NewAuditHandler(s AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает журнал хранилища, новые события первыми
// GET /v1/vaults/{id}/audit?limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.Bad(w, "invalid limit")
			return
		}
		limit = n
	}

	logs, err := h.service.FetchLogs(r.Context(), chi.URLParam(r, "id"), auth.CallerFromContext(r.Context()), limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, logs)
}
