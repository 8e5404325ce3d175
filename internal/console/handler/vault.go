package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
	"github.com/xela07ax/aegis-vault/internal/infra/httpx"
)

// VaultService Описываем, что нам нужно от сервиса
type VaultService interface {
	Create(ctx context.Context, caller string, params engine.CreateVaultParams) (*domain.VaultSummary, error)
	Get(ctx context.Context, vaultID, caller string) (*domain.VaultSummary, error)
	Policy(ctx context.Context, vaultID, caller string) (*domain.Policy, error)
	Deposit(ctx context.Context, vaultID, caller string, amount uint64) (uint64, error)
	Freeze(ctx context.Context, vaultID, caller string) error
	Unfreeze(ctx context.Context, vaultID, caller string) error
}

type VaultHandler struct {
	service VaultService
}

func NewVaultHandler(s VaultService) *VaultHandler {
	return &VaultHandler{service: s}
}

// CreateVaultRequest owner берется из токена, cooldown в секундах
type CreateVaultRequest struct {
	Authority          string   `json:"authority"`
	DailyLimit         uint64   `json:"daily_spend_limit"`
	LargeTxThreshold   uint64   `json:"large_tx_threshold"`
	AllowedTargets     []string `json:"allowed_targets"`
	LargeTxCooldownSec int64    `json:"large_tx_cooldown_sec"`
}

type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

type DepositResponse struct {
	VaultID string `json:"vault_id"`
	Balance uint64 `json:"balance"`
}

// Create POST /v1/vaults
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Bad(w, "invalid json")
		return
	}

	summary, err := h.service.Create(r.Context(), auth.CallerFromContext(r.Context()), engine.CreateVaultParams{
		Authority:        req.Authority,
		DailyLimit:       req.DailyLimit,
		LargeTxThreshold: req.LargeTxThreshold,
		AllowedTargets:   req.AllowedTargets,
		LargeTxCooldown:  time.Duration(req.LargeTxCooldownSec) * time.Second,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, summary)
}

// Get GET /v1/vaults/{id}
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), auth.CallerFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// Policy GET /v1/vaults/{id}/policy
func (h *VaultHandler) Policy(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Policy(r.Context(), chi.URLParam(r, "id"), auth.CallerFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Deposit POST /v1/vaults/{id}/deposit
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Bad(w, "invalid json")
		return
	}

	id := chi.URLParam(r, "id")
	balance, err := h.service.Deposit(r.Context(), id, auth.CallerFromContext(r.Context()), req.Amount)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, DepositResponse{VaultID: id, Balance: balance})
}

// Freeze POST /v1/vaults/{id}/freeze (Kill-switch)
func (h *VaultHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.service.Freeze, "frozen")
}

// Unfreeze POST /v1/vaults/{id}/unfreeze
func (h *VaultHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.service.Unfreeze, "active")
}

func (h *VaultHandler) setActive(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, vaultID, caller string) error, state string) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id, auth.CallerFromContext(r.Context())); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"vault_id": id, "state": state})
}
