package domain

import "time"

// VaultSummary сводка для Console API: состояние хранилища и остаток дневного бюджета
type VaultSummary struct {
	Vault          *Vault  `json:"vault"`
	Policy         *Policy `json:"policy"`
	RemainingDaily uint64  `json:"remaining_daily"`
}

// NewVaultSummary считает остаток без мутации: окно сбрасывается только в копии.
func NewVaultSummary(v *Vault, p *Policy, now time.Time) *VaultSummary {
	view := *v
	view.ResetWindowIfStale(now)

	var remaining uint64
	if p != nil && p.DailyLimit > view.DailySpent {
		remaining = p.DailyLimit - view.DailySpent
	}
	return &VaultSummary{Vault: &view, Policy: p, RemainingDaily: remaining}
}
