package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims выпускаются внешним identity-слоем: он уже доказал владение адресом.
type CustomClaims struct {
	Address string          `json:"address"` // Адрес вызывающего (owner или агент)
	Scopes  map[string]bool `json:"scopes"`  // "vault.submit": true, "vault.approve": true
	jwt.RegisteredClaims
}

const (
	ScopeSubmit  = "vault.submit"
	ScopeManage  = "vault.manage"
	ScopeApprove = "vault.approve"
)
