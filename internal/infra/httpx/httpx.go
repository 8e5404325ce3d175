// Package httpx общие JSON-ответы шлюза и консоли: один формат ошибок и одна таблица кодов.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

type ErrorBody struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// StatusFor класс доменной ошибки -> HTTP код
func StatusFor(err error) int {
	switch domain.Classify(err) {
	case domain.ClassNone:
		return http.StatusOK
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassAuth:
		return http.StatusForbidden
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassTemporal, domain.ClassState:
		return http.StatusConflict
	case domain.ClassPolicy, domain.ClassArithmetic:
		return http.StatusUnprocessableEntity
	case domain.ClassExecution:
		return http.StatusBadGateway
	case domain.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError внутренние ошибки (БД, сеть) наружу не отдаются
func WriteError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteJSON(w, code, ErrorBody{Error: msg, Class: string(domain.Classify(err))})
}

// Bad ошибка разбора запроса до вызова домена
func Bad(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: msg, Class: string(domain.ClassValidation)})
}
