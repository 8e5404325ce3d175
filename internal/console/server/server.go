package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/console/handler"
	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256). Токены выпускает внешний identity-слой.
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	vaultHandler    *handler.VaultHandler    // /v1/vaults
	approvalHandler *handler.ApprovalHandler // /v1/vaults/{id}/actions (HITL)
	auditHandler    *handler.AuditHandler    // /v1/vaults/{id}/audit
}

// NewConsoleServer инициализирует сервер владельца со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	vaultH *handler.VaultHandler,
	approvalH *handler.ApprovalHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		vaultHandler:    vaultH,
		approvalHandler: approvalH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Route("/v1/vaults", func(r chi.Router) {
			r.With(auth.RequireScope(domain.ScopeManage)).Post("/", s.vaultHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				// Просмотр и expire доступны любому держателю токена, права проверяет сервис
				r.Get("/", s.vaultHandler.Get)
				r.Get("/policy", s.vaultHandler.Policy)
				r.Get("/actions", s.approvalHandler.List)
				r.Get("/actions/{actionID}", s.approvalHandler.GetDetails)
				r.Post("/actions/{actionID}/expire", s.approvalHandler.Expire)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireScope(domain.ScopeManage))
					r.Post("/deposit", s.vaultHandler.Deposit)
					r.Post("/freeze", s.vaultHandler.Freeze) // Мгновенная блокировка (Kill-switch)
					r.Post("/unfreeze", s.vaultHandler.Unfreeze)
					r.Get("/audit", s.auditHandler.GetLogs)
				})

				// Human-in-the-loop
				r.With(auth.RequireScope(domain.ScopeApprove)).
					Post("/actions/{actionID}/decide", s.approvalHandler.Decide)
			})
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
