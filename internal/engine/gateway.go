package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
	"github.com/xela07ax/aegis-vault/internal/infra/httpx"
)

// Заявка агента ограничена по размеру: описание и payload сами ограничены доменом
const maxSubmitBody = 8 << 10

// Gateway Data Plane для агентов: единственная операция это подача заявки на трату
type Gateway struct {
	engine *Engine
	logger *zap.Logger
}

func NewGateway(e *Engine, logger *zap.Logger) *Gateway {
	return &Gateway{engine: e, logger: logger.Named("gateway")}
}

// SubmitBody то, что агент присылает в теле запроса. Vault берется из пути, caller из токена.
type SubmitBody struct {
	Amount      uint64            `json:"amount"`
	Target      string            `json:"target"`
	Kind        domain.ActionKind `json:"kind"`
	Description string            `json:"description"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
}

type SubmitResponse struct {
	*domain.Outcome
	Error string `json:"error,omitempty"`
	Class string `json:"class,omitempty"`
}

// Routes цепочка защиты: Trace-ID -> JWT -> scope -> freeze-кэш -> движок
func (g *Gateway) Routes(v auth.TokenValidator, freeze *FreezeManager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(v, g.logger))
		r.Use(auth.RequireScope(domain.ScopeSubmit))
		if freeze != nil {
			r.With(freeze.Middleware).Post("/v1/vaults/{id}/actions", g.HandleSubmit)
			return
		}
		r.Post("/v1/vaults/{id}/actions", g.HandleSubmit)
	})
	return r
}

func (g *Gateway) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteJSON(w, http.StatusRequestEntityTooLarge, httpx.ErrorBody{Error: "request body too large"})
			return
		}
		if errors.Is(err, io.EOF) {
			httpx.Bad(w, "empty request body")
			return
		}
		httpx.Bad(w, "invalid request body")
		return
	}

	out, err := g.engine.Submit(r.Context(), domain.SubmitRequest{
		VaultID:     chi.URLParam(r, "id"),
		Caller:      auth.CallerFromContext(r.Context()),
		Amount:      body.Amount,
		Target:      body.Target,
		Kind:        body.Kind,
		Description: body.Description,
		Payload:     body.Payload,
	})
	if err != nil {
		code := httpx.StatusFor(err)
		resp := SubmitResponse{Outcome: out, Error: err.Error(), Class: string(domain.Classify(err))}
		if code == http.StatusInternalServerError {
			g.logger.Error("submit failed", zap.String("trace_id", TraceIDFromContext(r.Context())), zap.Error(err))
			resp.Error = "internal error"
			resp.Outcome.Reason = resp.Error
		}
		httpx.WriteJSON(w, code, resp)
		return
	}

	code := http.StatusOK
	if out.Kind == domain.OutcomeDeferred {
		code = http.StatusAccepted
	}
	httpx.WriteJSON(w, code, SubmitResponse{Outcome: out})
}
