package engine_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/engine"
)

func TestFreezeManager_L1(t *testing.T) {
	m := engine.NewFreezeManager(nil, zap.NewNop())

	m.Replace([]string{"v1", "v2"})
	assert.True(t, m.IsFrozen("v1"))

	m.Apply("v1", false)
	m.Apply("v3", true)
	assert.False(t, m.IsFrozen("v1"))
	assert.True(t, m.IsFrozen("v2"))
	assert.True(t, m.IsFrozen("v3"))
}

func TestFreezeManager_Middleware(t *testing.T) {
	m := engine.NewFreezeManager(nil, zap.NewNop())
	m.Apply("0xFrozen", true)

	r := chi.NewRouter()
	r.With(engine.TracingMiddleware, m.Middleware).Post("/v1/vaults/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", engine.TraceIDFromContext(r.Context()))
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/vaults/0xFrozen/actions", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "vault_frozen")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/vaults/0xOpen/actions", nil)
	req.Header.Set("X-Trace-ID", "trace-42")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "trace-42", rec.Header().Get("X-Trace-ID"))
}

func TestParseStateSignal(t *testing.T) {
	cases := []struct {
		in     string
		id     string
		status bool
		ok     bool
	}{
		{"v1:true", "v1", true, true},
		{"v1:false", "v1", false, true},
		{"v1:on", "v1", true, true},
		{"v1:off", "v1", false, true},
		{"v1", "", false, false},
		{":true", "", false, false},
		{"v1:maybe", "", false, false},
	}
	for _, tc := range cases {
		id, status, err := engine.ParseStateSignal(tc.in)
		if !tc.ok {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.id, id)
		assert.Equal(t, tc.status, status)
	}
}
