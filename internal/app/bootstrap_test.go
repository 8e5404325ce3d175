package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/engine"
	"github.com/xela07ax/aegis-vault/internal/infra"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	return &infra.Config{
		Auth: infra.AuthConfig{
			TokenTTL:   time.Hour,
			PublicKey:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
			PrivateKey: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		},
		Engine: infra.EngineConfig{MaxPending: 2, AuditBufferSize: 16, AuditBatchSize: 4, AuditFlushInterval: 10 * time.Millisecond},
	}
}

func TestBootstrap_InMemory(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	rt, err := Bootstrap(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Redis, "redis is optional")

	owner := "0x1111111111111111111111111111111111111111"
	v, _, err := rt.Engine.CreateVault(ctx, engine.CreateVaultParams{
		Owner:            owner,
		Authority:        "0x2222222222222222222222222222222222222222",
		DailyLimit:       1000,
		LargeTxThreshold: 500,
		AllowedTargets:   []string{"0x3333333333333333333333333333333333333333"},
	})
	require.NoError(t, err)

	// Trail сбрасывает пачки в журнал асинхронно
	assert.Eventually(t, func() bool {
		logs, err := rt.AuditLog.FetchLogs(ctx, v.ID, 10)
		return err == nil && len(logs) == 1
	}, time.Second, 10*time.Millisecond)

	signer, err := Signer(cfg.Auth)
	require.NoError(t, err)
	tok, err := signer.Issue(owner, domain.ScopeManage)
	require.NoError(t, err)
	claims, err := rt.Validator.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, owner, claims.Address)
}

func TestBootstrap_RequiresPublicKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.PublicKey = nil
	_, err := Bootstrap(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSigner_NoKey(t *testing.T) {
	_, err := Signer(infra.AuthConfig{})
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestReliabilityConfig_Overrides(t *testing.T) {
	def := engine.DefaultReliabilityConfig()
	assert.Equal(t, def, reliabilityConfig(infra.ConnectorConfig{}), "zero values keep defaults")

	rc := reliabilityConfig(infra.ConnectorConfig{CBTripFailures: 2, RateLimit: 7, Attempts: 1, Timeout: time.Second})
	assert.EqualValues(t, 2, rc.TripFailures)
	assert.Equal(t, 7.0, rc.RateLimit)
	assert.EqualValues(t, 1, rc.Attempts)
	assert.Equal(t, time.Second, rc.AttemptTimeout)
	assert.Equal(t, def.Burst, rc.Burst)
}
