package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixrepo/internal/config"
	"pixrepo/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	var cfg config.Config
	cfg.Database.Path = filepath.Join(dir, "db", "pixrepo.db")
	cfg.Secrets.SaltFile = filepath.Join(dir, "secret.salt")
	cfg.Secrets.Passphrase = "passphrase"
	cfg.Metadata.FetchConcurrency = 2
	return cfg
}

func TestOpen(t *testing.T) {
	cfg := testConfig(t)
	svc, err := Open(context.Background(), cfg, logrus.New())
	require.NoError(t, err)
	defer svc.Close()

	assert.False(t, svc.Auth.Enabled())
	_, err = svc.Sources.Create(context.Background(), "s3 pics", domain.SourceConfig{
		Provider: domain.ProviderS3, Repo: "bucket",
	})
	require.NoError(t, err)
	list, err := svc.Sources.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewSealer_FallsBackToJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secrets.Passphrase = ""
	cfg.Auth.JWTSecret = "jwt"

	sealer, err := NewSealer(cfg, logrus.New())
	require.NoError(t, err)
	sealed, err := sealer.Seal("tok")
	require.NoError(t, err)
	assert.NotEqual(t, "tok", sealed)

	cfg.Auth.JWTSecret = ""
	_, err = NewSealer(cfg, logrus.New())
	assert.Error(t, err)
}

func TestStorageOptions_GiteeProxy(t *testing.T) {
	var cfg config.Config
	cfg.Providers.Gitee.Proxy = true
	assert.Empty(t, StorageOptions(cfg, nil).GiteeProxyBase)

	cfg.Proxy.BaseURL = "https://pix.example.com/"
	assert.Equal(t, "https://pix.example.com/api/proxy/gitee", StorageOptions(cfg, nil).GiteeProxyBase)

	cfg.Providers.Gitee.Proxy = false
	assert.Empty(t, StorageOptions(cfg, nil).GiteeProxyBase)
}
