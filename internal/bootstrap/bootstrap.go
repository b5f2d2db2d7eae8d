// Package bootstrap builds the service graph shared by the server and pixctl.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pixrepo/internal/config"
	"pixrepo/internal/metadata"
	"pixrepo/internal/repository/sqlite"
	"pixrepo/internal/secret"
	"pixrepo/internal/service"
	"pixrepo/internal/storage"
)

// Services is the wired application core.
type Services struct {
	DB      *sql.DB
	Sources service.SourceService
	Batches service.BatchService
	Auth    service.AuthService
}

func (s *Services) Close() error {
	return s.DB.Close()
}

// ConfigureLogger applies log.level and log.format.
func ConfigureLogger(logger *logrus.Logger, cfg config.Config) {
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// Open opens the database, creates its tables and wires the services on top.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Services, error) {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sourceRepo := sqlite.NewSourceRepository(db)
	batchRepo := sqlite.NewBatchRepository(db)
	if err := sourceRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init source repository: %w", err)
	}
	if err := batchRepo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init batch repository: %w", err)
	}

	sealer, err := NewSealer(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup secrets: %w", err)
	}

	factory := storage.NewFactory(StorageOptions(cfg, logger))
	return &Services{
		DB: db,
		Sources: service.NewSourceService(sourceRepo, batchRepo, factory, sealer, service.ImageOptions{
			MaxFileSize: cfg.Upload.MaxFileSize,
			Metadata:    metadata.Options{Concurrency: cfg.Metadata.FetchConcurrency, Logger: logger},
			Logger:      logger,
		}),
		Batches: service.NewBatchService(batchRepo),
		Auth:    service.NewAuthService(cfg.Auth.PasswordHash, cfg.Auth.JWTSecret, cfg.TokenTTL()),
	}, nil
}

// NewSealer falls back to the JWT secret as passphrase so a single secret is
// enough for small deployments.
func NewSealer(cfg config.Config, logger *logrus.Logger) (*secret.Sealer, error) {
	passphrase := cfg.Secrets.Passphrase
	if strings.TrimSpace(passphrase) == "" {
		passphrase = cfg.Auth.JWTSecret
		logger.Warn("secrets.passphrase is empty; sealing provider tokens with auth.jwtsecret")
	}
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("secrets.passphrase or auth.jwtsecret is required")
	}
	salt, err := secret.LoadOrCreateSalt(cfg.Secrets.SaltFile)
	if err != nil {
		return nil, err
	}
	return secret.NewSealer(passphrase, salt)
}

func StorageOptions(cfg config.Config, logger *logrus.Logger) storage.Options {
	opts := storage.Options{
		Timeout:       cfg.HTTP.Timeout,
		Logger:        logger,
		GitHubAPIBase: cfg.Providers.GitHub.APIBase,
		GitHubRawBase: cfg.Providers.GitHub.RawBase,
		GiteeAPIBase:  cfg.Providers.Gitee.APIBase,
		GiteeRawBase:  cfg.Providers.Gitee.RawBase,
		S3Region:      cfg.S3.Region,
		S3Endpoint:    cfg.S3.Endpoint,
		S3Profile:     cfg.S3.Profile,
		S3PublicBase:  cfg.S3.PublicBase,
		PresignTTL:    cfg.S3.PresignTTL,
	}
	if cfg.Providers.Gitee.Proxy && cfg.Proxy.BaseURL != "" {
		opts.GiteeProxyBase = strings.TrimRight(cfg.Proxy.BaseURL, "/") + "/api/proxy/gitee"
	}
	return opts
}
