package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pixrepo/internal/domain"
	"pixrepo/internal/repository"
	"pixrepo/internal/storage"
)

// ClientFactory builds a storage client bound to one source config.
type ClientFactory interface {
	New(ctx context.Context, cfg domain.SourceConfig) (storage.Client, error)
}

// Sealer protects provider tokens at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SourceService manages registered sources and hands out per-source image
// services.
type SourceService interface {
	Create(ctx context.Context, name string, cfg domain.SourceConfig) (*domain.Source, error)
	Get(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	Update(ctx context.Context, id, name string, cfg domain.SourceConfig) (*domain.Source, error)
	Delete(ctx context.Context, id string) error
	Images(ctx context.Context, id string) (*ImageService, error)
}

type sourceService struct {
	sources  repository.SourceRepository
	batches  repository.BatchRepository
	factory  ClientFactory
	sealer   Sealer
	imageOpt ImageOptions
	logger   *logrus.Logger
}

func NewSourceService(sources repository.SourceRepository, batches repository.BatchRepository, factory ClientFactory, sealer Sealer, opts ImageOptions) SourceService {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &sourceService{
		sources:  sources,
		batches:  batches,
		factory:  factory,
		sealer:   sealer,
		imageOpt: opts,
		logger:   logger,
	}
}

func (s *sourceService) Create(ctx context.Context, name string, cfg domain.SourceConfig) (*domain.Source, error) {
	cfg, err := ValidateSourceConfig(cfg)
	if err != nil {
		return nil, err
	}
	sealed, err := s.sealer.Seal(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("seal token: %w", err)
	}

	src := &domain.Source{
		ID:     uuid.NewString(),
		Name:   sourceName(name, cfg),
		Config: cfg,
	}
	src.Config.Token = sealed
	if err := s.sources.Create(ctx, src); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrSourceExists, src.Name)
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"source": src.ID, "provider": cfg.Provider}).Info("source registered")
	return sanitizeSource(src), nil
}

func (s *sourceService) Get(ctx context.Context, id string) (*domain.Source, error) {
	src, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeSource(src), nil
}

func (s *sourceService) get(ctx context.Context, id string) (*domain.Source, error) {
	src, err := s.sources.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return nil, err
	}
	return src, nil
}

func (s *sourceService) List(ctx context.Context) ([]domain.Source, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Source, len(sources))
	for i := range sources {
		out[i] = *sanitizeSource(&sources[i])
	}
	return out, nil
}

// Update replaces the whole config of a source. An empty token keeps the
// stored one. Clients built from the previous config are not affected; callers
// obtain a fresh ImageService afterwards.
func (s *sourceService) Update(ctx context.Context, id, name string, cfg domain.SourceConfig) (*domain.Source, error) {
	src, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	keepToken := cfg.Token == ""
	if keepToken {
		if cfg.Token, err = s.sealer.Open(src.Config.Token); err != nil {
			return nil, fmt.Errorf("open stored token: %w", err)
		}
	}
	cfg, err = ValidateSourceConfig(cfg)
	if err != nil {
		return nil, err
	}

	sealed := src.Config.Token
	switch {
	case cfg.Token == "":
		sealed = ""
	case !keepToken:
		if sealed, err = s.sealer.Seal(cfg.Token); err != nil {
			return nil, fmt.Errorf("seal token: %w", err)
		}
	}
	if strings.TrimSpace(name) != "" {
		src.Name = strings.TrimSpace(name)
	}
	src.Config = cfg
	src.Config.Token = sealed

	if err := s.sources.Update(ctx, src); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fmt.Errorf("%w: %s", ErrSourceExists, src.Name)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return nil, err
	}
	return sanitizeSource(src), nil
}

func (s *sourceService) Delete(ctx context.Context, id string) error {
	if err := s.sources.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return err
	}
	if s.batches != nil {
		if err := s.batches.DeleteBySource(ctx, id); err != nil {
			s.logger.WithError(err).WithField("source", id).Warn("delete batch history")
		}
	}
	return nil
}

// Images builds an ImageService bound to the source's current config.
func (s *sourceService) Images(ctx context.Context, id string) (*ImageService, error) {
	src, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg := src.Config
	if cfg.Token, err = s.sealer.Open(cfg.Token); err != nil {
		return nil, fmt.Errorf("open stored token: %w", err)
	}
	client, err := s.factory.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build client for source %s: %w", id, err)
	}
	return NewImageService(cfg, client, s.imageOpt), nil
}

// ValidateSourceConfig checks cfg for its provider and fills defaults.
func ValidateSourceConfig(cfg domain.SourceConfig) (domain.SourceConfig, error) {
	cfg.Provider = domain.Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.Repo = strings.TrimSpace(cfg.Repo)
	cfg.Branch = strings.TrimSpace(cfg.Branch)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.Path = strings.Trim(strings.TrimSpace(cfg.Path), "/")

	if !cfg.Provider.Valid() {
		return cfg, fmt.Errorf("%w: unknown provider %q", ErrInvalidSource, cfg.Provider)
	}
	for _, seg := range strings.Split(cfg.Path, "/") {
		if seg == ".." || seg == "." {
			return cfg, fmt.Errorf("%w: path must not contain %q", ErrInvalidSource, seg)
		}
	}
	if cfg.Repo == "" {
		return cfg, fmt.Errorf("%w: repo is required", ErrInvalidSource)
	}

	switch cfg.Provider {
	case domain.ProviderS3:
		cfg.Owner, cfg.Branch, cfg.Token = "", "", ""
	default:
		if cfg.Owner == "" {
			return cfg, fmt.Errorf("%w: owner is required", ErrInvalidSource)
		}
		if cfg.Token == "" {
			return cfg, fmt.Errorf("%w: token is required", ErrInvalidSource)
		}
		if cfg.Branch == "" {
			cfg.Branch = defaultBranch(cfg.Provider)
		}
	}
	return cfg, nil
}

func defaultBranch(p domain.Provider) string {
	if p == domain.ProviderGitee {
		return "master"
	}
	return "main"
}

func sourceName(name string, cfg domain.SourceConfig) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if cfg.Owner == "" {
		return cfg.Repo
	}
	return cfg.Owner + "/" + cfg.Repo
}

func sanitizeSource(src *domain.Source) *domain.Source {
	if src == nil {
		return nil
	}
	out := *src
	out.Config.Token = ""
	return &out
}
