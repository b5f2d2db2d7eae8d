package storage

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"pixrepo/internal/domain"
)

// Options configures how clients reach their providers.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
	Logger    *logrus.Logger

	GitHubAPIBase string
	GitHubRawBase string
	GiteeAPIBase  string
	GiteeRawBase  string
	// GiteeProxyBase routes gitee raw URLs through the raw-content proxy.
	GiteeProxyBase string

	S3Region     string
	S3Endpoint   string
	S3Profile    string
	S3PublicBase string
	PresignTTL   time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return "pixrepo"
	}
	return o.UserAgent
}

func (o Options) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Factory builds a fresh Client for each SourceConfig. Clients capture their
// config at construction; a changed config needs a new client.
type Factory struct {
	opts Options

	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// New returns a client bound to cfg.
func (f *Factory) New(ctx context.Context, cfg domain.SourceConfig) (Client, error) {
	switch cfg.Provider {
	case domain.ProviderGitHub:
		urls := URLNormalizer{
			Provider: cfg.Provider,
			Owner:    cfg.Owner,
			Repo:     cfg.Repo,
			Branch:   cfg.Branch,
			RawBase:  orDefault(f.opts.GitHubRawBase, DefaultGitHubRawBase),
		}
		return newRESTClient(cfg, githubDialect(orDefault(f.opts.GitHubAPIBase, DefaultGitHubAPIBase)), urls, f.opts), nil
	case domain.ProviderGitee:
		urls := URLNormalizer{
			Provider:  cfg.Provider,
			Owner:     cfg.Owner,
			Repo:      cfg.Repo,
			Branch:    cfg.Branch,
			RawBase:   orDefault(f.opts.GiteeRawBase, DefaultGiteeRawBase),
			ProxyBase: f.opts.GiteeProxyBase,
		}
		return newRESTClient(cfg, giteeDialect(orDefault(f.opts.GiteeAPIBase, DefaultGiteeAPIBase)), urls, f.opts), nil
	case domain.ProviderS3:
		client, err := f.s3(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3Client(client, cfg.Repo, f.opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func (f *Factory) s3(ctx context.Context) (*s3.Client, error) {
	f.s3Once.Do(func() {
		f.s3Client, f.s3Err = buildS3(ctx, f.opts)
	})
	return f.s3Client, f.s3Err
}

func buildS3(ctx context.Context, opts Options) (*s3.Client, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(orDefault(opts.S3Region, "us-east-1")),
		awscfg.WithHTTPClient(&http.Client{Timeout: opts.timeout()}),
	}
	if opts.S3Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(opts.S3Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	opts.logger().Infof("s3 provider ready (region %s)", orDefault(opts.S3Region, "us-east-1"))
	return client, nil
}
