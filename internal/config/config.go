package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level  string
		Format string
	}
	HTTP struct {
		Timeout time.Duration
	}
	Providers struct {
		GitHub struct {
			APIBase string
			RawBase string
		}
		Gitee struct {
			APIBase string
			RawBase string
			// Proxy enables the raw-content relay under /api/proxy/gitee.
			Proxy bool
		}
	}
	Proxy struct {
		// BaseURL is the externally visible address of this server. Gitee raw
		// URLs are rewritten onto its relay; empty leaves them on gitee.
		BaseURL string
	}
	S3 struct {
		Region     string
		Endpoint   string
		Profile    string
		PublicBase string
		PresignTTL time.Duration
	}
	Auth struct {
		JWTSecret       string
		PasswordHash    string
		TokenTTLMinutes int
	}
	Secrets struct {
		Passphrase string
		SaltFile   string
	}
	Upload struct {
		MaxConcurrentBatches int
		MaxFileSize          int64
	}
	Metadata struct {
		FetchConcurrency int
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("PIXREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/pixrepo.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("providers.github.apibase", "https://api.github.com")
	v.SetDefault("providers.github.rawbase", "https://raw.githubusercontent.com")
	v.SetDefault("providers.gitee.apibase", "https://gitee.com/api/v5")
	v.SetDefault("providers.gitee.rawbase", "https://gitee.com")
	v.SetDefault("providers.gitee.proxy", true)
	v.SetDefault("proxy.baseurl", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.publicbase", "")
	v.SetDefault("s3.presignttl", time.Hour)
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.passwordhash", "")
	v.SetDefault("auth.tokenttlminutes", 24*60)
	v.SetDefault("secrets.passphrase", "")
	v.SetDefault("secrets.saltfile", "data/secret.salt")
	v.SetDefault("upload.maxconcurrentbatches", 1)
	v.SetDefault("upload.maxfilesize", 10<<20)
	v.SetDefault("metadata.fetchconcurrency", 8)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if path := os.Getenv("PIXREPO_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		// The file is optional unless PIXREPO_CONFIG names one.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.Upload.MaxConcurrentBatches < 1 {
		return fmt.Errorf("upload.maxconcurrentbatches must be at least 1")
	}
	if c.Metadata.FetchConcurrency < 1 {
		return fmt.Errorf("metadata.fetchconcurrency must be at least 1")
	}
	if c.Auth.PasswordHash != "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtsecret is required when auth.passwordhash is set")
	}
	return nil
}

// TokenTTL is the lifetime of issued API tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
