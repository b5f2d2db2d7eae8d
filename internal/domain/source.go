package domain

import "time"

// Provider names the remote that backs a source.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitee  Provider = "gitee"
	ProviderS3     Provider = "s3"
)

// Valid reports whether p is a provider the storage layer can talk to.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGitee, ProviderS3:
		return true
	}
	return false
}

// SourceConfig identifies one logical image bucket inside a remote repository.
// For s3 sources Repo is the bucket and Path the key prefix; Owner, Branch and
// Token are not used.
type SourceConfig struct {
	Provider Provider
	Owner    string
	Repo     string
	Branch   string
	Token    string
	Path     string
}

// Source is a named, persisted SourceConfig.
type Source struct {
	ID        string
	Name      string
	Config    SourceConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}
