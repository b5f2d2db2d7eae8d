package storage

import (
	"net/url"
	"strings"

	"pixrepo/internal/domain"
)

const (
	DefaultGitHubAPIBase = "https://api.github.com"
	DefaultGitHubRawBase = "https://raw.githubusercontent.com"
	DefaultGiteeAPIBase  = "https://gitee.com/api/v5"
	DefaultGiteeRawBase  = "https://gitee.com"
)

// URLNormalizer rewrites provider download URLs into raw-content URLs that a
// browser can fetch cross-origin without provider credentials.
type URLNormalizer struct {
	Provider domain.Provider
	Owner    string
	Repo     string
	Branch   string
	// RawBase is the raw-content host, e.g. https://raw.githubusercontent.com.
	RawBase string
	// ProxyBase, when set, replaces RawBase for gitee so requests go through
	// the raw-content proxy.
	ProxyBase string
}

// RawURL builds the raw-content URL for a repository path.
func (n URLNormalizer) RawURL(path string) string {
	escaped := escapePath(path)
	branch := url.PathEscape(n.Branch)
	switch n.Provider {
	case domain.ProviderGitee:
		base := strings.TrimRight(n.RawBase, "/")
		if n.ProxyBase != "" {
			base = strings.TrimRight(n.ProxyBase, "/")
		}
		return base + "/" + url.PathEscape(n.Owner) + "/" + url.PathEscape(n.Repo) + "/raw/" + branch + "/" + escaped
	default:
		return strings.TrimRight(n.RawBase, "/") + "/" + url.PathEscape(n.Owner) + "/" + url.PathEscape(n.Repo) + "/" + branch + "/" + escaped
	}
}

// Normalize returns the raw-content URL for path. When path is empty it falls
// back to rewriting downloadURL: API content URLs become raw URLs and
// credential query parameters are stripped.
func (n URLNormalizer) Normalize(path, downloadURL string) string {
	if path != "" {
		return n.RawURL(path)
	}
	if downloadURL == "" {
		return ""
	}
	u, err := url.Parse(downloadURL)
	if err != nil {
		return ""
	}
	if p, ok := n.repoPathFromAPI(u.Path); ok {
		return n.RawURL(p)
	}
	q := u.Query()
	for _, name := range secretParams {
		q.Del(name)
	}
	u.RawQuery = q.Encode()
	if n.Provider == domain.ProviderGitee && n.ProxyBase != "" {
		if rest, ok := strings.CutPrefix(u.Path, "/"+n.Owner+"/"+n.Repo+"/raw/"); ok {
			return strings.TrimRight(n.ProxyBase, "/") + "/" + n.Owner + "/" + n.Repo + "/raw/" + rest
		}
	}
	return u.String()
}

// repoPathFromAPI extracts the repository path from an API URL path such as
// /repos/o/r/contents/<p> (GitHub) or /api/v5/repos/o/r/raw/<p> (Gitee).
func (n URLNormalizer) repoPathFromAPI(p string) (string, bool) {
	prefix := "/repos/" + n.Owner + "/" + n.Repo + "/"
	idx := strings.Index(p, prefix)
	if idx < 0 {
		return "", false
	}
	rest := p[idx+len(prefix):]
	for _, kind := range []string{"contents/", "raw/"} {
		if after, ok := strings.CutPrefix(rest, kind); ok && after != "" {
			return after, true
		}
	}
	return "", false
}

func escapePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
