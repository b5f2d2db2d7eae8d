package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"pixrepo/internal/domain"
)

const maxErrorBody = 4 << 10

// dialect captures what differs between content-API providers.
type dialect struct {
	apiBase      string
	createMethod string
	updateMethod string
	// authorize attaches the credential to the client's transport.
	authorize func(base http.RoundTripper, token string) http.RoundTripper
}

func githubDialect(apiBase string) dialect {
	return dialect{
		apiBase:      apiBase,
		createMethod: http.MethodPut,
		updateMethod: http.MethodPut,
		authorize: func(base http.RoundTripper, token string) http.RoundTripper {
			return &oauth2.Transport{
				Base:   base,
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			}
		},
	}
}

func giteeDialect(apiBase string) dialect {
	return dialect{
		apiBase:      apiBase,
		createMethod: http.MethodPost,
		updateMethod: http.MethodPut,
		authorize: func(base http.RoundTripper, token string) http.RoundTripper {
			return &queryTokenTransport{base: base, token: token}
		},
	}
}

// queryTokenTransport adds the credential as an access_token query parameter.
type queryTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *queryTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	q := clone.URL.Query()
	q.Set("access_token", t.token)
	clone.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(clone)
}

// RESTClient talks to a GitHub-style "contents" REST API.
type RESTClient struct {
	cfg       domain.SourceConfig
	d         dialect
	http      *http.Client
	urls      URLNormalizer
	userAgent string
	logger    *logrus.Entry
}

func newRESTClient(cfg domain.SourceConfig, d dialect, urls URLNormalizer, opts Options) *RESTClient {
	base := http.DefaultTransport
	if opts.Transport != nil {
		base = opts.Transport
	}
	transport := base
	if cfg.Token != "" {
		transport = d.authorize(base, cfg.Token)
	}
	return &RESTClient{
		cfg:       cfg,
		d:         d,
		http:      &http.Client{Transport: transport, Timeout: opts.timeout()},
		urls:      urls,
		userAgent: opts.userAgent(),
		logger: opts.logger().WithFields(logrus.Fields{
			"provider": cfg.Provider,
			"repo":     cfg.Owner + "/" + cfg.Repo,
		}),
	}
}

type contentEntry struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
	HTMLURL     string `json:"html_url"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
}

func (e contentEntry) toEntry() Entry {
	return Entry{
		Name:        e.Name,
		Path:        e.Path,
		Type:        e.Type,
		Revision:    e.SHA,
		Size:        e.Size,
		DownloadURL: e.DownloadURL,
		HTMLURL:     e.HTMLURL,
	}
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type writeResponse struct {
	Content contentEntry `json:"content"`
}

func (c *RESTClient) contentsURL(path string) string {
	u := strings.TrimRight(c.d.apiBase, "/") + "/repos/" + escapePath(c.cfg.Owner) + "/" + escapePath(c.cfg.Repo) + "/contents"
	if p := escapePath(path); p != "" {
		u += "/" + p
	}
	return u
}

func (c *RESTClient) refQuery() string {
	if c.cfg.Branch == "" {
		return ""
	}
	return "?ref=" + escapePath(c.cfg.Branch)
}

// fetch reads path and returns either a single entry or a directory listing.
func (c *RESTClient) fetch(ctx context.Context, op, path string) (*contentEntry, []contentEntry, error) {
	body, err := c.do(ctx, op, http.MethodGet, c.contentsURL(path)+c.refQuery(), nil)
	if err != nil {
		return nil, nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []contentEntry
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, nil, fmt.Errorf("%s: decode listing: %w", op, err)
		}
		return nil, list, nil
	}
	var entry contentEntry
	if err := json.Unmarshal(trimmed, &entry); err != nil {
		return nil, nil, fmt.Errorf("%s: decode entry: %w", op, err)
	}
	return &entry, nil, nil
}

func (c *RESTClient) Stat(ctx context.Context, path string) (*Entry, error) {
	entry, list, err := c.fetch(ctx, "stat "+path, path)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if len(list) == 0 {
			// Gitee answers an absent path with an empty listing.
			return nil, &RemoteError{StatusCode: http.StatusNotFound, Message: "path is absent", kind: ErrNotFound}
		}
		return &Entry{Name: lastSegment(path), Path: path, Type: EntryTypeDir}, nil
	}
	e := entry.toEntry()
	return &e, nil
}

func (c *RESTClient) Get(ctx context.Context, path string) (*File, error) {
	op := "get " + path
	entry, _, err := c.fetch(ctx, op, path)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Type == EntryTypeDir {
		return nil, &RemoteError{StatusCode: http.StatusNotFound, Message: "path is a directory", kind: ErrNotFound}
	}

	var content []byte
	switch {
	case entry.Encoding == "base64" || (entry.Encoding == "" && entry.Content != ""):
		content, err = base64.StdEncoding.DecodeString(stripNewlines(entry.Content))
		if err != nil {
			return nil, fmt.Errorf("%s: decode content: %w", op, err)
		}
	case entry.DownloadURL != "":
		// Large files come back without inline content.
		content, err = c.do(ctx, op, http.MethodGet, entry.DownloadURL, nil)
		if err != nil {
			return nil, err
		}
	}
	return &File{Entry: entry.toEntry(), Content: content}, nil
}

func (c *RESTClient) List(ctx context.Context, dir string) ([]Entry, error) {
	entry, list, err := c.fetch(ctx, "list "+dir, dir)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return nil, &RemoteError{StatusCode: http.StatusNotFound, Message: "path is not a directory", kind: ErrNotFound}
	}
	out := make([]Entry, 0, len(list))
	for _, e := range list {
		out = append(out, e.toEntry())
	}
	return out, nil
}

func (c *RESTClient) Put(ctx context.Context, path string, content []byte, opts PutOptions) (*PutResult, error) {
	method := c.d.createMethod
	if opts.Revision != "" {
		method = c.d.updateMethod
	}
	req := writeRequest{
		Message: opts.Message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.cfg.Branch,
		SHA:     opts.Revision,
	}
	body, err := c.do(ctx, "put "+path, method, c.contentsURL(path), req)
	if err != nil {
		return nil, err
	}
	var resp writeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("put %s: decode response: %w", path, err)
	}
	c.logger.WithField("path", path).Debugf("wrote blob revision %s", resp.Content.SHA)
	return &PutResult{
		Revision: resp.Content.SHA,
		RawURL:   c.urls.RawURL(path),
		HTMLURL:  resp.Content.HTMLURL,
	}, nil
}

func (c *RESTClient) Delete(ctx context.Context, path, revision, message string) error {
	req := writeRequest{
		Message: message,
		Branch:  c.cfg.Branch,
		SHA:     revision,
	}
	_, err := c.do(ctx, "delete "+path, http.MethodDelete, c.contentsURL(path), req)
	return err
}

func (c *RESTClient) RawURL(_ context.Context, path string) (string, error) {
	return c.urls.RawURL(path), nil
}

func (c *RESTClient) do(ctx context.Context, op, method, url string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w", op, classifyStatus(resp.StatusCode, errorMessage(body)))
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

var _ Client = (*RESTClient)(nil)
