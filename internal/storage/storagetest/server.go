// Package storagetest provides an in-memory content API that behaves like the
// GitHub and Gitee "contents" endpoints, including revision checks.
package storagetest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

type file struct {
	content []byte
	sha     string
}

// Fault lets a test force a status for a request. Returning 0 lets the
// request through.
type Fault func(method, path string) (status int, message string)

// Server is a fake content repository.
type Server struct {
	*httptest.Server

	gitee bool
	token string

	mu       sync.Mutex
	files    map[string]file
	requests []string
	fault    Fault
}

// NewGitHub starts a fake that speaks the GitHub dialect. An empty token
// disables credential checks.
func NewGitHub(t testing.TB, token string) *Server {
	return start(t, false, token)
}

// NewGitee starts a fake that speaks the Gitee dialect.
func NewGitee(t testing.TB, token string) *Server {
	return start(t, true, token)
}

func start(t testing.TB, gitee bool, token string) *Server {
	s := &Server{gitee: gitee, token: token, files: make(map[string]file)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// APIBase is the base URL a client should be configured with.
func (s *Server) APIBase() string {
	if s.gitee {
		return s.URL + "/api/v5"
	}
	return s.URL
}

// SetFault installs (or clears, with nil) a fault injector.
func (s *Server) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// Seed stores content at path and returns its revision.
func (s *Server) Seed(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha := blobSHA(content)
	s.files[strings.Trim(path, "/")] = file{content: content, sha: sha}
	return sha
}

// File returns the stored content and revision at path.
func (s *Server) File(path string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[strings.Trim(path, "/")]
	return f.content, f.sha, ok
}

// Paths lists every stored path in order.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Requests returns "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts served requests with the given method whose path ends with suffix.
func (s *Server) CountRequests(method, suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		m, p, _ := strings.Cut(r, " ")
		if m == method && strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

type writeBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	idx := strings.Index(r.URL.Path, "/contents")
	if !strings.Contains(r.URL.Path, "/repos/") || idx < 0 {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	path := strings.Trim(r.URL.Path[idx+len("/contents"):], "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+path)

	if !s.authorized(r) {
		writeMessage(w, http.StatusUnauthorized, "Bad credentials")
		return
	}
	if s.fault != nil {
		if status, msg := s.fault(r.Method, path); status != 0 {
			writeMessage(w, status, msg)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		s.get(w, path)
	case http.MethodPut, http.MethodPost:
		s.write(w, r, path)
	case http.MethodDelete:
		s.delete(w, r, path)
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if s.gitee {
		return r.URL.Query().Get("access_token") == s.token
	}
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *Server) get(w http.ResponseWriter, path string) {
	if f, ok := s.files[path]; ok {
		entry := s.entry(path, f)
		entry["content"] = base64.StdEncoding.EncodeToString(f.content)
		entry["encoding"] = "base64"
		writeJSON(w, http.StatusOK, entry)
		return
	}

	prefix := path + "/"
	if path == "" {
		prefix = ""
	}
	children := map[string]map[string]any{}
	for p, f := range s.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if name, _, isDir := strings.Cut(rest, "/"); isDir {
			children[name] = map[string]any{"type": "dir", "name": name, "path": prefix + name, "sha": "", "size": 0}
		} else {
			children[rest] = s.entry(p, f)
		}
	}
	if len(children) == 0 {
		if s.gitee {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}

	names := make([]string, 0, len(children))
	for n := range children {
		names = append(names, n)
	}
	sort.Strings(names)
	list := make([]map[string]any, 0, len(names))
	for _, n := range names {
		list = append(list, children[n])
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, path string) {
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "content is not valid Base64")
		return
	}

	existing, exists := s.files[path]
	switch {
	case s.gitee && r.Method == http.MethodPost && exists:
		writeMessage(w, http.StatusBadRequest, "A file with this name already exists")
		return
	case s.gitee && r.Method == http.MethodPut && !exists:
		writeMessage(w, http.StatusNotFound, "File Not Found")
		return
	case exists && body.SHA == "":
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case exists && body.SHA != existing.sha:
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, body.SHA))
		return
	case !exists && body.SHA != "":
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, body.SHA))
		return
	}

	f := file{content: content, sha: blobSHA(content)}
	s.files[path] = f
	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"content": s.entry(path, f),
		"commit":  map[string]any{"message": body.Message},
	})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request, path string) {
	var body writeBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	existing, ok := s.files[path]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	if body.SHA != existing.sha {
		writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, body.SHA))
		return
	}
	delete(s.files, path)
	writeJSON(w, http.StatusOK, map[string]any{"content": nil})
}

func (s *Server) entry(path string, f file) map[string]any {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	return map[string]any{
		"type":         "file",
		"name":         name,
		"path":         path,
		"sha":          f.sha,
		"size":         len(f.content),
		"download_url": s.URL + "/download/" + path,
		"html_url":     s.URL + "/blob/" + path,
	}
}

func blobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
