package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not exist on the remote.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the remote rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned when a write carries a stale or missing revision.
	ErrConflict = errors.New("revision conflict")
)

// RemoteError is a non-2xx answer from the remote. Message is the provider's
// own message when it supplied one.
type RemoteError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *RemoteError) Error() string {
	if e.kind != nil {
		return fmt.Sprintf("%v (status %d): %s", e.kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote error (status %d): %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.kind }

// NetworkError is a transport failure; no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the path is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// classifyStatus maps a remote status and message onto the error taxonomy.
func classifyStatus(status int, message string) error {
	e := &RemoteError{StatusCode: status, Message: message}
	switch {
	case status == 404:
		e.kind = ErrNotFound
	case status == 401 || status == 403:
		e.kind = ErrUnauthorized
	case status == 409 || status == 412:
		e.kind = ErrConflict
	case (status == 400 || status == 422) && mentionsRevision(message):
		e.kind = ErrConflict
	}
	return e
}

func mentionsRevision(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "sha") ||
		strings.Contains(m, "does not match") ||
		strings.Contains(m, "already exist")
}

// networkError wraps a transport error after scrubbing credentials from any URL
// it carries.
func networkError(op string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = &url.Error{Op: uerr.Op, URL: redactURL(uerr.URL), Err: uerr.Err}
	}
	return &NetworkError{Op: op, Err: err}
}

var secretParams = []string{"access_token", "token"}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	changed := false
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	u.User = nil
	return u.String()
}
