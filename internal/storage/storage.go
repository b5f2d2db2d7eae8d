package storage

import (
	"context"
)

const (
	EntryTypeFile = "file"
	EntryTypeDir  = "dir"
)

// Entry is a pointer to one stored blob (or directory) as reported by a listing.
type Entry struct {
	Name        string
	Path        string
	Type        string
	Revision    string
	Size        int64
	DownloadURL string
	HTMLURL     string
}

// File is an Entry together with its decoded content.
type File struct {
	Entry
	Content []byte
}

// PutOptions conveys the commit message and the expected current revision of a
// write. An empty Revision asks for a create.
type PutOptions struct {
	Message  string
	Revision string
}

// PutResult describes the blob produced by a successful write.
type PutResult struct {
	Revision string
	RawURL   string
	HTMLURL  string
}

// Client reads and writes files by path on a content repository. It knows
// nothing about images; every call is a single authenticated round trip.
type Client interface {
	// Stat returns the entry at path without its content, or ErrNotFound.
	Stat(ctx context.Context, path string) (*Entry, error)
	// Get returns the file at path, or ErrNotFound when path is absent or a directory.
	Get(ctx context.Context, path string) (*File, error)
	// List returns the direct children of dir, or ErrNotFound when dir is absent.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Put creates (empty opts.Revision) or replaces (matching opts.Revision) the
	// blob at path. A stale or missing revision yields ErrConflict.
	Put(ctx context.Context, path string, content []byte, opts PutOptions) (*PutResult, error)
	// Delete removes the blob at path if its current revision matches.
	Delete(ctx context.Context, path, revision, message string) error
	// RawURL returns a URL that fetches the blob at path without provider auth.
	RawURL(ctx context.Context, path string) (string, error)
}

// JoinPath joins repository path segments with "/" and drops empty segments.
func JoinPath(parts ...string) string {
	out := make([]byte, 0, 64)
	for _, part := range parts {
		for len(part) > 0 && part[0] == '/' {
			part = part[1:]
		}
		for len(part) > 0 && part[len(part)-1] == '/' {
			part = part[:len(part)-1]
		}
		if part == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '/')
		}
		out = append(out, part...)
	}
	return string(out)
}
