package storage

import (
	"context"
	"errors"
)

// ResolveRevision returns the current revision of path, or "" when the path is
// absent or the remote will not say. Both are legal preconditions for a
// create. Revisions are never cached; call this immediately before the write
// that consumes it.
func ResolveRevision(ctx context.Context, c Client, path string) (string, error) {
	entry, err := c.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return "", nil
		}
		return "", err
	}
	if entry.Type == EntryTypeDir {
		return "", nil
	}
	return entry.Revision, nil
}
