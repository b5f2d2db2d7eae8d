// Package metadata stores the JSON sidecar that accompanies every image blob.
// Sidecars live under <base>/.metadata/ and are written without any
// transaction shared with the image they describe.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pixrepo/internal/domain"
	"pixrepo/internal/storage"
)

const defaultConcurrency = 8

// Options tunes a Manager.
type Options struct {
	// Concurrency bounds parallel sidecar fetches in LoadAll.
	Concurrency int
	Logger      *logrus.Logger
}

// Manager reads and writes sidecars for one source.
type Manager struct {
	client      storage.Client
	basePath    string
	concurrency int
	logger      *logrus.Entry
}

func NewManager(client storage.Client, basePath string, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Manager{
		client:      client,
		basePath:    strings.Trim(basePath, "/"),
		concurrency: concurrency,
		logger:      logger.WithField("component", "metadata"),
	}
}

// Path returns the repository path of the sidecar for imageName.
func (m *Manager) Path(imageName string) string {
	return storage.JoinPath(m.basePath, Dir, FileName(imageName))
}

// Write creates or replaces the sidecar for imageName. A concurrent writer
// surfaces as storage.ErrConflict; there is no retry.
func (m *Manager) Write(ctx context.Context, imageName string, md domain.ImageMetadata) error {
	p := m.Path(imageName)
	body, err := encode(md)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", imageName, err)
	}

	rev, err := storage.ResolveRevision(ctx, m.client, p)
	if err != nil {
		return fmt.Errorf("resolve metadata revision for %s: %w", imageName, err)
	}
	verb := "Create"
	if rev != "" {
		verb = "Update"
	}
	if _, err := m.client.Put(ctx, p, body, storage.PutOptions{
		Message:  fmt.Sprintf("%s metadata for image: %s", verb, imageName),
		Revision: rev,
	}); err != nil {
		return fmt.Errorf("write metadata for %s: %w", imageName, err)
	}
	return nil
}

// Read returns the sidecar for imageName, or nil when there is none.
func (m *Manager) Read(ctx context.Context, imageName string) (*domain.ImageMetadata, error) {
	file, err := m.client.Get(ctx, m.Path(imageName))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata for %s: %w", imageName, err)
	}
	md, err := decode(file.Content)
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", imageName, err)
	}
	return &md, nil
}

// Delete removes the sidecar for imageName. A missing sidecar is not an error.
func (m *Manager) Delete(ctx context.Context, imageName string) error {
	p := m.Path(imageName)
	rev, err := storage.ResolveRevision(ctx, m.client, p)
	if err != nil {
		return fmt.Errorf("resolve metadata revision for %s: %w", imageName, err)
	}
	if rev == "" {
		return nil
	}
	err = m.client.Delete(ctx, p, rev, "Delete metadata for image: "+imageName)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("delete metadata for %s: %w", imageName, err)
	}
	return nil
}

// LoadAll fetches every sidecar under the source, keyed by image name. A
// missing metadata directory yields an empty map. Sidecars that cannot be
// fetched or decoded are skipped.
func (m *Manager) LoadAll(ctx context.Context) (map[string]domain.ImageMetadata, error) {
	dir := storage.JoinPath(m.basePath, Dir)
	entries, err := m.client.List(ctx, dir)
	if err != nil {
		if storage.IsNotFound(err) {
			return map[string]domain.ImageMetadata{}, nil
		}
		return nil, fmt.Errorf("list metadata: %w", err)
	}

	var (
		mu  sync.Mutex
		out = make(map[string]domain.ImageMetadata, len(entries))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, entry := range entries {
		if entry.Type != storage.EntryTypeFile || !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		imageName, ok := ImageName(entry.Name)
		if !ok {
			continue
		}
		entry := entry
		g.Go(func() error {
			file, err := m.client.Get(gctx, storage.JoinPath(dir, entry.Name))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				m.logger.WithError(err).WithField("sidecar", entry.Name).Debug("skip unreadable sidecar")
				return nil
			}
			md, err := decode(file.Content)
			if err != nil {
				m.logger.WithError(err).WithField("sidecar", entry.Name).Debug("skip malformed sidecar")
				return nil
			}
			mu.Lock()
			out[imageName] = md
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return out, nil
}
