package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pixrepo/internal/domain"
	"pixrepo/internal/imageinfo"
	"pixrepo/internal/metadata"
	"pixrepo/internal/storage"
)

// UploadRequest carries one image and the metadata to record with it.
type UploadRequest struct {
	Data        []byte
	FileName    string
	Name        string
	Description string
	Tags        []string
}

// MetadataPatch lists the sidecar fields to change. Nil fields are left alone.
type MetadataPatch struct {
	Description *string
	Tags        []string
	Width       *int
	Height      *int
}

// ImageOptions tunes an ImageService.
type ImageOptions struct {
	MaxFileSize int64
	Metadata    metadata.Options
	Logger      *logrus.Logger
}

// ImageService stores images for one source. It is built per source with a
// client bound to that source's config and discarded afterwards.
type ImageService struct {
	cfg         domain.SourceConfig
	client      storage.Client
	meta        *metadata.Manager
	maxFileSize int64
	logger      *logrus.Entry
	now         func() time.Time
}

func NewImageService(cfg domain.SourceConfig, client storage.Client, opts ImageOptions) *ImageService {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	metaOpts := opts.Metadata
	if metaOpts.Logger == nil {
		metaOpts.Logger = logger
	}
	return &ImageService{
		cfg:         cfg,
		client:      client,
		meta:        metadata.NewManager(client, cfg.Path, metaOpts),
		maxFileSize: opts.MaxFileSize,
		logger: logger.WithFields(logrus.Fields{
			"provider": cfg.Provider,
			"repo":     cfg.Owner + "/" + cfg.Repo,
		}),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Metadata exposes the sidecar manager of this source.
func (s *ImageService) Metadata() *metadata.Manager { return s.meta }

func (s *ImageService) imagePath(name string) string {
	return storage.JoinPath(s.cfg.Path, name)
}

// UploadImage creates or replaces one image blob and then writes its sidecar.
// The sidecar write is best effort: its failure is logged and the upload still
// succeeds.
func (s *ImageService) UploadImage(ctx context.Context, req UploadRequest) (*domain.ImageItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.FileName)
	}
	if err := validateImageName(name); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidImage, name)
	}
	if s.maxFileSize > 0 && int64(len(req.Data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrInvalidImage, name, formatBytes(s.maxFileSize))
	}

	info := imageinfo.Inspect(name, req.Data)
	p := s.imagePath(name)
	logger := s.logger.WithField("image", name)

	rev, err := storage.ResolveRevision(ctx, s.client, p)
	if err != nil {
		return nil, fmt.Errorf("resolve revision of %s: %w", name, err)
	}
	message := "Update image: " + name
	if rev == "" {
		message = "Upload image: " + name
		if desc := strings.TrimSpace(req.Description); desc != "" {
			message += " - " + desc
		}
	}

	res, err := s.client.Put(ctx, p, req.Data, storage.PutOptions{Message: message, Revision: rev})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	now := s.now()
	md := domain.ImageMetadata{
		ID:          newImageID(res.Revision, now),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Tags:        NormalizeTags(req.Tags),
		Size:        int64(len(req.Data)),
		Width:       info.Width,
		Height:      info.Height,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.meta.Write(ctx, name, md); err != nil {
		logger.WithError(err).Warn("image stored without metadata")
	}

	raw := res.RawURL
	if raw == "" {
		if raw, err = s.client.RawURL(ctx, p); err != nil {
			return nil, fmt.Errorf("raw url of %s: %w", name, err)
		}
	}
	logger.WithField("revision", res.Revision).Info("image uploaded")

	item := itemFrom(md, raw, res.HTMLURL)
	item.MimeType = info.MimeType
	return &item, nil
}

// ListImages joins the image blobs under the source path with their sidecars.
// A missing directory lists as empty; missing or unreadable sidecars degrade
// to default metadata. Duplicate ids are not reconciled here.
func (s *ImageService) ListImages(ctx context.Context) ([]domain.ImageItem, error) {
	entries, err := s.client.List(ctx, s.cfg.Path)
	if err != nil {
		if storage.IsNotFound(err) {
			return []domain.ImageItem{}, nil
		}
		return nil, fmt.Errorf("list images: %w", err)
	}

	metas, err := s.meta.LoadAll(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.WithError(err).Warn("list without metadata")
		metas = map[string]domain.ImageMetadata{}
	}

	listedAt := s.now()
	items := make([]domain.ImageItem, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != storage.EntryTypeFile || !imageinfo.IsImageName(entry.Name) {
			continue
		}
		raw, err := s.client.RawURL(ctx, entry.Path)
		if err != nil {
			return nil, fmt.Errorf("raw url of %s: %w", entry.Name, err)
		}

		md := metas[entry.Name]
		if md.ID == "" {
			md.ID = entry.Revision
		}
		if md.ID == "" {
			md.ID = entry.Path
		}
		md.Name = entry.Name
		if entry.Size > 0 {
			md.Size = entry.Size
		}
		if md.Tags == nil {
			md.Tags = []string{}
		}
		if md.CreatedAt.IsZero() {
			md.CreatedAt = listedAt
		}
		if md.UpdatedAt.IsZero() {
			md.UpdatedAt = md.CreatedAt
		}

		item := itemFrom(md, raw, entry.HTMLURL)
		item.MimeType = imageinfo.MimeTypeByName(entry.Name)
		items = append(items, item)
	}
	return items, nil
}

// DeleteImage removes the blob called name using its current revision, then
// removes its sidecar on a best-effort basis.
func (s *ImageService) DeleteImage(ctx context.Context, id, name string) error {
	if err := validateImageName(name); err != nil {
		return err
	}
	p := s.imagePath(name)
	logger := s.logger.WithFields(logrus.Fields{"image": name, "image_id": id})

	entry, err := s.client.Stat(ctx, p)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("delete %s: %w", name, ErrImageNotFound)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if entry.Type == storage.EntryTypeDir {
		return fmt.Errorf("delete %s: %w", name, ErrImageNotFound)
	}

	if err := s.client.Delete(ctx, p, entry.Revision, "Delete image: "+name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if err := s.meta.Delete(ctx, name); err != nil {
		logger.WithError(err).Warn("image deleted but metadata remains")
	}
	logger.Info("image deleted")
	return nil
}

// ImageRef names one stored image. ID is optional.
type ImageRef struct {
	ID   string
	Name string
}

// DeleteResult is the outcome of deleting one ImageRef; Err is nil on success.
type DeleteResult struct {
	Ref ImageRef
	Err error
}

// DeleteImages deletes refs one at a time in order. A failed item does not
// stop the rest; every outcome is reported in input order. Writes are
// sequential because each one moves the branch head. Once ctx is cancelled the
// remaining items fail with the context error.
func (s *ImageService) DeleteImages(ctx context.Context, refs []ImageRef) []DeleteResult {
	results := make([]DeleteResult, len(refs))
	for i, ref := range refs {
		results[i].Ref = ref
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Err = s.DeleteImage(ctx, ref.ID, ref.Name)
	}
	return results
}

// UpdateImageMetadata rewrites the sidecar of name with patch applied. A
// missing sidecar is seeded from the blob itself. Sidecar errors are returned.
func (s *ImageService) UpdateImageMetadata(ctx context.Context, id, name string, patch MetadataPatch) (*domain.ImageItem, error) {
	if err := validateImageName(name); err != nil {
		return nil, err
	}
	p := s.imagePath(name)

	entry, err := s.client.Stat(ctx, p)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("update metadata of %s: %w", name, ErrImageNotFound)
		}
		return nil, fmt.Errorf("update metadata of %s: %w", name, err)
	}

	now := s.now()
	current, err := s.meta.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	md := domain.ImageMetadata{Name: name, Size: entry.Size, Tags: []string{}, CreatedAt: now}
	if current != nil {
		md = *current
		md.Name = name
	}
	if md.ID == "" {
		md.ID = id
	}
	if md.ID == "" {
		md.ID = newImageID(entry.Revision, now)
	}
	if md.CreatedAt.IsZero() {
		md.CreatedAt = now
	}

	if patch.Description != nil {
		md.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Tags != nil {
		md.Tags = NormalizeTags(patch.Tags)
	}
	if patch.Width != nil && *patch.Width >= 0 {
		md.Width = *patch.Width
	}
	if patch.Height != nil && *patch.Height >= 0 {
		md.Height = *patch.Height
	}
	md.UpdatedAt = now

	if err := s.meta.Write(ctx, name, md); err != nil {
		return nil, err
	}

	raw, err := s.client.RawURL(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("raw url of %s: %w", name, err)
	}
	item := itemFrom(md, raw, entry.HTMLURL)
	item.MimeType = imageinfo.MimeTypeByName(name)
	return &item, nil
}

func itemFrom(md domain.ImageMetadata, raw, html string) domain.ImageItem {
	url := html
	if url == "" {
		url = raw
	}
	tags := md.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.ImageItem{
		ID:          md.ID,
		Name:        md.Name,
		URL:         url,
		RawURL:      raw,
		Size:        md.Size,
		Width:       md.Width,
		Height:      md.Height,
		Tags:        tags,
		Description: md.Description,
		CreatedAt:   md.CreatedAt,
		UpdatedAt:   md.UpdatedAt,
	}
}

func validateImageName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidImage)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return fmt.Errorf("%w: %q must be a plain file name", ErrInvalidImage, name)
	case !imageinfo.IsImageName(name):
		return fmt.Errorf("%w: %q has an unsupported extension %q", ErrInvalidImage, name, path.Ext(name))
	}
	return nil
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping the first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ParseTags splits a comma separated tag list.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(s, ","))
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newImageID prefers the provider-assigned revision and falls back to a
// timestamp plus random suffix when the provider returned none.
func newImageID(revision string, now time.Time) string {
	if revision != "" {
		return revision
	}
	return fallbackImageID(now)
}

func fallbackImageID(now time.Time) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}

// IsNotFound reports whether err means a missing image, source or batch.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrImageNotFound) ||
		errors.Is(err, ErrSourceNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		storage.IsNotFound(err)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
