package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixrepo/internal/domain"
	"pixrepo/internal/storage"
	"pixrepo/internal/storage/storagetest"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestImageService(t *testing.T) (*ImageService, *storagetest.Server) {
	t.Helper()
	srv := storagetest.NewGitHub(t, "tok")
	cfg := domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "octo", Repo: "pics", Branch: "main", Token: "tok", Path: "images"}
	client, err := storage.NewFactory(storage.Options{GitHubAPIBase: srv.APIBase()}).New(context.Background(), cfg)
	require.NoError(t, err)
	return NewImageService(cfg, client, ImageOptions{}), srv
}

func TestUploadImage_CreateThenReplace(t *testing.T) {
	svc, srv := newTestImageService(t)
	ctx := context.Background()

	first, err := svc.UploadImage(ctx, UploadRequest{Data: testPNG(t, 4, 2), FileName: "cat.jpg"})
	require.NoError(t, err)
	_, rev1, ok := srv.File("images/cat.jpg")
	require.True(t, ok)
	assert.Equal(t, rev1, first.ID, "id is the new blob revision")
	assert.Equal(t, 4, first.Width)
	assert.Equal(t, 2, first.Height)
	assert.Equal(t, []string{}, first.Tags)
	assert.Equal(t, "https://raw.githubusercontent.com/octo/pics/main/images/cat.jpg", first.RawURL)

	sidecar, sidecarRev1, ok := srv.File("images/.metadata/cat.metadata.jpg.json")
	require.True(t, ok)
	assert.Contains(t, string(sidecar), `"tags": []`)

	second, err := svc.UploadImage(ctx, UploadRequest{Data: testPNG(t, 8, 8), FileName: "cat.jpg", Tags: []string{"pet"}})
	require.NoError(t, err)
	_, rev2, _ := srv.File("images/cat.jpg")
	assert.NotEqual(t, rev1, rev2)
	assert.Equal(t, rev2, second.ID)

	_, sidecarRev2, _ := srv.File("images/.metadata/cat.metadata.jpg.json")
	assert.NotEqual(t, sidecarRev1, sidecarRev2, "sidecar replaced in place")

	var sidecars int
	for _, p := range srv.Paths() {
		if strings.HasPrefix(p, "images/.metadata/") {
			sidecars++
		}
	}
	assert.Equal(t, 1, sidecars, "sidecar overwritten, not duplicated")
	assert.Equal(t, 2, srv.CountRequests(http.MethodPut, "images/cat.jpg"))
}

func TestUploadImage_SidecarFailureIsNotFatal(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.SetFault(func(method, path string) (int, string) {
		if method == http.MethodPut && strings.Contains(path, ".metadata/") {
			return http.StatusInternalServerError, "sidecar write exploded"
		}
		return 0, ""
	})

	item, err := svc.UploadImage(context.Background(), UploadRequest{Data: testPNG(t, 1, 1), FileName: "dog.png", Description: "good boy"})
	require.NoError(t, err)
	assert.Equal(t, "good boy", item.Description)

	_, _, ok := srv.File("images/dog.png")
	assert.True(t, ok)
	_, _, ok = srv.File("images/.metadata/dog.metadata.png.json")
	assert.False(t, ok)
}

func TestUploadImage_BlobConflictIsFatal(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.SetFault(func(method, path string) (int, string) {
		if method == http.MethodPut && path == "images/a.png" {
			return http.StatusConflict, "images/a.png does not match"
		}
		return 0, ""
	})

	_, err := svc.UploadImage(context.Background(), UploadRequest{Data: testPNG(t, 1, 1), FileName: "a.png"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict))
	assert.Empty(t, srv.Paths())
}

func TestUploadImage_Validation(t *testing.T) {
	svc, _ := newTestImageService(t)
	ctx := context.Background()

	_, err := svc.UploadImage(ctx, UploadRequest{Data: []byte("x"), FileName: "notes.txt"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	_, err = svc.UploadImage(ctx, UploadRequest{FileName: "a.png"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	_, err = svc.UploadImage(ctx, UploadRequest{Data: []byte("x"), FileName: "../a.png"})
	assert.ErrorIs(t, err, ErrInvalidImage)

	svc.maxFileSize = 2
	_, err = svc.UploadImage(ctx, UploadRequest{Data: []byte("xyz"), FileName: "a.png"})
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestListImages_MissingMetadataDegrades(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.Seed("images/a.png", []byte("aaa"))
	srv.Seed("images/b.jpg", []byte("b"))
	srv.Seed("images/readme.md", []byte("docs"))
	srv.Seed("images/sub/c.png", []byte("c"))

	items, err := svc.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, []string{}, item.Tags)
		assert.Empty(t, item.Description)
		assert.Zero(t, item.Width)
		assert.Zero(t, item.Height)
		assert.NotEmpty(t, item.ID)
		assert.True(t, strings.HasPrefix(item.RawURL, "https://raw.githubusercontent.com/octo/pics/main/images/"))
	}
}

func TestListImages_JoinsSidecars(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.Seed("images/a.png", []byte("aaa"))
	rev := srv.Seed("images/b.png", []byte("bb"))
	srv.Seed("images/.metadata/a.metadata.png.json", []byte(`{"id":"custom","tags":["x"],"width":3,"height":4,"description":"hello","updatedAt":"2024-01-02T03:04:05Z"}`))
	srv.Seed("images/.metadata/b.metadata.png.json", []byte(`{corrupt`))

	items, err := svc.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	byName := map[string]domain.ImageItem{}
	for _, item := range items {
		byName[item.Name] = item
	}
	a := byName["a.png"]
	assert.Equal(t, "custom", a.ID)
	assert.Equal(t, []string{"x"}, a.Tags)
	assert.Equal(t, 3, a.Width)
	assert.Equal(t, "hello", a.Description)
	assert.EqualValues(t, 3, a.Size)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), a.UpdatedAt.UTC())

	b := byName["b.png"]
	assert.Equal(t, rev, b.ID, "id defaults to the blob revision")
	assert.Equal(t, []string{}, b.Tags)
}

func TestListImages_MissingDirectoryIsEmpty(t *testing.T) {
	svc, _ := newTestImageService(t)
	items, err := svc.ListImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteImage(t *testing.T) {
	svc, srv := newTestImageService(t)
	ctx := context.Background()
	_, err := svc.UploadImage(ctx, UploadRequest{Data: testPNG(t, 1, 1), FileName: "a.png"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteImage(ctx, "", "a.png"))
	assert.Empty(t, srv.Paths(), "blob and sidecar removed")

	err = svc.DeleteImage(ctx, "", "a.png")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestUpdateImageMetadata(t *testing.T) {
	svc, srv := newTestImageService(t)
	ctx := context.Background()
	rev := srv.Seed("images/a.png", []byte("aaa"))

	desc := "  sunset "
	item, err := svc.UpdateImageMetadata(ctx, "", "a.png", MetadataPatch{Description: &desc, Tags: []string{"b", " a", "b", ""}})
	require.NoError(t, err)
	assert.Equal(t, rev, item.ID, "seeded from the blob when no sidecar exists")
	assert.Equal(t, "sunset", item.Description)
	assert.Equal(t, []string{"b", "a"}, item.Tags)
	assert.EqualValues(t, 3, item.Size)

	created := item.CreatedAt
	w := 10
	item, err = svc.UpdateImageMetadata(ctx, rev, "a.png", MetadataPatch{Width: &w})
	require.NoError(t, err)
	assert.Equal(t, "sunset", item.Description, "unpatched fields are kept")
	assert.Equal(t, 10, item.Width)
	assert.Equal(t, created.UTC(), item.CreatedAt.UTC())

	_, err = svc.UpdateImageMetadata(ctx, "", "missing.png", MetadataPatch{})
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestUpdateImageMetadata_SurfacesSidecarErrors(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.Seed("images/a.png", []byte("aaa"))
	srv.SetFault(func(method, path string) (int, string) {
		if method == http.MethodPut {
			return http.StatusForbidden, "read only"
		}
		return 0, ""
	})

	_, err := svc.UpdateImageMetadata(context.Background(), "", "a.png", MetadataPatch{Tags: []string{"x"}})
	assert.ErrorIs(t, err, storage.ErrUnauthorized)
}

func TestNewImageID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	assert.Equal(t, "abc123", newImageID("abc123", now))

	id := newImageID("", now)
	assert.Regexp(t, regexp.MustCompile(`^1700000000000-[0-9a-z]{9}$`), id)
	assert.NotEqual(t, id, newImageID("", now))
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseTags(" a, b ,a,,"))
	assert.Equal(t, []string{}, ParseTags("  "))
}

func TestDeleteImages_IsolatesFailures(t *testing.T) {
	svc, srv := newTestImageService(t)
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		_, err := svc.UploadImage(ctx, UploadRequest{Data: testPNG(t, 1, 1), FileName: name})
		require.NoError(t, err)
	}
	srv.SetFault(func(method, path string) (int, string) {
		if method == http.MethodDelete && path == "images/b.png" {
			return http.StatusInternalServerError, "boom"
		}
		return 0, ""
	})

	results := svc.DeleteImages(ctx, []ImageRef{{Name: "a.png"}, {Name: "b.png"}, {Name: "missing.png"}, {Name: "c.png"}})
	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	var remote *storage.RemoteError
	assert.ErrorAs(t, results[1].Err, &remote)
	assert.ErrorIs(t, results[2].Err, ErrImageNotFound)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, "c.png", results[3].Ref.Name)

	_, _, ok := srv.File("images/b.png")
	assert.True(t, ok, "failed item left in place")
	_, _, ok = srv.File("images/a.png")
	assert.False(t, ok)
	_, _, ok = srv.File("images/c.png")
	assert.False(t, ok)
}

func TestDeleteImages_StopsWritingOnCancel(t *testing.T) {
	svc, srv := newTestImageService(t)
	srv.Seed("images/a.png", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.DeleteImages(ctx, []ImageRef{{Name: "a.png"}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	_, _, ok := srv.File("images/a.png")
	assert.True(t, ok)
}
