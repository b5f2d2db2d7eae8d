package storage_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixrepo/internal/domain"
	"pixrepo/internal/storage"
	"pixrepo/internal/storage/storagetest"
)

func newGitHubClient(t *testing.T, srv *storagetest.Server, token string) storage.Client {
	t.Helper()
	f := storage.NewFactory(storage.Options{GitHubAPIBase: srv.APIBase()})
	c, err := f.New(context.Background(), domain.SourceConfig{
		Provider: domain.ProviderGitHub,
		Owner:    "octo",
		Repo:     "pics",
		Branch:   "main",
		Token:    token,
	})
	require.NoError(t, err)
	return c
}

func newGiteeClient(t *testing.T, srv *storagetest.Server, token string) storage.Client {
	t.Helper()
	f := storage.NewFactory(storage.Options{GiteeAPIBase: srv.APIBase()})
	c, err := f.New(context.Background(), domain.SourceConfig{
		Provider: domain.ProviderGitee,
		Owner:    "octo",
		Repo:     "pics",
		Branch:   "master",
		Token:    token,
	})
	require.NoError(t, err)
	return c
}

func TestRESTClient_CreateThenReplace(t *testing.T) {
	for name, build := range map[string]func(*testing.T, *storagetest.Server, string) storage.Client{
		"github": newGitHubClient,
		"gitee":  newGiteeClient,
	} {
		t.Run(name, func(t *testing.T) {
			var srv *storagetest.Server
			if name == "gitee" {
				srv = storagetest.NewGitee(t, "secret")
			} else {
				srv = storagetest.NewGitHub(t, "secret")
			}
			c := build(t, srv, "secret")
			ctx := context.Background()

			rev, err := storage.ResolveRevision(ctx, c, "images/cat.jpg")
			require.NoError(t, err)
			assert.Empty(t, rev)

			created, err := c.Put(ctx, "images/cat.jpg", []byte("v1"), storage.PutOptions{Message: "Upload image: cat.jpg"})
			require.NoError(t, err)
			require.NotEmpty(t, created.Revision)

			rev, err = storage.ResolveRevision(ctx, c, "images/cat.jpg")
			require.NoError(t, err)
			assert.Equal(t, created.Revision, rev)

			replaced, err := c.Put(ctx, "images/cat.jpg", []byte("v2"), storage.PutOptions{Message: "Update image: cat.jpg", Revision: rev})
			require.NoError(t, err)
			assert.NotEqual(t, created.Revision, replaced.Revision)

			file, err := c.Get(ctx, "images/cat.jpg")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), file.Content)
			assert.Equal(t, replaced.Revision, file.Revision)
		})
	}
}

func TestRESTClient_StaleRevisionConflicts(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	ctx := context.Background()

	old := srv.Seed("a.png", []byte("one"))
	_, err := c.Put(ctx, "a.png", []byte("two"), storage.PutOptions{Revision: old})
	require.NoError(t, err)

	_, err = c.Put(ctx, "a.png", []byte("three"), storage.PutOptions{Revision: old})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict))

	_, err = c.Put(ctx, "a.png", []byte("four"), storage.PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict), "create over an existing blob must conflict: %v", err)

	content, _, _ := srv.File("a.png")
	assert.Equal(t, []byte("two"), content)
}

func TestRESTClient_GiteeCreateOverExistingConflicts(t *testing.T) {
	srv := storagetest.NewGitee(t, "tok")
	c := newGiteeClient(t, srv, "tok")
	srv.Seed("a.png", []byte("one"))

	_, err := c.Put(context.Background(), "a.png", []byte("two"), storage.PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrConflict))
}

func TestRESTClient_ResolveRevisionIsIdempotent(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	want := srv.Seed("dir/x.gif", []byte("gif"))

	for i := 0; i < 3; i++ {
		rev, err := storage.ResolveRevision(context.Background(), c, "dir/x.gif")
		require.NoError(t, err)
		assert.Equal(t, want, rev)
	}
	assert.Equal(t, 3, srv.CountRequests(http.MethodGet, "dir/x.gif"))
}

func TestRESTClient_ResolveRevisionTreatsUnauthorizedAsAbsent(t *testing.T) {
	srv := storagetest.NewGitHub(t, "right")
	c := newGitHubClient(t, srv, "wrong")

	rev, err := storage.ResolveRevision(context.Background(), c, "a.png")
	require.NoError(t, err)
	assert.Empty(t, rev)

	_, err = c.Put(context.Background(), "a.png", []byte("x"), storage.PutOptions{})
	assert.True(t, errors.Is(err, storage.ErrUnauthorized))
}

func TestRESTClient_ResolveRevisionSurfacesServerErrors(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	srv.SetFault(func(method, path string) (int, string) {
		return http.StatusBadGateway, "upstream exploded"
	})

	_, err := storage.ResolveRevision(context.Background(), c, "a.png")
	require.Error(t, err)
	var remote *storage.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusBadGateway, remote.StatusCode)
	assert.Equal(t, "upstream exploded", remote.Message)
}

func TestRESTClient_List(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	srv.Seed("images/a.png", []byte("a"))
	srv.Seed("images/b.jpg", []byte("bb"))
	srv.Seed("images/.metadata/a.metadata.png.json", []byte("{}"))

	entries, err := c.List(context.Background(), "images")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byName := map[string]storage.Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.Equal(t, storage.EntryTypeDir, byName[".metadata"].Type)
	assert.Equal(t, storage.EntryTypeFile, byName["b.jpg"].Type)
	assert.EqualValues(t, 2, byName["b.jpg"].Size)

	_, err = c.List(context.Background(), "missing")
	assert.True(t, storage.IsNotFound(err))

	_, err = c.List(context.Background(), "images/a.png")
	assert.True(t, storage.IsNotFound(err))
}

func TestRESTClient_GetDirectoryIsNotFound(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	srv.Seed("images/a.png", []byte("a"))

	_, err := c.Get(context.Background(), "images")
	assert.True(t, storage.IsNotFound(err))
}

func TestRESTClient_DeleteRequiresCurrentRevision(t *testing.T) {
	srv := storagetest.NewGitHub(t, "")
	c := newGitHubClient(t, srv, "")
	rev := srv.Seed("a.png", []byte("a"))
	ctx := context.Background()

	err := c.Delete(ctx, "a.png", "deadbeef", "Delete image: a.png")
	assert.True(t, errors.Is(err, storage.ErrConflict))

	require.NoError(t, c.Delete(ctx, "a.png", rev, "Delete image: a.png"))
	_, _, ok := srv.File("a.png")
	assert.False(t, ok)
}

func TestRESTClient_NetworkErrorRedactsToken(t *testing.T) {
	srv := storagetest.NewGitee(t, "supersecret")
	c := newGiteeClient(t, srv, "supersecret")
	srv.Close()

	_, err := c.Stat(context.Background(), "a.png")
	require.Error(t, err)
	var netErr *storage.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.NotContains(t, err.Error(), "supersecret")
}
