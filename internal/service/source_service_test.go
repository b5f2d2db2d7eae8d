package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixrepo/internal/domain"
	"pixrepo/internal/repository"
	"pixrepo/internal/repository/sqlite"
	"pixrepo/internal/storage"
	"pixrepo/internal/storage/storagetest"
)

// reverseSealer is a reversible stand-in that makes sealed values visibly
// different from their plaintext.
type reverseSealer struct{}

func (reverseSealer) Seal(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return "sealed:" + reverse(s), nil
}

func (reverseSealer) Open(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return reverse(strings.TrimPrefix(s, "sealed:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func newTestSourceService(t *testing.T) (SourceService, repository.SourceRepository, *storagetest.Server) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pixrepo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sources := sqlite.NewSourceRepository(db)
	batches := sqlite.NewBatchRepository(db)
	require.NoError(t, sources.Init(ctx))
	require.NoError(t, batches.Init(ctx))

	srv := storagetest.NewGitHub(t, "tok")
	factory := storage.NewFactory(storage.Options{GitHubAPIBase: srv.APIBase()})
	return NewSourceService(sources, batches, factory, reverseSealer{}, ImageOptions{}), sources, srv
}

func TestSourceService_CreateSealsToken(t *testing.T) {
	svc, repo, _ := newTestSourceService(t)
	ctx := context.Background()

	src, err := svc.Create(ctx, "", domain.SourceConfig{
		Provider: "GitHub", Owner: "octo", Repo: "pics", Token: " tok ", Path: "/images/",
	})
	require.NoError(t, err)
	assert.Empty(t, src.Config.Token)
	assert.Equal(t, domain.ProviderGitHub, src.Config.Provider)
	assert.Equal(t, "main", src.Config.Branch)
	assert.Equal(t, "images", src.Config.Path)
	assert.NotEmpty(t, src.Name)

	stored, err := repo.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "sealed:kot", stored.Config.Token)

	_, err = svc.Create(ctx, src.Name, domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "o", Repo: "r", Token: "t"})
	assert.ErrorIs(t, err, ErrSourceExists)
}

func TestSourceService_UpdateKeepsToken(t *testing.T) {
	svc, repo, _ := newTestSourceService(t)
	ctx := context.Background()
	src, err := svc.Create(ctx, "pics", domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "octo", Repo: "pics", Token: "tok"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, src.ID, "", domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "octo", Repo: "pics", Path: "new"})
	require.NoError(t, err)
	stored, err := repo.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "sealed:kot", stored.Config.Token)
	assert.Equal(t, "new", stored.Config.Path)
	assert.Equal(t, "pics", stored.Name)

	_, err = svc.Update(ctx, src.ID, "", domain.SourceConfig{Provider: domain.ProviderS3, Repo: "bucket"})
	require.NoError(t, err)
	stored, err = repo.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Config.Token, "s3 sources carry no token")
}

func TestSourceService_ImagesUsesOpenedToken(t *testing.T) {
	svc, _, srv := newTestSourceService(t)
	ctx := context.Background()
	src, err := svc.Create(ctx, "pics", domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "octo", Repo: "pics", Token: "tok", Path: "images"})
	require.NoError(t, err)
	srv.Seed("images/a.png", testPNG(t, 1, 1))

	images, err := svc.Images(ctx, src.ID)
	require.NoError(t, err)
	items, err := images.ListImages(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSourceService_NotFound(t *testing.T) {
	svc, _, _ := newTestSourceService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "missing"), ErrSourceNotFound)
	_, err = svc.Images(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestValidateSourceConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.SourceConfig
		ok   bool
	}{
		{"github", domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "o", Repo: "r", Token: "t"}, true},
		{"gitee defaults master", domain.SourceConfig{Provider: domain.ProviderGitee, Owner: "o", Repo: "r", Token: "t"}, true},
		{"s3 needs no owner", domain.SourceConfig{Provider: domain.ProviderS3, Repo: "bucket"}, true},
		{"unknown provider", domain.SourceConfig{Provider: "svn", Owner: "o", Repo: "r", Token: "t"}, false},
		{"missing token", domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "o", Repo: "r"}, false},
		{"missing owner", domain.SourceConfig{Provider: domain.ProviderGitee, Repo: "r", Token: "t"}, false},
		{"missing repo", domain.SourceConfig{Provider: domain.ProviderS3}, false},
		{"dot segment", domain.SourceConfig{Provider: domain.ProviderS3, Repo: "b", Path: "a/../b"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateSourceConfig(tc.cfg)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidSource)
				return
			}
			require.NoError(t, err)
			if got.Provider == domain.ProviderGitee {
				assert.Equal(t, "master", got.Branch)
			}
		})
	}
}
