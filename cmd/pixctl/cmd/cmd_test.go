package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"pixrepo/internal/domain"
	"pixrepo/internal/storage/storagetest"
)

var sampleImages = []domain.ImageItem{{
	ID:        "abc",
	Name:      "cat.png",
	RawURL:    "https://raw.example.com/cat.png",
	Size:      42,
	Tags:      []string{"pets"},
	UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}}

func renderImages(t *testing.T, format string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, render(&buf, format, toImageViews(sampleImages),
		[]string{"ID", "NAME"}, func(v imageView) []string { return []string{v.ID, v.Name} }))
	return buf.String()
}

func TestRender_Table(t *testing.T) {
	out := renderImages(t, formatTable)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "NAME"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"abc", "cat.png"}, strings.Fields(lines[1]))
}

func TestRender_JSON(t *testing.T) {
	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(renderImages(t, formatJSON)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "cat.png", got[0]["name"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got[0]["updated_at"])
}

func TestRender_YAML(t *testing.T) {
	var got []imageView
	require.NoError(t, yaml.Unmarshal([]byte(renderImages(t, formatYAML)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"pets"}, got[0].Tags)
	assert.Equal(t, int64(42), got[0].Size)
}

func TestToSourceViews_OmitsToken(t *testing.T) {
	views := toSourceViews([]domain.Source{{
		ID:     "s1",
		Name:   "pics",
		Config: domain.SourceConfig{Provider: domain.ProviderGitHub, Owner: "o", Repo: "r", Token: "secret"},
	}})
	raw, err := json.Marshal(views)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestHashPasswordCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("long enough password\n"))
	rootCmd.SetArgs([]string{"auth", "hash-password"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("long enough password")))
}

func runPixctl(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		_ = closeServices()
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestImagesDeleteSeveralNames(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	srv := storagetest.NewGitHub(t, "tok")
	t.Setenv("PIXREPO_DATABASE_PATH", filepath.Join(dir, "pixrepo.db"))
	t.Setenv("PIXREPO_SECRETS_PASSPHRASE", "passphrase")
	t.Setenv("PIXREPO_SECRETS_SALTFILE", filepath.Join(dir, "secret.salt"))
	t.Setenv("PIXREPO_PROVIDERS_GITHUB_APIBASE", srv.APIBase())
	t.Setenv("PIXREPO_TOKEN", "tok")

	out, _, err := runPixctl(t, "source", "add", "--owner", "octo", "--repo", "pics", "--path", "images", "-o", "json")
	require.NoError(t, err)
	var added []sourceView
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.Len(t, added, 1)

	srv.Seed("images/a.png", []byte("a"))
	srv.Seed("images/b.png", []byte("b"))

	out, errOut, err := runPixctl(t, "images", "delete", added[0].ID, "a.png", "missing.png", "b.png", "-o", "table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Contains(t, out, "deleted a.png")
	assert.Contains(t, out, "deleted b.png")
	assert.Contains(t, errOut, "failed missing.png")
	assert.Empty(t, srv.Paths())
}
