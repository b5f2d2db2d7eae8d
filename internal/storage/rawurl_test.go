package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pixrepo/internal/domain"
)

func TestURLNormalizer_RawURL(t *testing.T) {
	gh := URLNormalizer{Provider: domain.ProviderGitHub, Owner: "octo", Repo: "pics", Branch: "main", RawBase: DefaultGitHubRawBase}
	assert.Equal(t, "https://raw.githubusercontent.com/octo/pics/main/images/my%20cat.jpg", gh.RawURL("images/my cat.jpg"))

	gitee := URLNormalizer{Provider: domain.ProviderGitee, Owner: "octo", Repo: "pics", Branch: "master", RawBase: DefaultGiteeRawBase}
	assert.Equal(t, "https://gitee.com/octo/pics/raw/master/a.png", gitee.RawURL("/a.png"))

	gitee.ProxyBase = "http://localhost:8080/api/proxy/gitee/"
	assert.Equal(t, "http://localhost:8080/api/proxy/gitee/octo/pics/raw/master/a.png", gitee.RawURL("a.png"))
}

func TestURLNormalizer_NormalizeDownloadURL(t *testing.T) {
	gitee := URLNormalizer{Provider: domain.ProviderGitee, Owner: "octo", Repo: "pics", Branch: "master", RawBase: DefaultGiteeRawBase}

	got := gitee.Normalize("", "https://gitee.com/api/v5/repos/octo/pics/raw/img/a.png?access_token=tok")
	assert.Equal(t, "https://gitee.com/octo/pics/raw/master/img/a.png", got)

	got = gitee.Normalize("", "https://gitee.com/octo/pics/raw/master/a.png?access_token=tok&x=1")
	assert.Equal(t, "https://gitee.com/octo/pics/raw/master/a.png?x=1", got)

	assert.Empty(t, gitee.Normalize("", ""))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "images/.metadata/a.json", JoinPath("/images/", "", ".metadata", "a.json"))
	assert.Equal(t, "a.png", JoinPath("", "a.png"))
	assert.Equal(t, "", JoinPath("", "/"))
}
