package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GiteeProxy relays raw-content requests to gitee, which rejects image
// hotlinks that lack a gitee Referer.
type GiteeProxy struct {
	upstream string
	client   *http.Client
	logger   *logrus.Logger
}

func NewGiteeProxy(upstream string, timeout time.Duration, logger *logrus.Logger) *GiteeProxy {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GiteeProxy{
		upstream: strings.TrimRight(upstream, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

var proxiedHeaders = []string{"Content-Type", "Content-Length", "ETag", "Last-Modified"}

// Serve handles /api/proxy/gitee/<owner>/<repo>/raw/<branch>/<path>.
func (p *GiteeProxy) Serve(c *gin.Context) {
	path := c.Param("path")
	if !validRawPath(path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected /<owner>/<repo>/raw/<branch>/<path>"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), p.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.upstream+path, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Header.Set("Referer", "https://gitee.com/")
	req.Header.Set("Origin", "https://gitee.com")
	req.Header.Set("User-Agent", "pixrepo-proxy")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithField("path", path).Warnf("gitee proxy: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.JSON(resp.StatusCode, gin.H{"error": "upstream returned " + resp.Status})
		return
	}

	for _, name := range proxiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			c.Header(name, v)
		}
	}
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		p.logger.WithField("path", path).Debugf("gitee proxy copy: %v", err)
	}
}

func validRawPath(path string) bool {
	if strings.Contains(path, "..") {
		return false
	}
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 5)
	if len(parts) < 5 {
		return false
	}
	return parts[0] != "" && parts[1] != "" && parts[2] == "raw" && parts[3] != "" && parts[4] != ""
}
