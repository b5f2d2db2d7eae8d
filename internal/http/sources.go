package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pixrepo/internal/domain"
)

type sourceRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider" binding:"required"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo" binding:"required"`
	Branch   string `json:"branch"`
	Token    string `json:"token"`
	Path     string `json:"path"`
}

func (r sourceRequest) config() domain.SourceConfig {
	return domain.SourceConfig{
		Provider: domain.Provider(r.Provider),
		Owner:    r.Owner,
		Repo:     r.Repo,
		Branch:   r.Branch,
		Token:    r.Token,
		Path:     r.Path,
	}
}

func (h *Handler) listSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := make([]SourceResponse, len(sources))
	for i := range sources {
		resp[i] = sourceToResponse(sources[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src, err := h.sources.Create(c.Request.Context(), req.Name, req.config())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sourceToResponse(*src))
}

func (h *Handler) getSource(c *gin.Context) {
	src, err := h.sources.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sourceToResponse(*src))
}

func (h *Handler) updateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src, err := h.sources.Update(c.Request.Context(), c.Param("id"), req.Name, req.config())
	if err != nil {
		h.fail(c, err)
		return
	}
	// Cached entries were listed through the old config.
	h.catalog.Forget(src.ID)
	c.JSON(http.StatusOK, sourceToResponse(*src))
}

func (h *Handler) deleteSource(c *gin.Context) {
	id := c.Param("id")
	if err := h.sources.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.catalog.Forget(id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
