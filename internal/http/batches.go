package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pixrepo/internal/service"
	"pixrepo/internal/uploader"
)

func (h *Handler) createBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	req := uploader.BatchRequest{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Tags:        service.ParseTags(c.PostForm("tags")),
	}
	for _, header := range headers {
		data, err := h.readUpload(header)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.Files = append(req.Files, uploader.File{Name: header.Filename, Data: data})
	}

	batch, err := h.manager.Enqueue(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, batchToResponse(*batch))
}

func (h *Handler) listBatches(c *gin.Context) {
	batches, err := h.batches.ListBySource(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := make([]BatchResponse, len(batches))
	for i := range batches {
		resp[i] = batchToResponse(batches[i])
	}
	c.JSON(http.StatusOK, resp)
}

// sourceProgress reports the live progress of every batch running on a source.
func (h *Handler) sourceProgress(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sources.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	live := h.catalog.Progress(id)
	resp := make([]LiveBatchResponse, len(live))
	for i, b := range live {
		resp[i] = LiveBatchResponse{BatchID: b.BatchID, Progress: progressToResponse(b.Progress)}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getBatch(c *gin.Context) {
	batch, err := h.batches.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batchToResponse(*batch))
}

// batchEvents streams "progress" events while the batch runs and a final
// "done" event carrying the persisted batch.
func (h *Handler) batchEvents(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// Subscribe first so nothing published after the snapshot is missed.
	events, unsubscribe, active := h.manager.Subscribe(id)
	defer unsubscribe()

	batch, err := h.batches.GetBatch(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if !active || batch.Status.Terminal() {
		c.SSEvent("done", batchToResponse(*batch))
		c.Writer.Flush()
		return
	}
	c.SSEvent("progress", progressToResponse(batch.Progress))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-events:
			if !ok {
				final, err := h.batches.GetBatch(context.WithoutCancel(ctx), id)
				if err == nil {
					c.SSEvent("done", batchToResponse(*final))
				}
				return false
			}
			c.SSEvent("progress", progressToResponse(p))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handler) cancelBatch(c *gin.Context) {
	id := c.Param("id")
	cancelCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := h.manager.Cancel(cancelCtx, id); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		h.fail(c, err)
		return
	}

	batch, err := h.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batchToResponse(*batch))
}
