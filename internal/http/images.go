package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pixrepo/internal/service"
)

// listImages lists the source remotely and folds the result into the catalog.
// With ?cached=true it serves the catalog as held, without a remote listing.
func (h *Handler) listImages(c *gin.Context) {
	id := c.Param("id")
	if cached, _ := strconv.ParseBool(c.Query("cached")); cached {
		if _, err := h.sources.Get(c.Request.Context(), id); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, imagesToResponse(h.catalog.List(id)))
		return
	}

	images, err := h.sources.Images(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	listedAt := time.Now()
	items, err := images.ListImages(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, imagesToResponse(h.catalog.Replace(id, items, listedAt)))
}

func (h *Handler) uploadImage(c *gin.Context) {
	id := c.Param("id")
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	data, err := h.readUpload(header)
	if err != nil {
		h.fail(c, err)
		return
	}

	images, err := h.sources.Images(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	item, err := images.UploadImage(c.Request.Context(), service.UploadRequest{
		Data:        data,
		FileName:    header.Filename,
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Tags:        service.ParseTags(c.PostForm("tags")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.catalog.Add(id, *item)
	c.JSON(http.StatusCreated, imageToResponse(*item))
}

type updateImageRequest struct {
	ID          string    `json:"id"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	Width       *int      `json:"width"`
	Height      *int      `json:"height"`
}

func (h *Handler) updateImage(c *gin.Context) {
	id := c.Param("id")
	var req updateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.sources.Images(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	patch := service.MetadataPatch{
		Description: req.Description,
		Width:       req.Width,
		Height:      req.Height,
	}
	if req.Tags != nil {
		patch.Tags = *req.Tags
		if patch.Tags == nil {
			patch.Tags = []string{}
		}
	}
	item, err := images.UpdateImageMetadata(c.Request.Context(), req.ID, c.Param("name"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.catalog.Add(id, *item)
	c.JSON(http.StatusOK, imageToResponse(*item))
}

func (h *Handler) deleteImage(c *gin.Context) {
	id := c.Param("id")
	name := c.Param("name")
	imageID := c.Query("id")

	images, err := h.sources.Images(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := images.DeleteImage(c.Request.Context(), imageID, name); err != nil {
		h.fail(c, err)
		return
	}

	if imageID != "" {
		h.catalog.Remove(id, imageID)
	}
	h.catalog.RemoveByName(id, name)
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

type deleteImagesRequest struct {
	Images []struct {
		ID   string `json:"id"`
		Name string `json:"name" binding:"required"`
	} `json:"images" binding:"required,min=1,dive"`
}

// deleteImages removes several images. Each item succeeds or fails on its
// own; the response lists every outcome in request order.
func (h *Handler) deleteImages(c *gin.Context) {
	id := c.Param("id")
	var req deleteImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	images, err := h.sources.Images(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	refs := make([]service.ImageRef, len(req.Images))
	for i, img := range req.Images {
		refs[i] = service.ImageRef{ID: img.ID, Name: img.Name}
	}

	results := images.DeleteImages(c.Request.Context(), refs)
	resp := DeleteImagesResponse{Results: make([]DeleteResultResponse, len(results))}
	for i, r := range results {
		item := DeleteResultResponse{ID: r.Ref.ID, Name: r.Ref.Name, Deleted: r.Err == nil}
		if r.Err != nil {
			item.Error = r.Err.Error()
			item.Status = statusFor(r.Err)
			resp.Failed++
		} else {
			if r.Ref.ID != "" {
				h.catalog.Remove(id, r.Ref.ID)
			}
			h.catalog.RemoveByName(id, r.Ref.Name)
			resp.Deleted++
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) readUpload(header *multipart.FileHeader) ([]byte, error) {
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", service.ErrInvalidImage, header.Filename, h.maxUpload)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	return data, nil
}
