package http

import (
	"time"

	"pixrepo/internal/domain"
)

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// SourceResponse never carries the provider token.
type SourceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Owner     string `json:"owner,omitempty"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch,omitempty"`
	Path      string `json:"path,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ImageResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	RawURL      string   `json:"raw_url"`
	Size        int64    `json:"size"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	MimeType    string   `json:"mime_type,omitempty"`
	Tags        []string `json:"tags"`
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type DeleteResultResponse struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
	// Status is the HTTP status the failure would map to on its own.
	Status int `json:"status,omitempty"`
}

type DeleteImagesResponse struct {
	Deleted int                    `json:"deleted"`
	Failed  int                    `json:"failed"`
	Results []DeleteResultResponse `json:"results"`
}

type LiveBatchResponse struct {
	BatchID  string           `json:"batch_id"`
	Progress ProgressResponse `json:"progress"`
}

type ProgressItemResponse struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	ImageID  string `json:"image_id,omitempty"`
}

type ProgressResponse struct {
	Total     int                    `json:"total"`
	Completed int                    `json:"completed"`
	Failed    int                    `json:"failed"`
	Current   string                 `json:"current,omitempty"`
	Items     []ProgressItemResponse `json:"items"`
}

type BatchResponse struct {
	ID           string           `json:"id"`
	SourceID     string           `json:"source_id"`
	Status       string           `json:"status"`
	Progress     ProgressResponse `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
	FinishedAt   *string          `json:"finished_at,omitempty"`
}

func sourceToResponse(src domain.Source) SourceResponse {
	return SourceResponse{
		ID:        src.ID,
		Name:      src.Name,
		Provider:  string(src.Config.Provider),
		Owner:     src.Config.Owner,
		Repo:      src.Config.Repo,
		Branch:    src.Config.Branch,
		Path:      src.Config.Path,
		CreatedAt: formatTime(src.CreatedAt),
		UpdatedAt: formatTime(src.UpdatedAt),
	}
}

func imageToResponse(item domain.ImageItem) ImageResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return ImageResponse{
		ID:          item.ID,
		Name:        item.Name,
		URL:         item.URL,
		RawURL:      item.RawURL,
		Size:        item.Size,
		Width:       item.Width,
		Height:      item.Height,
		MimeType:    item.MimeType,
		Tags:        tags,
		Description: item.Description,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

func imagesToResponse(items []domain.ImageItem) []ImageResponse {
	resp := make([]ImageResponse, len(items))
	for i := range items {
		resp[i] = imageToResponse(items[i])
	}
	return resp
}

func progressToResponse(p domain.BatchUploadProgress) ProgressResponse {
	items := make([]ProgressItemResponse, len(p.Items))
	for i, item := range p.Items {
		items[i] = ProgressItemResponse{
			ID:       item.ID,
			FileName: item.FileName,
			Status:   string(item.Status),
			Progress: item.Progress,
			Message:  item.Message,
			ImageID:  item.ImageID,
		}
	}
	return ProgressResponse{
		Total:     p.Total,
		Completed: p.Completed,
		Failed:    p.Failed,
		Current:   p.Current,
		Items:     items,
	}
}

func batchToResponse(batch domain.Batch) BatchResponse {
	resp := BatchResponse{
		ID:           batch.ID,
		SourceID:     batch.SourceID,
		Status:       string(batch.Status),
		Progress:     progressToResponse(batch.Progress),
		ErrorMessage: batch.ErrorMessage,
		CreatedAt:    formatTime(batch.CreatedAt),
		UpdatedAt:    formatTime(batch.UpdatedAt),
	}
	if batch.FinishedAt != nil {
		finished := formatTime(*batch.FinishedAt)
		resp.FinishedAt = &finished
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
