package domain

import "time"

type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusSuccess   UploadStatus = "success"
	UploadStatusError     UploadStatus = "error"
)

// UploadProgressItem tracks a single file of a batch upload.
type UploadProgressItem struct {
	ID       string
	FileName string
	Status   UploadStatus
	Progress int
	Message  string
	ImageID  string
}

// BatchUploadProgress is the aggregate progress record of a batch upload.
type BatchUploadProgress struct {
	Total     int
	Completed int
	Failed    int
	Current   string
	Items     []UploadProgressItem
}

// Finished reports whether every item reached a terminal state.
func (p BatchUploadProgress) Finished() bool {
	return p.Completed+p.Failed == p.Total
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p BatchUploadProgress) Clone() BatchUploadProgress {
	out := p
	out.Items = append([]UploadProgressItem(nil), p.Items...)
	return out
}

type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusFailed    BatchStatus = "failed"
)

// Terminal reports whether the batch will make no further progress.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled || s == BatchStatusFailed
}

// Batch is a persisted batch upload run against one source.
type Batch struct {
	ID           string
	SourceID     string
	Status       BatchStatus
	Progress     BatchUploadProgress
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}
