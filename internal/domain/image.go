package domain

import "time"

// ImageMetadata is the sidecar record stored next to every image blob.
type ImageMetadata struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	Size        int64
	Width       int
	Height      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImageItem is the client-facing view of a stored image: the remote file joined
// with its sidecar.
type ImageItem struct {
	ID          string
	Name        string
	URL         string
	RawURL      string
	Size        int64
	Width       int
	Height      int
	MimeType    string
	Tags        []string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
