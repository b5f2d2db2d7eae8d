// Package uploader drives batch uploads: strictly sequential per batch, with
// per-item failure isolation and a progress record published before every
// write.
package uploader

import (
	"context"
	"errors"
	"fmt"

	"pixrepo/internal/domain"
	"pixrepo/internal/service"
)

// Uploader stores a single image.
type Uploader interface {
	UploadImage(ctx context.Context, req service.UploadRequest) (*domain.ImageItem, error)
}

// File is one upload payload.
type File struct {
	Name string
	Data []byte
}

// BatchRequest is a set of files sharing a name, description and tags.
type BatchRequest struct {
	Files       []File
	Name        string
	Description string
	Tags        []string
}

func (r BatchRequest) fileNames() []string {
	names := make([]string, len(r.Files))
	for i, f := range r.Files {
		names[i] = f.Name
	}
	return names
}

// Event is one step of a batch as seen by a stream consumer.
type Event struct {
	Progress domain.BatchUploadProgress
	// Done marks the final event; Images then holds every stored image.
	Done   bool
	Images []domain.ImageItem
}

const cancelledMessage = "cancelled"

// Run uploads req.Files one at a time in order. Every item failure is recorded
// on that item and the batch continues. emit receives a copy of the progress
// record after each change, including once before each item's write begins.
// When ctx is cancelled the remaining items are marked failed, so
// Completed+Failed always equals Total on return.
func Run(ctx context.Context, up Uploader, req BatchRequest, emit func(domain.BatchUploadProgress)) ([]domain.ImageItem, domain.BatchUploadProgress) {
	return run(ctx, up, req, service.NewBatchProgress(req.fileNames()), emit)
}

func run(ctx context.Context, up Uploader, req BatchRequest, progress domain.BatchUploadProgress, emit func(domain.BatchUploadProgress)) ([]domain.ImageItem, domain.BatchUploadProgress) {
	if emit == nil {
		emit = func(domain.BatchUploadProgress) {}
	}
	publish := func() { emit(progress.Clone()) }
	if len(req.Files) > 0 {
		progress.Current = req.Files[0].Name
	}
	publish()

	images := make([]domain.ImageItem, 0, len(req.Files))
	for i, file := range req.Files {
		if ctx.Err() != nil {
			failRemaining(&progress, i, cancelledMessage)
			break
		}

		item := &progress.Items[i]
		progress.Current = file.Name
		item.Message = "uploading"
		publish()

		img, err := up.UploadImage(ctx, service.UploadRequest{
			Data:        file.Data,
			FileName:    file.Name,
			Name:        targetName(req.Name, i, file.Name),
			Description: req.Description,
			Tags:        req.Tags,
		})
		if err != nil {
			progress.Failed++
			item.Status = domain.UploadStatusError
			item.Message = err.Error()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				item.Message = cancelledMessage
			}
			publish()
			continue
		}

		progress.Completed++
		item.Status = domain.UploadStatusSuccess
		item.Progress = 100
		item.ImageID = img.ID
		item.Message = "uploaded"
		if img.Width > 0 && img.Height > 0 {
			item.Message = fmt.Sprintf("uploaded (%dx%d)", img.Width, img.Height)
		}
		images = append(images, *img)
		publish()
	}

	progress.Current = ""
	publish()
	return images, progress
}

// failRemaining marks every still-pending item from index from onward as failed.
func failRemaining(progress *domain.BatchUploadProgress, from int, message string) {
	for i := from; i < len(progress.Items); i++ {
		item := &progress.Items[i]
		if item.Status != domain.UploadStatusUploading {
			continue
		}
		item.Status = domain.UploadStatusError
		item.Message = message
		progress.Failed++
	}
}

// targetName gives every file of a named batch a distinct name.
func targetName(shared string, i int, fileName string) string {
	if shared == "" {
		return ""
	}
	return fmt.Sprintf("%s-%d-%s", shared, i+1, fileName)
}

// Stream runs the batch in a goroutine and reports each progress change on the
// returned channel. The last event has Done set and the channel is then
// closed. Consumers must drain the channel; intermediate events are dropped
// once ctx is cancelled but the final event is always delivered.
func Stream(ctx context.Context, up Uploader, req BatchRequest) <-chan Event {
	ch := make(chan Event, 1)
	go func() {
		defer close(ch)
		images, progress := Run(ctx, up, req, func(p domain.BatchUploadProgress) {
			select {
			case ch <- Event{Progress: p}:
			case <-ctx.Done():
			}
		})
		ch <- Event{Progress: progress, Done: true, Images: images}
	}()
	return ch
}
