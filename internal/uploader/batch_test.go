package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixrepo/internal/domain"
	"pixrepo/internal/service"
)

type uploadFunc func(ctx context.Context, req service.UploadRequest) (*domain.ImageItem, error)

func (f uploadFunc) UploadImage(ctx context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
	return f(ctx, req)
}

func files(names ...string) []File {
	out := make([]File, len(names))
	for i, n := range names {
		out[i] = File{Name: n, Data: []byte(n)}
	}
	return out
}

func TestRun_PartialFailure(t *testing.T) {
	up := uploadFunc(func(_ context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		if req.FileName == "two.png" {
			return nil, errors.New("conflict on two.png")
		}
		return &domain.ImageItem{ID: "id-" + req.FileName, Name: req.FileName, Width: 2, Height: 3}, nil
	})

	images, progress := Run(context.Background(), up, BatchRequest{Files: files("one.png", "two.png", "three.png")}, nil)

	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 1, progress.Failed)
	assert.True(t, progress.Finished())
	require.Len(t, images, 2)
	assert.Equal(t, "id-one.png", images[0].ID)
	assert.Equal(t, "id-three.png", images[1].ID)

	assert.Equal(t, domain.UploadStatusSuccess, progress.Items[0].Status)
	assert.Equal(t, 100, progress.Items[0].Progress)
	assert.Equal(t, "uploaded (2x3)", progress.Items[0].Message)
	assert.Equal(t, domain.UploadStatusError, progress.Items[1].Status)
	assert.Equal(t, "conflict on two.png", progress.Items[1].Message)
	assert.Equal(t, domain.UploadStatusSuccess, progress.Items[2].Status)
	assert.Empty(t, progress.Current)
}

func TestRun_PublishesCurrentBeforeEachWrite(t *testing.T) {
	var (
		mu      sync.Mutex
		last    domain.BatchUploadProgress
		history []domain.BatchUploadProgress
		order   []string
	)
	emit := func(p domain.BatchUploadProgress) {
		mu.Lock()
		defer mu.Unlock()
		last = p
		history = append(history, p)
	}
	up := uploadFunc(func(_ context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, req.FileName, last.Current, "current is published before the write")
		order = append(order, req.FileName)
		return &domain.ImageItem{ID: req.FileName}, nil
	})

	Run(context.Background(), up, BatchRequest{Files: files("a.png", "b.png", "c.png")}, emit)

	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, order)
	require.NotEmpty(t, history)
	first := history[0]
	assert.Equal(t, 3, first.Total)
	for _, item := range first.Items {
		assert.Equal(t, domain.UploadStatusUploading, item.Status)
		assert.Equal(t, "waiting", item.Message)
	}
}

func TestRun_SharedNameGivesDistinctTargets(t *testing.T) {
	var names []string
	up := uploadFunc(func(_ context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		names = append(names, req.Name)
		assert.Equal(t, "trip", req.Description)
		assert.Equal(t, []string{"x"}, req.Tags)
		return &domain.ImageItem{ID: req.Name}, nil
	})

	Run(context.Background(), up, BatchRequest{Files: files("a.png", "b.jpg"), Name: "beach", Description: "trip", Tags: []string{"x"}}, nil)
	assert.Equal(t, []string{"beach-1-a.png", "beach-2-b.jpg"}, names)
}

func TestRun_CancellationMarksRemainingFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := uploadFunc(func(ctx context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		if req.FileName == "b.png" {
			cancel()
			return nil, ctx.Err()
		}
		return &domain.ImageItem{ID: req.FileName}, nil
	})

	images, progress := Run(ctx, up, BatchRequest{Files: files("a.png", "b.png", "c.png", "d.png")}, nil)
	require.Len(t, images, 1)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 3, progress.Failed)
	assert.True(t, progress.Finished())
	for _, item := range progress.Items[1:] {
		assert.Equal(t, domain.UploadStatusError, item.Status)
		assert.Equal(t, "cancelled", item.Message)
	}
}

func TestStream(t *testing.T) {
	up := uploadFunc(func(_ context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		return &domain.ImageItem{ID: req.FileName}, nil
	})

	var events []Event
	for ev := range Stream(context.Background(), up, BatchRequest{Files: files("a.png", "b.png")}) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.True(t, final.Done)
	assert.Len(t, final.Images, 2)
	assert.Equal(t, 2, final.Progress.Completed)
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Done)
	}
}

func TestRun_FirstSnapshotNamesFirstFile(t *testing.T) {
	var first *domain.BatchUploadProgress
	emit := func(p domain.BatchUploadProgress) {
		if first == nil {
			first = &p
		}
	}
	up := uploadFunc(func(_ context.Context, req service.UploadRequest) (*domain.ImageItem, error) {
		return &domain.ImageItem{ID: req.FileName}, nil
	})

	Run(context.Background(), up, BatchRequest{Files: files("a.png", "b.png")}, emit)

	require.NotNil(t, first)
	assert.Equal(t, "a.png", first.Current)
	assert.Zero(t, first.Completed+first.Failed)

	_, progress := Run(context.Background(), up, BatchRequest{}, nil)
	assert.Empty(t, progress.Current)
}
