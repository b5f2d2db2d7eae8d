package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pixrepo/internal/domain"
	"pixrepo/internal/repository"
)

// BatchService coordinates batch history backed by the repository.
type BatchService interface {
	CreateBatch(ctx context.Context, sourceID string, fileNames []string) (*domain.Batch, error)
	GetBatch(ctx context.Context, id string) (*domain.Batch, error)
	ListBySource(ctx context.Context, sourceID string) ([]domain.Batch, error)
	ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMsg *string) error
	SaveProgress(ctx context.Context, id string, progress domain.BatchUploadProgress) error
	MarkFinished(ctx context.Context, id string, status domain.BatchStatus) error
}

type batchService struct {
	batches repository.BatchRepository
}

func NewBatchService(batches repository.BatchRepository) BatchService {
	return &batchService{batches: batches}
}

// CreateBatch records a pending batch with one waiting item per file.
func (s *batchService) CreateBatch(ctx context.Context, sourceID string, fileNames []string) (*domain.Batch, error) {
	if sourceID == "" {
		return nil, errors.New("source id is required")
	}
	if len(fileNames) == 0 {
		return nil, errors.New("at least one file is required")
	}

	batch := &domain.Batch{
		ID:       uuid.NewString(),
		SourceID: sourceID,
		Status:   domain.BatchStatusPending,
		Progress: NewBatchProgress(fileNames),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// NewBatchProgress initializes one uploading item per file before any work
// starts.
func NewBatchProgress(fileNames []string) domain.BatchUploadProgress {
	items := make([]domain.UploadProgressItem, len(fileNames))
	for i, name := range fileNames {
		items[i] = domain.UploadProgressItem{
			ID:       uuid.NewString(),
			FileName: name,
			Status:   domain.UploadStatusUploading,
			Message:  "waiting",
		}
	}
	return domain.BatchUploadProgress{Total: len(fileNames), Items: items}
}

func (s *batchService) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	batch, err := s.batches.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
		}
		return nil, err
	}
	return batch, nil
}

func (s *batchService) ListBySource(ctx context.Context, sourceID string) ([]domain.Batch, error) {
	return s.batches.ListBySource(ctx, sourceID)
}

func (s *batchService) ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.Batch, error) {
	return s.batches.ListByStatuses(ctx, statuses...)
}

func (s *batchService) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMsg *string) error {
	return s.batches.UpdateStatus(ctx, id, status, errMsg)
}

func (s *batchService) SaveProgress(ctx context.Context, id string, progress domain.BatchUploadProgress) error {
	return s.batches.SaveProgress(ctx, id, progress)
}

func (s *batchService) MarkFinished(ctx context.Context, id string, status domain.BatchStatus) error {
	return s.batches.MarkFinished(ctx, id, status, time.Now().UTC())
}
