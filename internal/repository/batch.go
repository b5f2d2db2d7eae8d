package repository

import (
	"context"
	"time"

	"pixrepo/internal/domain"
)

// BatchRepository exposes persistence operations for batch uploads and their
// per-file progress items.
type BatchRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, batch *domain.Batch) error
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errorMessage *string) error
	SaveProgress(ctx context.Context, id string, progress domain.BatchUploadProgress) error
	MarkFinished(ctx context.Context, id string, status domain.BatchStatus, finishedAt time.Time) error
	Get(ctx context.Context, id string) (*domain.Batch, error)
	ListBySource(ctx context.Context, sourceID string) ([]domain.Batch, error)
	ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.Batch, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}
