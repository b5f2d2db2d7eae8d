package repository

import (
	"context"

	"pixrepo/internal/domain"
)

// SourceRepository persists registered sources. The Token field of a stored
// config is whatever the caller hands in; sealing happens above this layer.
type SourceRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, source *domain.Source) error
	Update(ctx context.Context, source *domain.Source) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
}
