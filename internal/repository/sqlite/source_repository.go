package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pixrepo/internal/domain"
	"pixrepo/internal/repository"
)

const createSourcesTable = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	repo TEXT NOT NULL,
	branch TEXT NOT NULL DEFAULT '',
	token TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) repository.SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSourcesTable); err != nil {
		return fmt.Errorf("create sources table: %w", err)
	}
	return nil
}

func (r *SourceRepository) Create(ctx context.Context, source *domain.Source) error {
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO sources (id, name, provider, owner, repo, branch, token, path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		source.ID,
		source.Name,
		string(source.Config.Provider),
		source.Config.Owner,
		source.Config.Repo,
		source.Config.Branch,
		source.Config.Token,
		source.Config.Path,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert source %q: %w", source.Name, repository.ErrDuplicate)
		}
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (r *SourceRepository) Update(ctx context.Context, source *domain.Source) error {
	source.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE sources
SET name=?, provider=?, owner=?, repo=?, branch=?, token=?, path=?, updated_at=?
WHERE id=?`,
		source.Name,
		string(source.Config.Provider),
		source.Config.Owner,
		source.Config.Repo,
		source.Config.Branch,
		source.Config.Token,
		source.Config.Path,
		source.UpdatedAt,
		source.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update source %q: %w", source.Name, repository.ErrDuplicate)
		}
		return fmt.Errorf("update source: %w", err)
	}
	return expectOneRow(res, "source")
}

func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return expectOneRow(res, "source")
}

func (r *SourceRepository) Get(ctx context.Context, id string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, provider, owner, repo, branch, token, path, created_at, updated_at
FROM sources
WHERE id=?`,
		id,
	)
	return scanSource(row)
}

func (r *SourceRepository) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, provider, owner, repo, branch, token, path, created_at, updated_at
FROM sources
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

func scanSource(scanner interface {
	Scan(dest ...any) error
}) (*domain.Source, error) {
	var (
		source    domain.Source
		provider  string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := scanner.Scan(
		&source.ID,
		&source.Name,
		&provider,
		&source.Config.Owner,
		&source.Config.Repo,
		&source.Config.Branch,
		&source.Config.Token,
		&source.Config.Path,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	source.Config.Provider = domain.Provider(provider)
	source.CreatedAt = createdAt.Local()
	source.UpdatedAt = updatedAt.Local()
	return &source, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func expectOneRow(res sql.Result, what string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if aff == 0 {
		return repository.ErrNotFound
	}
	return nil
}
