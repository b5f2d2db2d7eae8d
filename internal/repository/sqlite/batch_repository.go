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

const (
	createBatchesTable = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	status TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	current TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	finished_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_source_id ON batches(source_id);
`
	createBatchItemsTable = `
CREATE TABLE IF NOT EXISTS batch_items (
	batch_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	image_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, position),
	FOREIGN KEY(batch_id) REFERENCES batches(id) ON DELETE CASCADE
);
`
	selectBatch = `
SELECT id, source_id, status, total, completed, failed, current, error_message, created_at, updated_at, finished_at
FROM batches`
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) repository.BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createBatchesTable); err != nil {
		return fmt.Errorf("create batches table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createBatchItemsTable); err != nil {
		return fmt.Errorf("create batch_items table: %w", err)
	}
	return nil
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO batches (id, source_id, status, total, completed, failed, current, error_message, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.SourceID,
		string(batch.Status),
		batch.Progress.Total,
		batch.Progress.Completed,
		batch.Progress.Failed,
		batch.Progress.Current,
		batch.ErrorMessage,
		batch.CreatedAt,
		batch.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if err := replaceItems(ctx, tx, batch.ID, batch.Progress.Items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errorMessage *string) error {
	msg := ""
	if errorMessage != nil {
		msg = *errorMessage
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE batches
SET status=?, error_message=?, updated_at=?
WHERE id=?`,
		string(status),
		msg,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return expectOneRow(res, "batch")
}

// SaveProgress stores the counters and replaces every progress item.
func (r *BatchRepository) SaveProgress(ctx context.Context, id string, progress domain.BatchUploadProgress) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE batches
SET total=?, completed=?, failed=?, current=?, updated_at=?
WHERE id=?`,
		progress.Total,
		progress.Completed,
		progress.Failed,
		progress.Current,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update batch progress: %w", err)
	}
	if err := expectOneRow(res, "batch"); err != nil {
		return err
	}
	if err := replaceItems(ctx, tx, id, progress.Items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch progress: %w", err)
	}
	return nil
}

func (r *BatchRepository) MarkFinished(ctx context.Context, id string, status domain.BatchStatus, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE batches
SET status=?, finished_at=?, updated_at=?
WHERE id=?`,
		string(status),
		finishedAt.UTC(),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark batch finished: %w", err)
	}
	return expectOneRow(res, "batch")
}

func (r *BatchRepository) Get(ctx context.Context, id string) (*domain.Batch, error) {
	batch, err := scanBatch(r.db.QueryRowContext(ctx, selectBatch+` WHERE id=?`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	batch.Progress.Items = items
	return batch, nil
}

func (r *BatchRepository) ListBySource(ctx context.Context, sourceID string) ([]domain.Batch, error) {
	return r.query(ctx, selectBatch+` WHERE source_id=? ORDER BY created_at DESC`, sourceID)
}

func (r *BatchRepository) ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.Batch, error) {
	if len(statuses) == 0 {
		return []domain.Batch{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}
	query := fmt.Sprintf(selectBatch+` WHERE status IN (%s) ORDER BY created_at ASC`, strings.Join(placeholders, ","))
	return r.query(ctx, query, args...)
}

func (r *BatchRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE source_id=?`, sourceID); err != nil {
		return fmt.Errorf("delete batches: %w", err)
	}
	return nil
}

func (r *BatchRepository) query(ctx context.Context, query string, args ...any) ([]domain.Batch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}

	var batches []domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds one connection; release it before loading items.
	rows.Close()

	for i := range batches {
		items, err := r.listItems(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Progress.Items = items
	}
	return batches, nil
}

func (r *BatchRepository) listItems(ctx context.Context, batchID string) ([]domain.UploadProgressItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, file_name, status, progress, message, image_id
FROM batch_items
WHERE batch_id=?
ORDER BY position ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch items: %w", err)
	}
	defer rows.Close()

	items := []domain.UploadProgressItem{}
	for rows.Next() {
		var (
			item   domain.UploadProgressItem
			status string
		)
		if err := rows.Scan(&item.ID, &item.FileName, &status, &item.Progress, &item.Message, &item.ImageID); err != nil {
			return nil, fmt.Errorf("scan batch item: %w", err)
		}
		item.Status = domain.UploadStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func replaceItems(ctx context.Context, tx *sql.Tx, batchID string, items []domain.UploadProgressItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM batch_items WHERE batch_id=?`, batchID); err != nil {
		return fmt.Errorf("delete batch items: %w", err)
	}
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO batch_items (batch_id, position, id, file_name, status, progress, message, image_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID,
			i,
			item.ID,
			item.FileName,
			string(item.Status),
			item.Progress,
			item.Message,
			item.ImageID,
		); err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}
	return nil
}

func scanBatch(scanner interface {
	Scan(dest ...any) error
}) (*domain.Batch, error) {
	var (
		batch      domain.Batch
		status     string
		createdAt  time.Time
		updatedAt  time.Time
		finishedAt sql.NullTime
	)
	if err := scanner.Scan(
		&batch.ID,
		&batch.SourceID,
		&status,
		&batch.Progress.Total,
		&batch.Progress.Completed,
		&batch.Progress.Failed,
		&batch.Progress.Current,
		&batch.ErrorMessage,
		&createdAt,
		&updatedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	batch.Status = domain.BatchStatus(status)
	batch.CreatedAt = createdAt.Local()
	batch.UpdatedAt = updatedAt.Local()
	if finishedAt.Valid {
		t := finishedAt.Time.Local()
		batch.FinishedAt = &t
	}
	return &batch, nil
}
