package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"pixrepo/internal/catalog"
	"pixrepo/internal/domain"
	"pixrepo/internal/service"
)

// ErrNotStarted is returned by Enqueue before Start.
var ErrNotStarted = errors.New("upload manager not started")

// Manager runs queued batches in the background, persists their progress and
// fans it out to subscribers.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, sourceID string, req BatchRequest) (*domain.Batch, error)
	// Recover fails batches left pending or running by a previous process;
	// their payloads were held in memory and are gone.
	Recover(ctx context.Context) error
	Cancel(ctx context.Context, batchID string) error
	// Subscribe streams progress of an active batch. The channel is closed
	// when the batch finishes. ok is false when the batch is not active.
	Subscribe(batchID string) (events <-chan domain.BatchUploadProgress, unsubscribe func(), ok bool)
}

type Config struct {
	// MaxConcurrent bounds how many batches run at once. Items within a batch
	// are always sequential.
	MaxConcurrent int
	Logger        *logrus.Logger
}

type manager struct {
	cfg     Config
	sources service.SourceService
	batches service.BatchService
	catalog *catalog.Store

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]*batchHandle
}

type batchHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	nextSub int
	subs    map[int]chan domain.BatchUploadProgress
}

func NewManager(cfg Config, sources service.SourceService, batches service.BatchService, store *catalog.Store) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		sources: sources,
		batches: batches,
		catalog: store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[string]*batchHandle),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return errors.New("upload manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("upload manager started, %d concurrent batch(es)", m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("upload manager stopped")
}

func (m *manager) Enqueue(ctx context.Context, sourceID string, req BatchRequest) (*domain.Batch, error) {
	m.mu.Lock()
	started := m.ctx != nil
	m.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files", service.ErrInvalidImage)
	}
	if _, err := m.sources.Get(ctx, sourceID); err != nil {
		return nil, err
	}

	batch, err := m.batches.CreateBatch(ctx, sourceID, req.fileNames())
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	m.spawnBatch(*batch, req)
	return batch, nil
}

func (m *manager) Recover(ctx context.Context) error {
	batches, err := m.batches.ListByStatuses(ctx, domain.BatchStatusPending, domain.BatchStatusRunning)
	if err != nil {
		return err
	}
	for i := range batches {
		batch := batches[i]
		if m.isActive(batch.ID) {
			continue
		}
		progress := batch.Progress
		failRemaining(&progress, 0, "interrupted")
		progress.Current = ""
		if err := m.batches.SaveProgress(ctx, batch.ID, progress); err != nil {
			return err
		}
		m.failBatch(ctx, batch.ID, errors.New("interrupted by restart"))
	}
	if len(batches) > 0 {
		m.cfg.Logger.Warnf("marked %d interrupted batch(es) failed", len(batches))
	}
	return nil
}

func (m *manager) spawnBatch(batch domain.Batch, req BatchRequest) {
	batchCtx, cancel := context.WithCancel(m.ctx)
	handle := &batchHandle{
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[int]chan domain.BatchUploadProgress),
	}
	m.registerBatch(batch.ID, handle)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.unregisterBatch(batch.ID)
			close(handle.done)
		}()
		select {
		case <-batchCtx.Done():
			m.finishCancelled(batch)
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.handleBatch(batchCtx, &batch, req)
		}
	}()
}

func (m *manager) registerBatch(id string, handle *batchHandle) {
	m.mu.Lock()
	m.active[id] = handle
	m.mu.Unlock()
}

// unregisterBatch removes the handle and closes every subscriber channel.
func (m *manager) unregisterBatch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.active[id]
	if !ok {
		return
	}
	delete(m.active, id)
	for key, ch := range handle.subs {
		close(ch)
		delete(handle.subs, key)
	}
}

func (m *manager) isActive(id string) bool {
	m.mu.Lock()
	_, ok := m.active[id]
	m.mu.Unlock()
	return ok
}

func (m *manager) Cancel(ctx context.Context, batchID string) error {
	m.mu.Lock()
	handle, ok := m.active[batchID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	handle.cancel()
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) Subscribe(batchID string) (<-chan domain.BatchUploadProgress, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.active[batchID]
	if !ok {
		return nil, func() {}, false
	}
	key := handle.nextSub
	handle.nextSub++
	ch := make(chan domain.BatchUploadProgress, 16)
	handle.subs[key] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := handle.subs[key]; ok {
			close(c)
			delete(handle.subs, key)
		}
	}
	return ch, unsubscribe, true
}

// broadcast never blocks; a slow subscriber misses intermediate updates.
func (m *manager) broadcast(batchID string, p domain.BatchUploadProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.active[batchID]
	if !ok {
		return
	}
	for _, ch := range handle.subs {
		select {
		case ch <- p.Clone():
		default:
		}
	}
}

func (m *manager) handleBatch(ctx context.Context, batch *domain.Batch, req BatchRequest) {
	logger := m.cfg.Logger.WithFields(logrus.Fields{"batch_id": batch.ID, "source": batch.SourceID})
	// Bookkeeping outlives cancellation of the batch itself.
	persistCtx := context.WithoutCancel(ctx)

	images, err := m.sources.Images(ctx, batch.SourceID)
	if err != nil {
		progress := batch.Progress
		failRemaining(&progress, 0, err.Error())
		if err := m.batches.SaveProgress(persistCtx, batch.ID, progress); err != nil {
			logger.Warnf("persist progress: %v", err)
		}
		m.broadcast(batch.ID, progress)
		m.failBatch(persistCtx, batch.ID, err)
		return
	}
	if err := m.batches.UpdateStatus(persistCtx, batch.ID, domain.BatchStatusRunning, nil); err != nil {
		logger.Warnf("persist running status: %v", err)
	}
	logger.Infof("batch started with %d file(s)", len(req.Files))

	created, progress := run(ctx, images, req, batch.Progress, func(p domain.BatchUploadProgress) {
		if err := m.batches.SaveProgress(persistCtx, batch.ID, p); err != nil {
			logger.Warnf("persist progress: %v", err)
		}
		m.catalog.SetProgress(batch.SourceID, batch.ID, p)
		m.broadcast(batch.ID, p)
	})

	if len(created) > 0 {
		m.catalog.Add(batch.SourceID, created...)
	}
	m.catalog.ClearProgress(batch.SourceID, batch.ID)

	status := domain.BatchStatusCompleted
	if ctx.Err() != nil {
		status = domain.BatchStatusCancelled
	}
	if err := m.batches.MarkFinished(persistCtx, batch.ID, status); err != nil {
		logger.Errorf("persist final status: %v", err)
	}
	logger.Infof("batch %s: %d uploaded, %d failed of %d", status, progress.Completed, progress.Failed, progress.Total)
}

// finishCancelled records a batch cancelled before it got a worker slot.
func (m *manager) finishCancelled(batch domain.Batch) {
	ctx := context.WithoutCancel(m.ctx)
	progress := batch.Progress
	failRemaining(&progress, 0, cancelledMessage)
	if err := m.batches.SaveProgress(ctx, batch.ID, progress); err != nil {
		m.cfg.Logger.WithField("batch_id", batch.ID).Warnf("persist progress: %v", err)
	}
	m.broadcast(batch.ID, progress)
	if err := m.batches.MarkFinished(ctx, batch.ID, domain.BatchStatusCancelled); err != nil {
		m.cfg.Logger.WithField("batch_id", batch.ID).Errorf("persist final status: %v", err)
	}
}

func (m *manager) failBatch(ctx context.Context, batchID string, failErr error) {
	msg := failErr.Error()
	logger := m.cfg.Logger.WithField("batch_id", batchID)
	if err := m.batches.UpdateStatus(ctx, batchID, domain.BatchStatusFailed, &msg); err != nil {
		logger.Errorf("persist failure status: %v", err)
	}
	if err := m.batches.MarkFinished(ctx, batchID, domain.BatchStatusFailed); err != nil {
		logger.Errorf("persist failure status: %v", err)
	}
	logger.Error(msg)
}

var _ Manager = (*manager)(nil)
