// Package catalog holds the in-memory view of every source's images and the
// live progress of running batch uploads.
package catalog

import (
	"sort"
	"sync"
	"time"

	"pixrepo/internal/domain"
)

// Merge folds incoming into existing keyed by image ID. When an ID is present
// on both sides the record with the later UpdatedAt wins; on a tie the
// incoming record wins. The result is ordered newest first.
func Merge(existing []domain.ImageItem, incoming ...domain.ImageItem) []domain.ImageItem {
	byID := make(map[string]domain.ImageItem, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))
	put := func(item domain.ImageItem, incoming bool) {
		cur, ok := byID[item.ID]
		if !ok {
			order = append(order, item.ID)
			byID[item.ID] = item
			return
		}
		if item.UpdatedAt.After(cur.UpdatedAt) || (incoming && item.UpdatedAt.Equal(cur.UpdatedAt)) {
			byID[item.ID] = item
		}
	}
	for _, item := range existing {
		put(item, false)
	}
	for _, item := range incoming {
		put(item, true)
	}

	out := make([]domain.ImageItem, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Store is the per-source image collection. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	images map[string][]domain.ImageItem
	// progress is keyed by source, then batch.
	progress map[string]map[string]domain.BatchUploadProgress
}

// LiveBatch is the progress of one running batch.
type LiveBatch struct {
	BatchID  string
	Progress domain.BatchUploadProgress
}

func NewStore() *Store {
	return &Store{
		images:   make(map[string][]domain.ImageItem),
		progress: make(map[string]map[string]domain.BatchUploadProgress),
	}
}

// Replace swaps in a collection listed from the remote starting at listedAt.
// Held records survive when they are newer than their listed counterpart, or
// when they are missing from the listing but were updated after listedAt (an
// upload that finished while the list ran). Other held records are dropped.
func (s *Store) Replace(sourceID string, items []domain.ImageItem, listedAt time.Time) []domain.ImageItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	listed := make(map[string]domain.ImageItem, len(items))
	for _, item := range items {
		listed[item.ID] = item
	}
	var keep []domain.ImageItem
	for _, h := range s.images[sourceID] {
		l, ok := listed[h.ID]
		switch {
		case ok && h.UpdatedAt.After(l.UpdatedAt):
			keep = append(keep, h)
		case !ok && h.UpdatedAt.After(listedAt):
			keep = append(keep, h)
		}
	}
	merged := Merge(items, keep...)
	s.images[sourceID] = merged
	return clone(merged)
}

// Add merges newly created or updated images into the source's collection.
func (s *Store) Add(sourceID string, items ...domain.ImageItem) []domain.ImageItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := Merge(s.images[sourceID], items...)
	s.images[sourceID] = merged
	return clone(merged)
}

// Remove drops the image with the given ID. It reports whether one was held.
func (s *Store) Remove(sourceID, imageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.images[sourceID]
	for i, item := range items {
		if item.ID == imageID {
			s.images[sourceID] = append(items[:i:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveByName drops every image with the given name.
func (s *Store) RemoveByName(sourceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.images[sourceID]
	kept := items[:0:0]
	for _, item := range items {
		if item.Name != name {
			kept = append(kept, item)
		}
	}
	s.images[sourceID] = kept
}

// List returns a copy of the source's collection.
func (s *Store) List(sourceID string) []domain.ImageItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.images[sourceID])
}

// Forget drops everything held for a source.
func (s *Store) Forget(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, sourceID)
	delete(s.progress, sourceID)
}

// SetProgress records the live progress of one batch of a source.
func (s *Store) SetProgress(sourceID, batchID string, p domain.BatchUploadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches, ok := s.progress[sourceID]
	if !ok {
		batches = make(map[string]domain.BatchUploadProgress)
		s.progress[sourceID] = batches
	}
	batches[batchID] = p.Clone()
}

// ClearProgress forgets the live progress of one batch. Other batches of the
// same source are untouched.
func (s *Store) ClearProgress(sourceID, batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches := s.progress[sourceID]
	delete(batches, batchID)
	if len(batches) == 0 {
		delete(s.progress, sourceID)
	}
}

// Progress returns the live progress of every running batch of a source,
// ordered by batch ID.
func (s *Store) Progress(sourceID string) []LiveBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LiveBatch, 0, len(s.progress[sourceID]))
	for id, p := range s.progress[sourceID] {
		out = append(out, LiveBatch{BatchID: id, Progress: p.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out
}

func clone(items []domain.ImageItem) []domain.ImageItem {
	out := make([]domain.ImageItem, len(items))
	copy(out, items)
	return out
}
