package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"jobmate/watch-service/internal/model"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	watches map[string]*model.Watch
	events  map[string]map[string]model.MatchEvent // watch id -> hash -> event
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		watches: map[string]*model.Watch{},
		events:  map[string]map[string]model.MatchEvent{},
	}
}

func clone(w *model.Watch) *model.Watch {
	c := *w
	c.Criteria = slices.Clone(w.Criteria)
	for i := range c.Criteria {
		c.Criteria[i].Values = slices.Clone(w.Criteria[i].Values)
	}
	c.SeenListingIDs = slices.Clone(w.SeenListingIDs)
	if w.ExpiresAt != nil {
		t := *w.ExpiresAt
		c.ExpiresAt = &t
	}
	if w.LastRunAt != nil {
		t := *w.LastRunAt
		c.LastRunAt = &t
	}
	return &c
}

func (m *Memory) Create(_ context.Context, w *model.Watch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[w.ID]; ok {
		return &model.ValidationError{Msg: "watch " + w.ID + " already exists"}
	}
	if w.Version == 0 {
		w.Version = 1
	}
	m.watches[w.ID] = clone(w)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watches[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return clone(w), nil
}

func (m *Memory) ListByOwner(_ context.Context, owner model.Owner) ([]model.Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Watch
	for _, w := range m.watches {
		if owner.Owns(w.Owner) {
			out = append(out, *clone(w))
		}
	}
	sortWatches(out)
	return out, nil
}

func (m *Memory) ListRunnable(_ context.Context, now time.Time) ([]model.Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Watch
	for _, w := range m.watches {
		if !w.Expired(now) {
			out = append(out, *clone(w))
		}
	}
	sortWatches(out)
	return out, nil
}

func (m *Memory) CommitRun(_ context.Context, c RunCommit) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[c.WatchID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if w.Version != c.ExpectedVersion {
		return 0, model.ErrConflict
	}

	w.SeenListingIDs = model.MergeSeen(w.SeenListingIDs, c.SeenListingIDs)
	ranAt := c.RanAt
	w.LastRunAt = &ranAt
	w.UpdatedAt = c.RanAt
	w.Version++

	log := m.events[c.WatchID]
	if log == nil {
		log = map[string]model.MatchEvent{}
		m.events[c.WatchID] = log
	}
	inserted := 0
	for _, e := range c.Events {
		if _, dup := log[e.Hash]; dup {
			continue
		}
		log[e.Hash] = e
		inserted++
	}
	return inserted, nil
}

func (m *Memory) Rename(_ context.Context, id, name string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[id]
	if !ok {
		return model.ErrNotFound
	}
	w.Name = name
	w.UpdatedAt = now
	w.Version++
	return nil
}

func (m *Memory) Delete(_ context.Context, id string, owner model.Owner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[id]
	if !ok || !owner.Owns(w.Owner) {
		return false, nil
	}
	m.deleteLocked(id)
	return true, nil
}

func (m *Memory) DeleteByToken(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.watches {
		if w.Owner.DeletionToken == token {
			m.deleteLocked(id)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, w := range m.watches {
		if w.Expired(now) {
			m.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecentMatches(_ context.Context, watchID string, limit int) ([]model.MatchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MatchEvent, 0, len(m.events[watchID]))
	for _, e := range m.events[watchID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MatchedAt.Equal(out[j].MatchedAt) {
			return out[i].MatchedAt.After(out[j].MatchedAt)
		}
		return out[i].ListingID < out[j].ListingID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PruneMatches(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, log := range m.events {
		for h, e := range log {
			if e.MatchedAt.Before(before) {
				delete(log, h)
				n++
			}
		}
	}
	return n, nil
}

// EventCount returns the number of logged events for watchID.
func (m *Memory) EventCount(watchID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[watchID])
}

func (m *Memory) deleteLocked(id string) {
	delete(m.watches, id)
	delete(m.events, id)
}

func sortWatches(ws []model.Watch) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID < ws[j].ID
	})
}
