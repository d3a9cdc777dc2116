// Package catalog provides access to the external listing catalog: the
// Catalog interface the scanner pages through, an HTTP client for the
// catalog's REST API and an in-memory implementation (optionally loaded
// from a YAML fixture file).
package catalog

import (
	"context"
	"slices"
	"sync"

	"jobmate/watch-service/internal/model"
)

// PageQuery selects one page of listings. Pages are 1-based.
type PageQuery struct {
	Categories []model.Category
	Status     string
	Page       int
	PageSize   int
}

// Catalog is the listing source.
type Catalog interface {
	// ListPage returns the listings of one page; an empty page ends a scan.
	ListPage(ctx context.Context, q PageQuery) ([]model.Listing, error)
	// Attributes returns the attribute tree of a single listing.
	Attributes(ctx context.Context, listingID string) (model.Value, error)
}

// Memory is a mutex-guarded in-process catalog.
type Memory struct {
	mu       sync.RWMutex
	listings []model.Listing
}

// NewMemory returns a catalog holding listings in the given order.
func NewMemory(listings ...model.Listing) *Memory {
	return &Memory{listings: slices.Clone(listings)}
}

// Put adds l, replacing any listing with the same id in place.
func (m *Memory) Put(l model.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.listings {
		if m.listings[i].ID == l.ID {
			m.listings[i] = l
			return
		}
	}
	m.listings = append(m.listings, l)
}

// Remove deletes the listing with id, if present.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = slices.DeleteFunc(m.listings, func(l model.Listing) bool { return l.ID == id })
}

// Len returns the number of listings held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listings)
}

func (m *Memory) ListPage(ctx context.Context, q PageQuery) ([]model.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []model.Listing
	for _, l := range m.listings {
		if !q.Matches(l) {
			continue
		}
		filtered = append(filtered, l)
	}

	size := q.PageSize
	if size <= 0 {
		size = len(filtered)
	}
	page := max(q.Page, 1)
	start := (page - 1) * size
	if start >= len(filtered) {
		return nil, nil
	}
	end := min(start+size, len(filtered))
	return slices.Clone(filtered[start:end]), nil
}

func (m *Memory) Attributes(ctx context.Context, listingID string) (model.Value, error) {
	if err := ctx.Err(); err != nil {
		return model.Absent(), err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.listings {
		if l.ID == listingID {
			return l.Attributes, nil
		}
	}
	return model.Absent(), model.ErrNotFound
}

// Matches reports whether l passes the status and category filters of q.
// A listing without a status is accepted.
func (q PageQuery) Matches(l model.Listing) bool {
	if q.Status != "" && l.Status != "" && l.Status != q.Status {
		return false
	}
	if len(q.Categories) == 0 {
		return true
	}
	return slices.Contains(q.Categories, l.Category)
}
