// Package store persists watches and their match-event log.
package store

import (
	"context"
	"time"

	"jobmate/watch-service/internal/model"
)

// RunCommit is everything one watch run persists. It is applied atomically:
// either the seen set, last-run time and events are all written, or none.
type RunCommit struct {
	WatchID         string
	ExpectedVersion int64
	// SeenListingIDs is the complete new seen set (old set plus new ids).
	SeenListingIDs []string
	Events         []model.MatchEvent
	RanAt          time.Time
}

// Store is the persistence contract for watches.
//
// Get, Rename and CommitRun return model.ErrNotFound for unknown ids.
// CommitRun returns model.ErrConflict when the watch's version moved on
// since it was read.
type Store interface {
	Create(ctx context.Context, w *model.Watch) error
	Get(ctx context.Context, id string) (*model.Watch, error)
	ListByOwner(ctx context.Context, owner model.Owner) ([]model.Watch, error)
	// ListRunnable returns every watch not expired at now.
	ListRunnable(ctx context.Context, now time.Time) ([]model.Watch, error)
	// CommitRun applies c and returns how many events were newly logged.
	CommitRun(ctx context.Context, c RunCommit) (int, error)
	Rename(ctx context.Context, id, name string, now time.Time) error
	// Delete removes the watch if owner owns it.
	Delete(ctx context.Context, id string, owner model.Owner) (bool, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	RecentMatches(ctx context.Context, watchID string, limit int) ([]model.MatchEvent, error)
	PruneMatches(ctx context.Context, before time.Time) (int64, error)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
