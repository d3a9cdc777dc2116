package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/scanner"
)

// owned loads id and checks that owner may act on it.
func (r *Runner) owned(ctx context.Context, id string, owner model.Owner) (*model.Watch, error) {
	w, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owner.Owns(w.Owner) {
		return nil, model.ErrForbidden
	}
	return w, nil
}

// Get returns the watch id if owner owns it.
func (r *Runner) Get(ctx context.Context, id string, owner model.Owner) (*model.Watch, error) {
	return r.owned(ctx, id, owner)
}

// List returns owner's watches, oldest first.
func (r *Runner) List(ctx context.Context, owner model.Owner) ([]model.Watch, error) {
	if owner.IsZero() {
		return nil, &model.ValidationError{Msg: "owner is required"}
	}
	return r.store.ListByOwner(ctx, owner)
}

// Rename changes the display name of a watch.
func (r *Runner) Rename(ctx context.Context, id string, owner model.Owner, name string) (*model.Watch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &model.ValidationError{Msg: "name is required"}
	}
	if _, err := r.owned(ctx, id, owner); err != nil {
		return nil, err
	}
	if err := r.store.Rename(ctx, id, name, r.now()); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

// Delete removes the watch if owner owns it. Missing or foreign watches
// report false without an error.
func (r *Runner) Delete(ctx context.Context, id string, owner model.Owner) (bool, error) {
	if owner.IsZero() {
		return false, nil
	}
	ok, err := r.store.Delete(ctx, id, owner)
	if err != nil {
		return false, fmt.Errorf("delete watch: %w", err)
	}
	if ok {
		r.log.Info("watch deleted", zap.String("watch_id", id))
	}
	return ok, nil
}

// DeleteByToken removes the guest watch carrying token.
func (r *Runner) DeleteByToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	ok, err := r.store.DeleteByToken(ctx, token)
	if err != nil {
		return false, fmt.Errorf("delete watch by token: %w", err)
	}
	if ok {
		r.log.Info("watch unsubscribed by token")
	}
	return ok, nil
}

// RecentMatches lists the newest match events of a watch.
func (r *Runner) RecentMatches(ctx context.Context, id string, owner model.Owner, limit int) ([]model.MatchEvent, error) {
	if _, err := r.owned(ctx, id, owner); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return r.store.RecentMatches(ctx, id, limit)
}

// SweepExpired deletes guest watches past their expiry.
func (r *Runner) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired watches: %w", err)
	}
	if n > 0 {
		r.log.Info("expired watches removed", zap.Int64("count", n))
	}
	return n, nil
}

// PruneMatches drops match events older than the retention window.
func (r *Runner) PruneMatches(ctx context.Context) (int64, error) {
	if r.cfg.MatchRetention <= 0 {
		return 0, nil
	}
	n, err := r.store.PruneMatches(ctx, r.now().Add(-r.cfg.MatchRetention))
	if err != nil {
		return 0, fmt.Errorf("prune match events: %w", err)
	}
	if n > 0 {
		r.log.Info("old match events pruned", zap.Int64("count", n))
	}
	return n, nil
}

// Fields lists the attribute paths present in categories.
func (r *Runner) Fields(ctx context.Context, categories []model.Category) ([]scanner.FieldSummary, error) {
	return r.scanner.EnumerateFields(ctx, categories)
}
