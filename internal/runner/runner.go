// Package runner owns the watch lifecycle: creation with a silent seed,
// single and batch runs that report only newly seen listings, and
// ownership-checked deletion.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/matcher"
	"jobmate/watch-service/internal/metrics"
	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/scanner"
	"jobmate/watch-service/internal/store"
)

const (
	DefaultGuestTTL         = 90 * 24 * time.Hour
	DefaultMaxCommitRetries = 3
	DefaultRecentLimit      = 50
)

// Notifier is told about listings a watch matched for the first time.
type Notifier interface {
	NewMatches(ctx context.Context, w *model.Watch, listings []model.Listing) error
}

// StatusRecorder keeps the outcome of the most recent batch.
type StatusRecorder interface {
	RecordBatch(ctx context.Context, r *model.BatchReport) error
	LastBatch(ctx context.Context) (*model.BatchReport, error)
}

// Config tunes a Runner. Zero values take the defaults.
type Config struct {
	GuestTTL         time.Duration
	MaxCommitRetries int
	// MatchRetention is how long match events are kept; zero keeps them forever.
	MatchRetention time.Duration
}

// Runner executes watches against the catalog. It is safe for concurrent use
// as long as its collaborators are.
type Runner struct {
	store    store.Store
	scanner  *scanner.Scanner
	cfg      Config
	notifier Notifier
	status   StatusRecorder
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option customizes a Runner.
type Option func(*Runner)

func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }
func WithStatusRecorder(s StatusRecorder) Option { return func(r *Runner) { r.status = s } }
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.log = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithIDs replaces the generator used for watch ids and deletion tokens.
func WithIDs(newID func() string) Option { return func(r *Runner) { r.newID = newID } }

// New returns a Runner over st and sc.
func New(st store.Store, sc *scanner.Scanner, cfg Config, opts ...Option) *Runner {
	if cfg.GuestTTL <= 0 {
		cfg.GuestTTL = DefaultGuestTTL
	}
	if cfg.MaxCommitRetries <= 0 {
		cfg.MaxCommitRetries = DefaultMaxCommitRetries
	}
	r := &Runner{
		store:   st,
		scanner: sc,
		cfg:     cfg,
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ─── Create ──────────────────────────────────────────────────────────────────

// CreateRequest carries the fields a caller supplies for a new watch.
type CreateRequest struct {
	Owner       model.Owner
	Name        string
	Category    model.Category
	Criteria    []model.Criterion
	CreatedByIP string
}

// Create validates req, seeds the seen set with every listing that matches
// right now and stores the watch. Seeding logs no match events. Guest
// watches get a fresh deletion token and an expiry.
func (r *Runner) Create(ctx context.Context, req CreateRequest) (*model.Watch, error) {
	if req.Owner.IsZero() {
		return nil, &model.ValidationError{Msg: "owner is required"}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &model.ValidationError{Msg: "name is required"}
	}
	category, err := model.ParseCategory(string(req.Category))
	if err != nil {
		return nil, &model.ValidationError{Msg: err.Error()}
	}
	rules, err := matcher.Flatten(req.Criteria)
	if err != nil {
		return nil, err
	}

	seed, err := r.scanner.CollectMatches(ctx, rules, matcher.LogicAnd, []model.Category{category})
	if err != nil {
		return nil, fmt.Errorf("seed watch: %w", err)
	}
	seen := make([]string, 0, len(seed))
	for _, l := range seed {
		seen = append(seen, l.ID)
	}

	now := r.now()
	w := &model.Watch{
		ID:             r.newID(),
		Owner:          model.Owner{UserID: req.Owner.UserID},
		Name:           name,
		Category:       category,
		Criteria:       req.Criteria,
		SeenListingIDs: model.MergeSeen(nil, seen),
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedByIP:    req.CreatedByIP,
		Version:        1,
	}
	if req.Owner.IsGuest() {
		w.Owner.GuestEmail = strings.TrimSpace(req.Owner.GuestEmail)
		w.Owner.DeletionToken = r.newID()
		expires := now.Add(r.cfg.GuestTTL)
		w.ExpiresAt = &expires
	}

	if err := r.store.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("store watch: %w", err)
	}
	r.log.Info("watch created",
		zap.String("watch_id", w.ID),
		zap.String("category", string(category)),
		zap.Int("criteria", len(req.Criteria)),
		zap.Int("seeded", len(w.SeenListingIDs)),
		zap.Bool("guest", w.Owner.IsGuest()),
	)
	return w, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// RunResult is what one run reports back: the listings never shown before
// and how many listings match in total.
type RunResult struct {
	NewListings         []model.Listing `json:"new_listings"`
	TotalCurrentMatches int             `json:"total_current_matches"`
}

// Run executes the watch id on behalf of owner.
func (r *Runner) Run(ctx context.Context, id string, owner model.Owner) (*RunResult, error) {
	w, err := r.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	res, _, err := r.execute(ctx, w)
	return res, err
}

// execute scans the catalog for w and commits the newly seen listings. A
// concurrent run that commits first makes CommitRun fail with ErrConflict;
// the diff is then recomputed against the fresh seen set.
func (r *Runner) execute(ctx context.Context, w *model.Watch) (*RunResult, model.RunOutcome, error) {
	start := r.now()
	log := r.log.With(zap.String("watch_id", w.ID))

	rules, err := matcher.Flatten(w.Criteria)
	if err != nil {
		log.Warn("watch has invalid criteria; they will not match", zap.Error(err))
	}
	if len(rules) == 0 {
		r.metrics.RunFinished(string(model.OutcomeNoRules), 0, r.now().Sub(start))
		return &RunResult{NewListings: []model.Listing{}}, model.OutcomeNoRules, nil
	}

	matches, err := r.scanner.CollectMatches(ctx, rules, matcher.LogicAnd, []model.Category{w.Category})
	if err != nil {
		r.metrics.RunFinished(string(model.OutcomeFailed), 0, r.now().Sub(start))
		return nil, model.OutcomeFailed, fmt.Errorf("scan for watch %s: %w", w.ID, err)
	}

	var fresh []model.Listing
	for attempt := 0; ; attempt++ {
		fresh = unseen(w, matches)
		ranAt := r.now()
		ids := make([]string, 0, len(fresh))
		events := make([]model.MatchEvent, 0, len(fresh))
		for _, l := range fresh {
			ids = append(ids, l.ID)
			events = append(events, model.NewMatchEvent(w.ID, l.ID, ranAt))
		}

		_, err = r.store.CommitRun(ctx, store.RunCommit{
			WatchID:         w.ID,
			ExpectedVersion: w.Version,
			SeenListingIDs:  model.MergeSeen(w.SeenListingIDs, ids),
			Events:          events,
			RanAt:           ranAt,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, model.ErrConflict) || attempt >= r.cfg.MaxCommitRetries {
			r.metrics.RunFinished(string(model.OutcomeFailed), 0, r.now().Sub(start))
			return nil, model.OutcomeFailed, fmt.Errorf("commit run of watch %s: %w", w.ID, err)
		}
		log.Debug("watch changed during run; retrying commit", zap.Int("attempt", attempt+1))
		if w, err = r.store.Get(ctx, w.ID); err != nil {
			r.metrics.RunFinished(string(model.OutcomeFailed), 0, r.now().Sub(start))
			return nil, model.OutcomeFailed, fmt.Errorf("reload watch: %w", err)
		}
	}

	if len(fresh) > 0 && r.notifier != nil {
		if err := r.notifier.NewMatches(ctx, w, fresh); err != nil {
			log.Warn("match notification failed", zap.Error(err))
		}
	}

	r.metrics.RunFinished(string(model.OutcomeOK), len(fresh), r.now().Sub(start))
	log.Debug("watch run finished",
		zap.Int("new", len(fresh)),
		zap.Int("total", len(matches)),
	)
	return &RunResult{NewListings: fresh, TotalCurrentMatches: len(matches)}, model.OutcomeOK, nil
}

// unseen returns the matches not yet in w's seen set, in scan order.
func unseen(w *model.Watch, matches []model.Listing) []model.Listing {
	seen := w.Seen()
	out := make([]model.Listing, 0)
	for _, l := range matches {
		if _, ok := seen[l.ID]; !ok {
			out = append(out, l)
		}
	}
	return out
}

// RunAll runs every non-expired watch. A failing watch is recorded in the
// report and does not stop the batch.
func (r *Runner) RunAll(ctx context.Context) (*model.BatchReport, error) {
	report := &model.BatchReport{StartedAt: r.now(), Traces: []model.RunTrace{}}

	watches, err := r.store.ListRunnable(ctx, report.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("list runnable watches: %w", err)
	}

	for i := range watches {
		w := &watches[i]
		trace := model.RunTrace{WatchID: w.ID}
		res, outcome, err := r.execute(ctx, w)
		trace.Outcome = outcome
		if err != nil {
			trace.Error = err.Error()
			r.log.Warn("watch run failed", zap.String("watch_id", w.ID), zap.Error(err))
		} else {
			trace.New = len(res.NewListings)
			trace.Total = res.TotalCurrentMatches
		}
		report.Traces = append(report.Traces, trace)
	}
	report.FinishedAt = r.now()

	r.metrics.BatchFinished(len(watches))
	if r.status != nil {
		if err := r.status.RecordBatch(ctx, report); err != nil {
			r.log.Warn("record batch status failed", zap.Error(err))
		}
	}
	r.log.Info("run-all finished",
		zap.Int("watches", len(watches)),
		zap.Int("failed", report.Failed()),
		zap.Int("new_matches", report.NewMatches()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// LastBatch returns the most recent RunAll report.
func (r *Runner) LastBatch(ctx context.Context) (*model.BatchReport, error) {
	if r.status == nil {
		return nil, model.ErrNotFound
	}
	return r.status.LastBatch(ctx)
}
