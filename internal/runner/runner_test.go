package runner_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/watch-service/internal/catalog"
	"jobmate/watch-service/internal/events"
	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/runner"
	"jobmate/watch-service/internal/scanner"
	"jobmate/watch-service/internal/store"
)

var (
	alice = model.Owner{UserID: "alice"}
	bob   = model.Owner{UserID: "bob"}
)

type fixture struct {
	catalog *catalog.Memory
	store   *store.Memory
	status  *events.MemoryStatus
	runner  *runner.Runner
	now     time.Time
	seq     int
}

func newFixture(t *testing.T, listings ...model.Listing) *fixture {
	t.Helper()
	f := &fixture{
		catalog: catalog.NewMemory(listings...),
		store:   store.NewMemory(),
		status:  &events.MemoryStatus{},
		now:     time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	f.runner = f.build(f.catalog)
	return f
}

func (f *fixture) build(c catalog.Catalog, opts ...runner.Option) *runner.Runner {
	base := []runner.Option{
		runner.WithClock(func() time.Time { return f.now }),
		runner.WithIDs(func() string { f.seq++; return fmt.Sprintf("id-%d", f.seq) }),
		runner.WithStatusRecorder(f.status),
	}
	sc := scanner.New(c, nil, scanner.Config{PageSize: 2}, nil, nil)
	return runner.New(f.store, sc, runner.Config{MatchRetention: 30 * 24 * time.Hour}, append(base, opts...)...)
}

func listing(id string, attrs map[string]any) model.Listing {
	return model.Listing{
		ID:         id,
		Title:      "Listing " + id,
		Category:   model.CategoryForSale,
		Status:     model.StatusPublished,
		Attributes: model.FromAny(attrs),
	}
}

func asunto(id string) model.Listing {
	return listing(id, map[string]any{"tyyppi": "Asunto"})
}

func exact(field string, values ...string) model.Criterion {
	return model.Criterion{FieldPath: field, Kind: model.KindExactOrSet, Values: values}
}

func (f *fixture) create(t *testing.T, owner model.Owner, criteria ...model.Criterion) *model.Watch {
	t.Helper()
	w, err := f.runner.Create(context.Background(), runner.CreateRequest{
		Owner:    owner,
		Name:     "Saved search",
		Category: model.CategoryForSale,
		Criteria: criteria,
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) run(t *testing.T, w *model.Watch) *runner.RunResult {
	t.Helper()
	res, err := f.runner.Run(context.Background(), w.ID, w.Owner)
	require.NoError(t, err)
	return res
}

func newIDs(res *runner.RunResult) []string {
	out := []string{}
	for _, l := range res.NewListings {
		out = append(out, l.ID)
	}
	return out
}

func TestCreate_SeedsSilently(t *testing.T) {
	f := newFixture(t, asunto("1"), asunto("2"), listing("9", map[string]any{"tyyppi": "Tontti"}))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))

	assert.Equal(t, []string{"1", "2"}, w.SeenListingIDs)
	assert.Equal(t, 0, f.store.EventCount(w.ID))
	assert.Nil(t, w.ExpiresAt)
	assert.Empty(t, w.Owner.DeletionToken)

	res := f.run(t, w)
	assert.Empty(t, res.NewListings)
	assert.Equal(t, 2, res.TotalCurrentMatches)
}

func TestRun_ReportsOnlyNewListingsOnce(t *testing.T) {
	f := newFixture(t, asunto("1"), asunto("2"))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))

	assert.Empty(t, f.run(t, w).NewListings)

	f.catalog.Put(asunto("3"))
	res := f.run(t, w)
	assert.Equal(t, []string{"3"}, newIDs(res))
	assert.Equal(t, 3, res.TotalCurrentMatches)
	assert.Equal(t, 1, f.store.EventCount(w.ID))

	res = f.run(t, w)
	assert.Empty(t, res.NewListings)
	assert.Equal(t, 1, f.store.EventCount(w.ID))

	recent, err := f.runner.RecentMatches(context.Background(), w.ID, alice, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.MatchHash(w.ID, "3"), recent[0].Hash)
}

func TestRun_SeenSetNeverShrinks(t *testing.T) {
	f := newFixture(t, asunto("1"), asunto("2"))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))
	f.catalog.Put(asunto("3"))
	f.run(t, w)

	before, err := f.store.Get(context.Background(), w.ID)
	require.NoError(t, err)

	f.catalog.Remove("1")
	f.catalog.Remove("3")
	res := f.run(t, w)
	assert.Equal(t, 1, res.TotalCurrentMatches)

	after, err := f.store.Get(context.Background(), w.ID)
	require.NoError(t, err)
	for _, id := range before.SeenListingIDs {
		assert.Contains(t, after.SeenListingIDs, id)
	}
	require.NotNil(t, after.LastRunAt)
}

func TestRun_RangeCriterion(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, alice, model.Criterion{
		FieldPath: "hinta", Kind: model.KindRange, Values: []string{"100000", "40000"},
	})

	f.catalog.Put(listing("cheap", map[string]any{"hinta": 50000}))
	f.catalog.Put(listing("pricey", map[string]any{"hinta": 300000}))

	assert.Equal(t, []string{"cheap"}, newIDs(f.run(t, w)))
}

func TestRun_SetCriterionNormalizesValues(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, alice, exact("sijainti", "Helsinki", "Espoo"))

	f.catalog.Put(listing("hki", map[string]any{"sijainti": "HELSINKI "}))
	f.catalog.Put(listing("tre", map[string]any{"sijainti": "Tampere"}))

	assert.Equal(t, []string{"hki"}, newIDs(f.run(t, w)))
}

func TestRun_WordSearchWildcard(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, alice, model.Criterion{
		FieldPath: "kuvaus", Kind: model.KindWordSearch, Values: []string{"talo*"},
	})

	f.catalog.Put(listing("a", map[string]any{"kuvaus": "Kaksi talot vierekkäin"}))
	f.catalog.Put(listing("b", map[string]any{"kuvaus": "Asunto talossa"}))
	f.catalog.Put(listing("c", map[string]any{"kuvaus": "Talo"}))
	f.catalog.Put(listing("d", map[string]any{"kuvaus": "Entinen ravintola"}))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, newIDs(f.run(t, w)))
}

func TestRun_OwnershipAndMissing(t *testing.T) {
	f := newFixture(t, asunto("1"))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))

	_, err := f.runner.Run(context.Background(), w.ID, bob)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.runner.Run(context.Background(), "missing", alice)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRun_ZeroCriteriaSkipsScan(t *testing.T) {
	f := newFixture(t, asunto("1"))
	pages := &pageCounter{Catalog: f.catalog}
	f.runner = f.build(pages)

	w := f.create(t, alice)
	assert.Empty(t, w.SeenListingIDs)

	res := f.run(t, w)
	assert.Empty(t, res.NewListings)
	assert.Zero(t, res.TotalCurrentMatches)
	assert.Zero(t, pages.calls)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Create(ctx, runner.CreateRequest{Owner: alice, Name: "x", Category: model.CategoryForSale,
		Criteria: []model.Criterion{{FieldPath: "", Kind: model.KindExactOrSet, Values: []string{"a"}}}})
	assert.ErrorIs(t, err, model.ErrInvalidCriteria)

	var verr *model.ValidationError
	_, err = f.runner.Create(ctx, runner.CreateRequest{Owner: alice, Name: " ", Category: model.CategoryForSale})
	assert.ErrorAs(t, err, &verr)
	_, err = f.runner.Create(ctx, runner.CreateRequest{Owner: alice, Name: "x", Category: "boats"})
	assert.ErrorAs(t, err, &verr)
	_, err = f.runner.Create(ctx, runner.CreateRequest{Name: "x", Category: model.CategoryForSale})
	assert.ErrorAs(t, err, &verr)
}

func TestDelete_NonOwnerGetsFalse(t *testing.T) {
	f := newFixture(t, asunto("1"))
	ctx := context.Background()
	w := f.create(t, alice, exact("tyyppi", "Asunto"))

	ok, err := f.runner.Delete(ctx, w.ID, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.runner.Get(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	ok, err = f.runner.Delete(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.runner.Delete(ctx, w.ID, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuestLifecycle(t *testing.T) {
	f := newFixture(t, asunto("1"))
	ctx := context.Background()
	guest := model.Owner{GuestEmail: "guest@example.com"}
	w := f.create(t, guest, exact("tyyppi", "Asunto"))

	require.NotEmpty(t, w.Owner.DeletionToken)
	require.NotNil(t, w.ExpiresAt)
	assert.Equal(t, f.now.Add(runner.DefaultGuestTTL), *w.ExpiresAt)

	// email alone does not prove ownership
	_, err := f.runner.Run(ctx, w.ID, guest)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.runner.Run(ctx, w.ID, model.Owner{GuestEmail: "Guest@Example.com", DeletionToken: w.Owner.DeletionToken})
	assert.NoError(t, err)

	ok, err := f.runner.DeleteByToken(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.runner.DeleteByToken(ctx, w.Owner.DeletionToken)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.runner.DeleteByToken(ctx, w.Owner.DeletionToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, asunto("1"))
	ctx := context.Background()
	guest := f.create(t, model.Owner{GuestEmail: "g@example.com"}, exact("tyyppi", "Asunto"))
	user := f.create(t, alice, exact("tyyppi", "Asunto"))

	f.now = f.now.Add(runner.DefaultGuestTTL)
	report, err := f.runner.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Traces, 1)
	assert.Equal(t, user.ID, report.Traces[0].WatchID)

	n, err := f.runner.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = f.store.Get(ctx, guest.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRunAll_IsolatesFailures(t *testing.T) {
	f := newFixture(t, asunto("1"))
	ctx := context.Background()
	good := f.create(t, alice, exact("tyyppi", "Asunto"))

	rent, err := f.runner.Create(ctx, runner.CreateRequest{
		Owner: bob, Name: "Rentals", Category: model.CategoryForRent,
		Criteria: []model.Criterion{exact("tyyppi", "Asunto")},
	})
	require.NoError(t, err)

	f.runner = f.build(&failingCategory{Catalog: f.catalog, category: model.CategoryForRent})
	f.catalog.Put(asunto("2"))

	report, err := f.runner.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Traces, 2)

	byID := map[string]model.RunTrace{}
	for _, tr := range report.Traces {
		byID[tr.WatchID] = tr
	}
	assert.Equal(t, model.OutcomeOK, byID[good.ID].Outcome)
	assert.Equal(t, 1, byID[good.ID].New)
	assert.Equal(t, model.OutcomeFailed, byID[rent.ID].Outcome)
	assert.Contains(t, byID[rent.ID].Error, "catalog unavailable")

	stored, err := f.store.Get(ctx, rent.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastRunAt)

	last, err := f.runner.LastBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, last.Failed())
	assert.Equal(t, f.now, last.FinishedAt)
}

func TestRun_ScanFailureKeepsSeenSet(t *testing.T) {
	f := newFixture(t, asunto("1"))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))
	f.runner = f.build(&failingCategory{Catalog: f.catalog, category: model.CategoryForSale})

	_, err := f.runner.Run(context.Background(), w.ID, alice)
	assert.ErrorIs(t, err, model.ErrTransientScan)

	stored, err := f.store.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.SeenListingIDs, stored.SeenListingIDs)
	assert.Equal(t, w.Version, stored.Version)
}

func TestRun_ConcurrentCommitIsRetried(t *testing.T) {
	f := newFixture(t, asunto("1"))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))
	f.catalog.Put(asunto("2"))
	f.catalog.Put(asunto("3"))

	racing := &racingStore{Memory: f.store, steal: "3", at: f.now}
	seq := 100
	sc := scanner.New(f.catalog, nil, scanner.Config{}, nil, nil)
	r := runner.New(racing, sc, runner.Config{},
		runner.WithClock(func() time.Time { return f.now }),
		runner.WithIDs(func() string { seq++; return fmt.Sprint(seq) }),
	)

	res, err := r.Run(context.Background(), w.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, newIDs(res))
	assert.Equal(t, 3, res.TotalCurrentMatches)
	assert.Equal(t, 2, f.store.EventCount(w.ID))

	stored, err := f.store.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, stored.SeenListingIDs)
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{err: errors.New("redis down")}
	f.runner = f.build(f.catalog, runner.WithNotifier(n))
	w := f.create(t, alice, exact("tyyppi", "Asunto"))

	f.catalog.Put(asunto("5"))
	res := f.run(t, w)
	assert.Equal(t, []string{"5"}, newIDs(res))
	assert.Equal(t, [][]string{{"5"}}, n.calls)

	f.run(t, w)
	assert.Len(t, n.calls, 1)
}

func TestRenameAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.create(t, alice, exact("tyyppi", "Asunto"))
	f.create(t, bob, exact("tyyppi", "Asunto"))

	_, err := f.runner.Rename(ctx, w.ID, bob, "Mine now")
	assert.ErrorIs(t, err, model.ErrForbidden)

	renamed, err := f.runner.Rename(ctx, w.ID, alice, "  Kodit  ")
	require.NoError(t, err)
	assert.Equal(t, "Kodit", renamed.Name)

	list, err := f.runner.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Kodit", list[0].Name)
}

func TestPruneMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.create(t, alice, exact("tyyppi", "Asunto"))
	f.catalog.Put(asunto("1"))
	f.run(t, w)

	n, err := f.runner.PruneMatches(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(31 * 24 * time.Hour)
	n, err = f.runner.PruneMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// ─── Test doubles ────────────────────────────────────────────────────────────

type pageCounter struct {
	catalog.Catalog
	calls int
}

func (p *pageCounter) ListPage(ctx context.Context, q catalog.PageQuery) ([]model.Listing, error) {
	p.calls++
	return p.Catalog.ListPage(ctx, q)
}

type failingCategory struct {
	catalog.Catalog
	category model.Category
}

func (c *failingCategory) ListPage(ctx context.Context, q catalog.PageQuery) ([]model.Listing, error) {
	if slices.Contains(q.Categories, c.category) {
		return nil, errors.New("catalog unavailable")
	}
	return c.Catalog.ListPage(ctx, q)
}

// racingStore commits a competing run just before the first real commit.
type racingStore struct {
	*store.Memory
	steal string
	at    time.Time
	raced bool
}

func (s *racingStore) CommitRun(ctx context.Context, c store.RunCommit) (int, error) {
	if !s.raced {
		s.raced = true
		_, err := s.Memory.CommitRun(ctx, store.RunCommit{
			WatchID:         c.WatchID,
			ExpectedVersion: c.ExpectedVersion,
			SeenListingIDs:  []string{s.steal},
			Events:          []model.MatchEvent{model.NewMatchEvent(c.WatchID, s.steal, s.at)},
			RanAt:           s.at,
		})
		if err != nil {
			return 0, err
		}
	}
	return s.Memory.CommitRun(ctx, c)
}

type recordingNotifier struct {
	calls [][]string
	err   error
}

func (n *recordingNotifier) NewMatches(_ context.Context, _ *model.Watch, listings []model.Listing) error {
	ids := []string{}
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	n.calls = append(n.calls, ids)
	return n.err
}
