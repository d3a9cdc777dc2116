package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"jobmate/watch-service/internal/model"
)

// ─── Postgres ────────────────────────────────────────────────────────────────

// Postgres is the Store backed by the watches and match_events tables.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres returns a Store over an open connection.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

const watchColumns = `id, user_id, guest_email, deletion_token, name, category,
	criteria, seen_listing_ids, created_at, updated_at, expires_at,
	created_by_ip, last_run_at, version`

type watchRow struct {
	ID            string       `db:"id"`
	UserID        string       `db:"user_id"`
	GuestEmail    string       `db:"guest_email"`
	DeletionToken string       `db:"deletion_token"`
	Name          string       `db:"name"`
	Category      string       `db:"category"`
	Criteria      jsonColumn   `db:"criteria"`
	Seen          jsonColumn   `db:"seen_listing_ids"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	ExpiresAt     sql.NullTime `db:"expires_at"`
	CreatedByIP   string       `db:"created_by_ip"`
	LastRunAt     sql.NullTime `db:"last_run_at"`
	Version       int64        `db:"version"`
}

func (r *watchRow) toWatch() (*model.Watch, error) {
	w := &model.Watch{
		ID: r.ID,
		Owner: model.Owner{
			UserID:        r.UserID,
			GuestEmail:    r.GuestEmail,
			DeletionToken: r.DeletionToken,
		},
		Name:        r.Name,
		Category:    model.Category(r.Category),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CreatedByIP: r.CreatedByIP,
		Version:     r.Version,
	}
	if err := json.Unmarshal(r.Criteria, &w.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Seen, &w.SeenListingIDs); err != nil {
		return nil, fmt.Errorf("decode seen ids of %s: %w", r.ID, err)
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		w.ExpiresAt = &t
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		w.LastRunAt = &t
	}
	return w, nil
}

// jsonColumn scans a JSONB column whether the driver hands back text or bytes.
type jsonColumn []byte

func (j *jsonColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = jsonColumn("null")
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = jsonColumn(v)
	default:
		return fmt.Errorf("jsonColumn: unsupported type %T", src)
	}
	return nil
}

func (j jsonColumn) Value() (driver.Value, error) { return string(j), nil }

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// validID filters ids that would make postgres reject the uuid cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ─── Watches ─────────────────────────────────────────────────────────────────

func (p *Postgres) Create(ctx context.Context, w *model.Watch) error {
	criteria := w.Criteria
	if criteria == nil {
		criteria = []model.Criterion{}
	}
	crit, err := encodeJSON(criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	seen := w.SeenListingIDs
	if seen == nil {
		seen = []string{}
	}
	seenJSON, err := encodeJSON(seen)
	if err != nil {
		return fmt.Errorf("encode seen ids: %w", err)
	}
	if w.Version == 0 {
		w.Version = 1
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO watches (`+watchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13, $14)`,
		w.ID, w.Owner.UserID, w.Owner.GuestEmail, w.Owner.DeletionToken, w.Name, string(w.Category),
		crit, seenJSON, w.CreatedAt, w.UpdatedAt, nullTime(w.ExpiresAt),
		w.CreatedByIP, nullTime(w.LastRunAt), w.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &model.ValidationError{Msg: "watch " + w.ID + " already exists"}
	}
	if err != nil {
		return fmt.Errorf("insert watch: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*model.Watch, error) {
	if !validID(id) {
		return nil, model.ErrNotFound
	}
	var row watchRow
	err := p.db.GetContext(ctx, &row, `SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watch: %w", err)
	}
	return row.toWatch()
}

func (p *Postgres) ListByOwner(ctx context.Context, owner model.Owner) ([]model.Watch, error) {
	var (
		rows []watchRow
		err  error
	)
	if owner.IsGuest() {
		err = p.db.SelectContext(ctx, &rows, `
			SELECT `+watchColumns+` FROM watches
			WHERE user_id = '' AND lower(guest_email) = lower($1) AND deletion_token = $2
			ORDER BY created_at, id`, owner.GuestEmail, owner.DeletionToken)
	} else {
		err = p.db.SelectContext(ctx, &rows, `
			SELECT `+watchColumns+` FROM watches
			WHERE user_id = $1
			ORDER BY created_at, id`, owner.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return toWatches(rows)
}

func (p *Postgres) ListRunnable(ctx context.Context, now time.Time) ([]model.Watch, error) {
	var rows []watchRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT `+watchColumns+` FROM watches
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY created_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list runnable watches: %w", err)
	}
	return toWatches(rows)
}

func toWatches(rows []watchRow) ([]model.Watch, error) {
	out := make([]model.Watch, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toWatch()
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

// CommitRun writes the seen set and the new events in one transaction,
// guarded by the version the run started from.
func (p *Postgres) CommitRun(ctx context.Context, c RunCommit) (int, error) {
	if !validID(c.WatchID) {
		return 0, model.ErrNotFound
	}
	seen := c.SeenListingIDs
	if seen == nil {
		seen = []string{}
	}
	seenJSON, err := encodeJSON(seen)
	if err != nil {
		return 0, fmt.Errorf("encode seen ids: %w", err)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE watches
		SET seen_listing_ids = $1::jsonb, last_run_at = $2, updated_at = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		seenJSON, c.RanAt, c.WatchID, c.ExpectedVersion)
	if err != nil {
		return 0, fmt.Errorf("update seen ids: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM watches WHERE id = $1)`, c.WatchID); err != nil {
			return 0, fmt.Errorf("check watch: %w", err)
		}
		if !exists {
			return 0, model.ErrNotFound
		}
		return 0, model.ErrConflict
	}

	inserted := 0
	for _, e := range c.Events {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO match_events (watch_id, listing_id, hash, matched_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (watch_id, hash) DO NOTHING`,
			e.WatchID, e.ListingID, e.Hash, e.MatchedAt)
		if err != nil {
			return 0, fmt.Errorf("insert match event: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (p *Postgres) Rename(ctx context.Context, id, name string, now time.Time) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE watches SET name = $1, updated_at = $2, version = version + 1 WHERE id = $3`,
		name, now, id)
	if err != nil {
		return fmt.Errorf("rename watch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string, owner model.Owner) (bool, error) {
	if !validID(id) || owner.IsZero() {
		return false, nil
	}
	var (
		res sql.Result
		err error
	)
	if owner.IsGuest() {
		res, err = p.db.ExecContext(ctx, `
			DELETE FROM watches
			WHERE id = $1 AND user_id = '' AND lower(guest_email) = lower($2) AND deletion_token = $3`,
			id, owner.GuestEmail, owner.DeletionToken)
	} else {
		res, err = p.db.ExecContext(ctx,
			`DELETE FROM watches WHERE id = $1 AND user_id = $2`, id, owner.UserID)
	}
	if err != nil {
		return false, fmt.Errorf("delete watch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Postgres) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM watches WHERE deletion_token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("delete watch by token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM watches WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired watches: %w", err)
	}
	return res.RowsAffected()
}

// ─── Match log ───────────────────────────────────────────────────────────────

type eventRow struct {
	WatchID   string    `db:"watch_id"`
	ListingID string    `db:"listing_id"`
	Hash      string    `db:"hash"`
	MatchedAt time.Time `db:"matched_at"`
}

func (p *Postgres) RecentMatches(ctx context.Context, watchID string, limit int) ([]model.MatchEvent, error) {
	if !validID(watchID) {
		return []model.MatchEvent{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []eventRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT watch_id, listing_id, hash, matched_at FROM match_events
		WHERE watch_id = $1
		ORDER BY matched_at DESC, listing_id
		LIMIT $2`, watchID, limit)
	if err != nil {
		return nil, fmt.Errorf("list match events: %w", err)
	}
	out := make([]model.MatchEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MatchEvent(r))
	}
	return out, nil
}

func (p *Postgres) PruneMatches(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM match_events WHERE matched_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune match events: %w", err)
	}
	return res.RowsAffected()
}
