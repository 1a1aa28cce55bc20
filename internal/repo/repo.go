package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sixty/internal/domain"
	"sixty/internal/events"
)

// SnapshotKey names the single progress snapshot row.
const SnapshotKey = "progress"

var ErrNotFound = errors.New("not found")

type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Load returns the saved snapshot, or nil when nothing was saved yet.
func (r Repo) Load(ctx context.Context) ([]byte, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE key=?`, SnapshotKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(data), nil
}

// Save replaces the snapshot and journals rec in the same transaction.
func (r Repo) Save(ctx context.Context, snapshot []byte, rec events.Record) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(key,data,saved_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET data=excluded.data, saved_at=excluded.saved_at`,
		SnapshotKey, string(snapshot), r.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := r.writer().Append(ctx, tx, rec); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return tx.Commit()
}

// Clear drops the snapshot. The event log is kept and records the reset.
func (r Repo) Clear(ctx context.Context) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE key=?`, SnapshotKey); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if err := r.writer().Append(ctx, tx, events.Record{Type: "state.reset", EntityKind: "state"}); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return tx.Commit()
}

func (r Repo) writer() events.Writer {
	w := r.Events
	if w.Now == nil {
		w.Now = r.now
	}
	return w
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns up to n events, newest first, optionally filtered by type.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	var (
		where []string
		args  []any
	)
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,payload_json FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns up to n events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, n int, cursor int64) ([]domain.Event, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, n)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// WebhookCursor returns the last delivered event id for url.
func (r Repo) WebhookCursor(ctx context.Context, url string) (int64, error) {
	var v int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event FROM webhook_cursors WHERE url=?`, url).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return v, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, url string, eventID int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(url,last_event,updated_at) VALUES (?,?,?)
		ON CONFLICT(url) DO UPDATE SET last_event=excluded.last_event, updated_at=excluded.updated_at`,
		url, eventID, r.now().UTC().Format(time.RFC3339))
	return err
}

// LastEventID is 0 when the journal is empty.
func (r Repo) LastEventID(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&v); err != nil {
		return 0, err
	}
	return v.Int64, nil
}
