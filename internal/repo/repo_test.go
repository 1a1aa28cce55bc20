package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sixty/internal/db"
	"sixty/internal/events"
	"sixty/internal/migrate"
	"sixty/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }}
}

func TestSnapshotSaveLoadClear(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	data, err := r.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("empty load = %q, %v", data, err)
	}
	if err := r.Save(ctx, []byte(`{"streak":1}`), events.Record{Type: "streak.evaluated", EntityKind: "state"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.Save(ctx, []byte(`{"streak":2}`), events.Record{Type: "day.completed", EntityKind: "day", EntityID: "1", Payload: events.EventPayload{"day": 1}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err = r.Load(ctx)
	if err != nil || string(data) != `{"streak":2}` {
		t.Fatalf("load = %q, %v", data, err)
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	data, err = r.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("load after clear = %q, %v", data, err)
	}

	evts, err := r.LatestEvents(ctx, 10, "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	if evts[0].Type != "state.reset" || evts[1].Type != "day.completed" {
		t.Fatalf("unexpected order: %+v", evts)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evts[1].Payload), &payload); err != nil || payload["day"] != float64(1) {
		t.Fatalf("payload = %s, %v", evts[1].Payload, err)
	}
	if evts[1].EntityID != "1" || evts[1].TS != "2024-01-01T09:00:00Z" {
		t.Fatalf("event fields: %+v", evts[1])
	}

	filtered, err := r.LatestEvents(ctx, 10, "streak.evaluated")
	if err != nil || len(filtered) != 1 {
		t.Fatalf("filtered = %+v, %v", filtered, err)
	}
}

func TestEventsAfterAndCursors(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.Save(ctx, []byte(`{}`), events.Record{Type: "task.toggled", EntityKind: "task"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	last, err := r.LastEventID(ctx)
	if err != nil || last != 3 {
		t.Fatalf("last event id = %d, %v", last, err)
	}
	after, err := r.EventsAfter(ctx, 10, 1)
	if err != nil || len(after) != 2 || after[0].ID != 2 {
		t.Fatalf("events after = %+v, %v", after, err)
	}

	if _, err := r.WebhookCursor(ctx, "http://hook"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.SetWebhookCursor(ctx, "http://hook", 2); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := r.SetWebhookCursor(ctx, "http://hook", 3); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	cur, err := r.WebhookCursor(ctx, "http://hook")
	if err != nil || cur != 3 {
		t.Fatalf("cursor = %d, %v", cur, err)
	}
}

func TestSaveWithoutEventType(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	if err := r.Save(ctx, []byte(`{}`), events.Record{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	last, err := r.LastEventID(ctx)
	if err != nil || last != 0 {
		t.Fatalf("expected no events, got %d, %v", last, err)
	}
}

func TestFileStore(t *testing.T) {
	fs := repo.NewFileStore(t.TempDir())
	ctx := context.Background()
	data, err := fs.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("empty load = %q, %v", data, err)
	}
	if err := fs.Save(ctx, []byte(`{"theme":"light"}`), events.Record{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err = fs.Load(ctx)
	if err != nil || string(data) != `{"theme":"light"}` {
		t.Fatalf("load = %q, %v", data, err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	data, _ = fs.Load(ctx)
	if data != nil {
		t.Fatalf("expected nothing after clear, got %q", data)
	}
}
