package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type EventPayload map[string]any

// Record describes one state change to be journaled alongside a snapshot write.
type Record struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    EventPayload
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx execer, rec Record) error {
	if rec.Type == "" {
		return nil
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, rec.Type, rec.EntityKind, nullable(rec.EntityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
