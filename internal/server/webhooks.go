package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sixty/internal/config"
	"sixty/internal/domain"
	"sixty/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// CursorStore tracks how far each hook has read the event journal.
type CursorStore interface {
	EventsAfter(ctx context.Context, n int, cursor int64) ([]domain.Event, error)
	LastEventID(ctx context.Context) (int64, error)
	WebhookCursor(ctx context.Context, url string) (int64, error)
	SetWebhookCursor(ctx context.Context, url string, eventID int64) error
}

// Dispatcher polls the journal and posts new events to configured hooks.
// Cursors are persisted, so a restart resumes where delivery stopped.
type Dispatcher struct {
	Store    CursorStore
	Hooks    []config.WebhookConfig
	Interval time.Duration
	Client   *http.Client
	Logger   *zap.Logger
}

func NewDispatcher(store CursorStore, hooks []config.WebhookConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Store:    store,
		Hooks:    hooks,
		Interval: defaultWebhookInterval,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		Logger:   logger,
	}
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.Hooks) == 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for _, hook := range d.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, hook config.WebhookConfig) {
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		d.Logger.Warn("webhook: init cursor failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	evts, err := d.Store.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.Logger.Warn("webhook: fetch events failed", zap.Error(err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if filter.match(evt.Type) {
			if err := d.postEvent(ctx, hook, evt); err != nil {
				d.Logger.Warn("webhook: delivery failed", zap.String("url", hook.URL), zap.Int64("event", evt.ID), zap.Error(err))
				return
			}
		}
		if err := d.Store.SetWebhookCursor(ctx, hook.URL, evt.ID); err != nil {
			d.Logger.Error("webhook: save cursor failed", zap.String("url", hook.URL), zap.Error(err))
			return
		}
	}
}

// cursorFor starts a new hook at the end of the journal so it only sees new events.
func (d *Dispatcher) cursorFor(ctx context.Context, hook config.WebhookConfig) (int64, error) {
	cur, err := d.Store.WebhookCursor(ctx, hook.URL)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	cur, err = d.Store.LastEventID(ctx)
	if err != nil {
		return 0, err
	}
	return cur, d.Store.SetWebhookCursor(ctx, hook.URL, cur)
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Signature is the hex HMAC-SHA256 of body under secret, as sent in X-Sixty-Signature.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage(`{}`)
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sixty-Event", evt.Type)
	req.Header.Set("X-Sixty-Delivery", strconv.FormatInt(evt.ID, 10))
	if secret := strings.TrimSpace(hook.Secret); secret != "" {
		req.Header.Set("X-Sixty-Signature", Signature(secret, data))
	}
	res, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
