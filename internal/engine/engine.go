package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"sixty/internal/assistant"
	"sixty/internal/curriculum"
	"sixty/internal/domain"
	"sixty/internal/events"
	"sixty/internal/progress"
	"sixty/internal/snapshot"
)

var (
	ErrInvalidDay     = errors.New("invalid day")
	ErrInvalidTask    = errors.New("invalid task index")
	ErrUnknownHabit   = errors.New("unknown habit")
	ErrUnknownProject = errors.New("unknown project")
	ErrProjectLocked  = errors.New("project locked")
	ErrEmptyImage     = errors.New("image is empty")
	ErrInvalidTheme   = errors.New("invalid theme")
	ErrInvalidNote    = errors.New("note is not valid UTF-8")

	errNoChange = errors.New("no change")
)

// Store persists the serialized aggregate.
type Store interface {
	// Load returns nil, nil when nothing has been saved.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte, rec events.Record) error
	Clear(ctx context.Context) error
}

// Engine owns the learner's ProgressState. Every intent is applied through the
// pure functions in package progress, one at a time, and written through to the
// store before the new state becomes visible.
type Engine struct {
	Store   Store
	Catalog *curriculum.Catalog
	Logger  *zap.Logger
	Now     func() time.Time

	mu    sync.Mutex
	state domain.ProgressState
}

func New(store Store, cat *curriculum.Catalog, logger *zap.Logger) *Engine {
	if cat == nil {
		cat = curriculum.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:   store,
		Catalog: cat,
		Logger:  logger,
		Now:     time.Now,
		state:   domain.DefaultState(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Today is the calendar date the engine evaluates against.
func (e *Engine) Today() domain.Date {
	return domain.DateOf(e.now())
}

// Open restores the last snapshot and evaluates the streak for today. It must be
// called once per activation, before any intent.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := e.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	e.state = snapshot.Decode(data)
	today := e.Today()
	prevStreak := e.state.Streak
	next := progress.EvaluateStreak(e.state, today)
	if sameDate(next.LastActiveDate, e.state.LastActiveDate) {
		e.Logger.Debug("streak unchanged", zap.String("today", today.String()), zap.Int("streak", next.Streak))
		return nil
	}
	return e.commit(ctx, next, events.Record{
		Type:       "streak.evaluated",
		EntityKind: "state",
		Payload: events.EventPayload{
			"date":     today.String(),
			"previous": prevStreak,
			"streak":   next.Streak,
		},
	})
}

// commit persists next and swaps it in. Callers hold e.mu.
func (e *Engine) commit(ctx context.Context, next domain.ProgressState, rec events.Record) error {
	data, err := snapshot.Encode(next)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := e.Store.Save(ctx, data, rec); err != nil {
		e.Logger.Error("persist state failed", zap.String("event", rec.Type), zap.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	e.state = next
	e.Logger.Debug("state committed", zap.String("event", rec.Type), zap.String("entity", rec.EntityID))
	return nil
}

func sameDate(a, b *domain.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// apply runs fn against the current state under the lock and commits the result.
// fn may return errNoChange to skip the write.
func (e *Engine) apply(ctx context.Context, rec events.Record, fn func(domain.ProgressState) (domain.ProgressState, error)) (domain.ProgressState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := fn(e.state)
	if errors.Is(err, errNoChange) {
		return e.state.Clone(), nil
	}
	if err != nil {
		return domain.ProgressState{}, err
	}
	if err := e.commit(ctx, next, rec); err != nil {
		return domain.ProgressState{}, err
	}
	return e.state.Clone(), nil
}

func pure(fn func(domain.ProgressState) domain.ProgressState) func(domain.ProgressState) (domain.ProgressState, error) {
	return func(s domain.ProgressState) (domain.ProgressState, error) {
		return fn(s), nil
	}
}

// State returns a copy of the current aggregate.
func (e *Engine) State() domain.ProgressState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) CurrentDay() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return progress.CurrentDay(e.state.CompletedDays)
}

func (e *Engine) Dashboard() progress.Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()
	return progress.BuildDashboard(e.state, e.Catalog, e.Today())
}

// AssistantContext briefs the advisor on day. Zero means the current day.
func (e *Engine) AssistantContext(day int) assistant.Context {
	s := e.State()
	if day == 0 {
		day = progress.CurrentDay(s.CompletedDays)
	}
	return assistant.BuildContext(s, e.Catalog, day)
}

func (e *Engine) checkDay(day int) error {
	if _, ok := e.Catalog.Day(day); !ok {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidDay, day, curriculum.TotalDays)
	}
	return nil
}

func dayID(day int) string { return strconv.Itoa(day) }

func (e *Engine) CompleteDay(ctx context.Context, day int) (domain.ProgressState, error) {
	if err := e.checkDay(day); err != nil {
		return domain.ProgressState{}, err
	}
	return e.apply(ctx, events.Record{
		Type: "day.completed", EntityKind: "day", EntityID: dayID(day),
		Payload: events.EventPayload{"day": day},
	}, func(s domain.ProgressState) (domain.ProgressState, error) {
		if s.CompletedDays.Contains(day) {
			return s, errNoChange
		}
		return progress.CompleteDay(s, day), nil
	})
}

// CompleteCurrentDay finalizes whichever day is currently active.
func (e *Engine) CompleteCurrentDay(ctx context.Context) (domain.ProgressState, error) {
	return e.CompleteDay(ctx, e.CurrentDay())
}

func (e *Engine) ToggleDayTask(ctx context.Context, day, taskIndex int) (domain.ProgressState, error) {
	if err := e.checkDay(day); err != nil {
		return domain.ProgressState{}, err
	}
	if n := e.Catalog.TaskCount(day); taskIndex < 0 || taskIndex >= n {
		return domain.ProgressState{}, fmt.Errorf("%w: %d (day %d has %d tasks)", ErrInvalidTask, taskIndex, day, n)
	}
	return e.apply(ctx, events.Record{
		Type: "task.toggled", EntityKind: "task", EntityID: fmt.Sprintf("%d/%d", day, taskIndex),
		Payload: events.EventPayload{"day": day, "task": taskIndex},
	}, pure(func(s domain.ProgressState) domain.ProgressState {
		return progress.ToggleDayTask(s, e.Catalog, day, taskIndex)
	}))
}

func (e *Engine) ToggleHabit(ctx context.Context, date domain.Date, habitID string) (domain.ProgressState, error) {
	if _, ok := e.Catalog.Habit(habitID); !ok {
		return domain.ProgressState{}, fmt.Errorf("%w: %s", ErrUnknownHabit, habitID)
	}
	if date.IsZero() {
		date = e.Today()
	}
	return e.apply(ctx, events.Record{
		Type: "habit.toggled", EntityKind: "habit", EntityID: habitID,
		Payload: events.EventPayload{"date": date.String(), "habit": habitID},
	}, pure(func(s domain.ProgressState) domain.ProgressState {
		return progress.ToggleHabit(s, date, habitID)
	}))
}

// ToggleHabitToday flips habitID for the engine's current calendar date.
func (e *Engine) ToggleHabitToday(ctx context.Context, habitID string) (domain.ProgressState, error) {
	return e.ToggleHabit(ctx, domain.Date{}, habitID)
}

func (e *Engine) SetNote(ctx context.Context, day int, text string) (domain.ProgressState, error) {
	if err := e.checkDay(day); err != nil {
		return domain.ProgressState{}, err
	}
	if !utf8.ValidString(text) {
		return domain.ProgressState{}, fmt.Errorf("%w: day %d", ErrInvalidNote, day)
	}
	return e.apply(ctx, events.Record{
		Type: "note.updated", EntityKind: "day", EntityID: dayID(day),
		Payload: events.EventPayload{"day": day, "length": len(text)},
	}, pure(func(s domain.ProgressState) domain.ProgressState {
		return progress.SetNote(s, day, text)
	}))
}

func (e *Engine) AddImage(ctx context.Context, day int, blob []byte) (domain.ProgressState, error) {
	if err := e.checkDay(day); err != nil {
		return domain.ProgressState{}, err
	}
	if len(blob) == 0 {
		return domain.ProgressState{}, ErrEmptyImage
	}
	return e.apply(ctx, events.Record{
		Type: "image.added", EntityKind: "day", EntityID: dayID(day),
		Payload: events.EventPayload{"day": day, "bytes": len(blob)},
	}, pure(func(s domain.ProgressState) domain.ProgressState {
		return progress.AddImage(s, day, blob)
	}))
}

// RemoveImage is silently a no-op for an index that does not exist.
func (e *Engine) RemoveImage(ctx context.Context, day, index int) (domain.ProgressState, error) {
	return e.apply(ctx, events.Record{
		Type: "image.removed", EntityKind: "day", EntityID: dayID(day),
		Payload: events.EventPayload{"day": day, "index": index},
	}, func(s domain.ProgressState) (domain.ProgressState, error) {
		if index < 0 || index >= len(s.DayNotesImages[day]) {
			return s, errNoChange
		}
		return progress.RemoveImage(s, day, index), nil
	})
}

func (e *Engine) checkProject(s domain.ProgressState, projectID string) error {
	p, ok := e.Catalog.Project(projectID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if current := progress.CurrentDay(s.CompletedDays); !p.Unlocked(current) {
		return fmt.Errorf("%w: %s unlocks on day %d (current day %d)", ErrProjectLocked, p.ID, p.RequiredDay, current)
	}
	return nil
}

func (e *Engine) SetProjectURL(ctx context.Context, projectID, url string) (domain.ProgressState, error) {
	return e.apply(ctx, events.Record{
		Type: "project.url.updated", EntityKind: "project", EntityID: projectID,
		Payload: events.EventPayload{"url": url},
	}, func(s domain.ProgressState) (domain.ProgressState, error) {
		if err := e.checkProject(s, projectID); err != nil {
			return s, err
		}
		return progress.SetProjectURL(s, projectID, url), nil
	})
}

func (e *Engine) SetDeployURL(ctx context.Context, projectID, url string) (domain.ProgressState, error) {
	return e.apply(ctx, events.Record{
		Type: "project.deploy.updated", EntityKind: "project", EntityID: projectID,
		Payload: events.EventPayload{"url": url},
	}, func(s domain.ProgressState) (domain.ProgressState, error) {
		if err := e.checkProject(s, projectID); err != nil {
			return s, err
		}
		return progress.SetDeployURL(s, projectID, url), nil
	})
}

func (e *Engine) ToggleTheme(ctx context.Context) (domain.ProgressState, error) {
	return e.apply(ctx, events.Record{Type: "theme.toggled", EntityKind: "state"}, pure(progress.ToggleTheme))
}

func (e *Engine) SetTheme(ctx context.Context, theme domain.Theme) (domain.ProgressState, error) {
	if !theme.Valid() {
		return domain.ProgressState{}, fmt.Errorf("%w: %q (want dark or light)", ErrInvalidTheme, theme)
	}
	rec := events.Record{Type: "theme.set", EntityKind: "state", Payload: events.EventPayload{"theme": string(theme)}}
	return e.apply(ctx, rec, func(s domain.ProgressState) (domain.ProgressState, error) {
		if s.Theme == theme {
			return s, errNoChange
		}
		return progress.SetTheme(s, theme), nil
	})
}

// Reset discards all progress and clears the store.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	e.state = progress.Reset()
	e.Logger.Info("progress reset")
	return nil
}
