// Package progress holds the pure state transitions and derivations over a
// learner's ProgressState. Nothing here does I/O; every mutation returns a new
// aggregate and leaves its input untouched.
package progress

import (
	"sixty/internal/curriculum"
	"sixty/internal/domain"
)

// CurrentDay is one past the highest completed day, capped at the curriculum length.
// Progression follows the highest day, not the number of completions.
func CurrentDay(completed domain.DaySet) int {
	if completed.Len() == 0 {
		return 1
	}
	return min(domain.MaxDay, completed.Max()+1)
}

// EvaluateStreak advances the streak for today. It is a no-op when the state was
// already evaluated today, and also when today is earlier than the last active
// date (clock moved backwards).
func EvaluateStreak(s domain.ProgressState, today domain.Date) domain.ProgressState {
	if s.LastActiveDate != nil && *s.LastActiveDate == today {
		return s
	}
	diff := 0
	if s.LastActiveDate != nil {
		diff = today.DaysSince(*s.LastActiveDate)
	}
	if diff < 0 {
		return s
	}
	out := s.Clone()
	switch {
	case diff == 1:
		out.Streak = s.Streak + 1
	case diff > 1:
		out.Streak = 1
	}
	d := today
	out.LastActiveDate = &d
	return out
}

// ToggleDayTask flips one task of a day. The day's sequence is created, or
// resized if a stored one disagrees with the catalog, before flipping.
func ToggleDayTask(s domain.ProgressState, cat *curriculum.Catalog, day, taskIndex int) domain.ProgressState {
	n := cat.TaskCount(day)
	if n == 0 || taskIndex < 0 || taskIndex >= n {
		return s
	}
	out := s.Clone()
	tasks := make([]bool, n)
	copy(tasks, out.DayTaskProgress[day])
	tasks[taskIndex] = !tasks[taskIndex]
	out.DayTaskProgress[day] = tasks
	return out
}

// CompleteDay marks day as finalized. The task checklist is not consulted.
func CompleteDay(s domain.ProgressState, day int) domain.ProgressState {
	if !domain.ValidDay(day) || s.CompletedDays.Contains(day) {
		return s
	}
	out := s.Clone()
	out.CompletedDays = s.CompletedDays.With(day)
	return out
}

func ToggleHabit(s domain.ProgressState, date domain.Date, habitID string) domain.ProgressState {
	if date.IsZero() || habitID == "" {
		return s
	}
	out := s.Clone()
	key := domain.RoutineKey{Date: date, HabitID: habitID}
	out.DailyRoutine[key] = !out.DailyRoutine[key]
	return out
}

// SetNote replaces the note for day; empty text drops it.
func SetNote(s domain.ProgressState, day int, text string) domain.ProgressState {
	if !domain.ValidDay(day) {
		return s
	}
	out := s.Clone()
	if text == "" {
		delete(out.DayNotes, day)
	} else {
		out.DayNotes[day] = text
	}
	return out
}

func AddImage(s domain.ProgressState, day int, blob []byte) domain.ProgressState {
	if !domain.ValidDay(day) || len(blob) == 0 {
		return s
	}
	out := s.Clone()
	out.DayNotesImages[day] = append(out.DayNotesImages[day], append([]byte(nil), blob...))
	return out
}

// RemoveImage drops the image at index; an out-of-range index changes nothing.
func RemoveImage(s domain.ProgressState, day, index int) domain.ProgressState {
	imgs := s.DayNotesImages[day]
	if index < 0 || index >= len(imgs) {
		return s
	}
	out := s.Clone()
	kept := out.DayNotesImages[day]
	kept = append(kept[:index:index], kept[index+1:]...)
	if len(kept) == 0 {
		delete(out.DayNotesImages, day)
	} else {
		out.DayNotesImages[day] = kept
	}
	return out
}

func SetProjectURL(s domain.ProgressState, projectID, url string) domain.ProgressState {
	out := s.Clone()
	setOrDelete(out.ProjectURLs, projectID, url)
	return out
}

func SetDeployURL(s domain.ProgressState, projectID, url string) domain.ProgressState {
	out := s.Clone()
	setOrDelete(out.DeployURLs, projectID, url)
	return out
}

func setOrDelete(m map[string]string, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

func ToggleTheme(s domain.ProgressState) domain.ProgressState {
	out := s.Clone()
	out.Theme = s.Theme.Toggle()
	return out
}

func SetTheme(s domain.ProgressState, theme domain.Theme) domain.ProgressState {
	if !theme.Valid() {
		return s
	}
	out := s.Clone()
	out.Theme = theme
	return out
}

// Reset discards everything. Clearing the persisted copy is up to the caller.
func Reset() domain.ProgressState {
	return domain.DefaultState()
}
