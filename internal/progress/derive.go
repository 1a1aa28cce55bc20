package progress

import (
	"fmt"
	"math"
	"strings"

	"sixty/internal/curriculum"
	"sixty/internal/domain"
)

// ActivityWindow is the number of days in the routine chart.
const ActivityWindow = 14

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(whole)))
}

// ProgressPercent is the share of the curriculum finalized so far.
func ProgressPercent(s domain.ProgressState) int {
	return percent(s.CompletedDays.Len(), domain.MaxDay)
}

type SkillProgress struct {
	Name    string           `json:"name"`
	Phase   curriculum.Phase `json:"phase"`
	Percent int              `json:"percent"`
}

func SkillCompletion(s domain.ProgressState, cat *curriculum.Catalog) []SkillProgress {
	done := map[curriculum.Phase]int{}
	for _, d := range s.CompletedDays {
		if info, ok := cat.Day(d); ok {
			done[info.Phase]++
		}
	}
	skills := cat.Skills()
	out := make([]SkillProgress, 0, len(skills))
	for _, sk := range skills {
		out = append(out, SkillProgress{
			Name:    sk.Name,
			Phase:   sk.Phase,
			Percent: percent(done[sk.Phase], cat.DaysInPhase(sk.Phase)),
		})
	}
	return out
}

// RoutineScore is the share of habits performed on date.
func RoutineScore(s domain.ProgressState, cat *curriculum.Catalog, date domain.Date) int {
	habits := cat.Habits()
	n := 0
	for _, h := range habits {
		if s.DailyRoutine[domain.RoutineKey{Date: date, HabitID: h.ID}] {
			n++
		}
	}
	return percent(n, len(habits))
}

type ActivityPoint struct {
	Date  domain.Date `json:"date"`
	Label string      `json:"label"`
	Score int         `json:"score"`
}

// ActivitySeries returns the routine score for the window ending at today, oldest first.
func ActivitySeries(s domain.ProgressState, cat *curriculum.Catalog, today domain.Date) []ActivityPoint {
	out := make([]ActivityPoint, 0, ActivityWindow)
	for i := ActivityWindow - 1; i >= 0; i-- {
		d := today.AddDays(-i)
		out = append(out, ActivityPoint{
			Date:  d,
			Label: d.Weekday().String()[:3],
			Score: RoutineScore(s, cat, d),
		})
	}
	return out
}

func TasksDone(s domain.ProgressState, day int) int {
	n := 0
	for _, v := range s.DayTaskProgress[day] {
		if v {
			n++
		}
	}
	return n
}

func TaskDone(s domain.ProgressState, day, index int) bool {
	tasks := s.DayTaskProgress[day]
	return index >= 0 && index < len(tasks) && tasks[index]
}

type TaskState struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

func TaskStates(s domain.ProgressState, cat *curriculum.Catalog, day int) []TaskState {
	info, ok := cat.Day(day)
	if !ok {
		return nil
	}
	out := make([]TaskState, len(info.Tasks))
	for i, label := range info.Tasks {
		out[i] = TaskState{Index: i, Label: label, Done: TaskDone(s, day, i)}
	}
	return out
}

// FormatTaskStatus renders "task: DONE, task: PENDING".
func FormatTaskStatus(tasks []TaskState) string {
	parts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		status := "PENDING"
		if t.Done {
			status = "DONE"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", t.Label, status))
	}
	return strings.Join(parts, ", ")
}

// TaskStatus is FormatTaskStatus over the checklist of day; empty for unknown days.
func TaskStatus(s domain.ProgressState, cat *curriculum.Catalog, day int) string {
	return FormatTaskStatus(TaskStates(s, cat, day))
}

// ProjectState is a catalog project with the learner's unlock state and links.
type ProjectState struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Phase       curriculum.Phase `json:"phase"`
	RequiredDay int              `json:"required_day"`
	Unlocked    bool             `json:"unlocked"`
	ProjectURL  string           `json:"project_url,omitempty"`
	DeployURL   string           `json:"deploy_url,omitempty"`
}

func Projects(s domain.ProgressState, cat *curriculum.Catalog) []ProjectState {
	current := CurrentDay(s.CompletedDays)
	projects := cat.Projects()
	out := make([]ProjectState, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectState{
			ID:          p.ID,
			Name:        p.Name,
			Phase:       p.Phase,
			RequiredDay: p.RequiredDay,
			Unlocked:    p.Unlocked(current),
			ProjectURL:  s.ProjectURLs[p.ID],
			DeployURL:   s.DeployURLs[p.ID],
		})
	}
	return out
}

type Dashboard struct {
	CurrentDay      int                `json:"current_day"`
	Day             curriculum.DayInfo `json:"day"`
	DayCompleted    bool               `json:"day_completed"`
	Tasks           []TaskState        `json:"tasks"`
	TasksDone       int                `json:"tasks_done"`
	ProgressPercent int                `json:"progress_percent"`
	CompletedDays   int                `json:"completed_days"`
	Streak          int                `json:"streak"`
	TodayScore      int                `json:"today_score"`
	Skills          []SkillProgress    `json:"skills"`
	Activity        []ActivityPoint    `json:"activity"`
	Projects        []ProjectState     `json:"projects"`
	Theme           domain.Theme       `json:"theme"`
}

// BuildDashboard gathers every derived value a view needs in one pass.
func BuildDashboard(s domain.ProgressState, cat *curriculum.Catalog, today domain.Date) Dashboard {
	current := CurrentDay(s.CompletedDays)
	info, _ := cat.Day(current)
	return Dashboard{
		CurrentDay:      current,
		Day:             info,
		DayCompleted:    s.CompletedDays.Contains(current),
		Tasks:           TaskStates(s, cat, current),
		TasksDone:       TasksDone(s, current),
		ProgressPercent: ProgressPercent(s),
		CompletedDays:   s.CompletedDays.Len(),
		Streak:          s.Streak,
		TodayScore:      RoutineScore(s, cat, today),
		Skills:          SkillCompletion(s, cat),
		Activity:        ActivitySeries(s, cat, today),
		Projects:        Projects(s, cat),
		Theme:           s.Theme,
	}
}
