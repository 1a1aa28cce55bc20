package server

import (
	"encoding/json"
	"strconv"

	"sixty/internal/assistant"
	"sixty/internal/curriculum"
	"sixty/internal/domain"
	"sixty/internal/progress"
)

// Request payloads

type NoteRequest struct {
	Text string `json:"text" maxLength:"20000"`
}

type ImageRequest struct {
	Data []byte `json:"data" minLength:"1" doc:"Base64 encoded image"`
}

type ProjectUpdateRequest struct {
	ProjectURL *string `json:"project_url,omitempty"`
	DeployURL  *string `json:"deploy_url,omitempty"`
}

type ThemeRequest struct {
	Theme string `json:"theme"`
}

type AskRequest struct {
	Text string `json:"text" minLength:"1"`
}

// Responses

type StateResponse struct {
	CompletedDays   []int             `json:"completed_days"`
	CurrentDay      int               `json:"current_day"`
	DayTaskProgress map[string][]bool `json:"day_task_progress"`
	DayNotes        map[string]string `json:"day_notes"`
	DayImageCounts  map[string]int    `json:"day_image_counts"`
	DailyRoutine    map[string]bool   `json:"daily_routine"`
	Streak          int               `json:"streak"`
	LastActiveDate  string            `json:"last_active_date,omitempty" format:"date"`
	ProjectURLs     map[string]string `json:"project_urls"`
	DeployURLs      map[string]string `json:"deploy_urls"`
	Theme           string            `json:"theme" enum:"dark,light"`
}

type DayResponse struct {
	curriculum.DayInfo
	Completed  bool                 `json:"completed"`
	Current    bool                 `json:"current"`
	TaskStates []progress.TaskState `json:"task_states"`
	Note       string               `json:"note"`
	Images     int                  `json:"images"`
}

type RoadmapEntry struct {
	Day       int    `json:"day"`
	Phase     string `json:"phase"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	TasksDone int    `json:"tasks_done"`
	Tasks     int    `json:"tasks"`
}

type HabitResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

type HabitsResponse struct {
	Date   string          `json:"date" format:"date"`
	Score  int             `json:"score"`
	Habits []HabitResponse `json:"habits"`
}

type ActivityResponse struct {
	Date  string `json:"date" format:"date"`
	Label string `json:"label"`
	Score int    `json:"score"`
}

type MessageResponse struct {
	Index     int                  `json:"index"`
	ID        string               `json:"id"`
	Role      string               `json:"role" enum:"user,model"`
	Text      string               `json:"text"`
	Citations []assistant.Citation `json:"citations"`
	Dropped   bool                 `json:"dropped,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

func stateResponse(s domain.ProgressState) StateResponse {
	res := StateResponse{
		CompletedDays:   nonNilSlice([]int(s.CompletedDays)),
		CurrentDay:      progress.CurrentDay(s.CompletedDays),
		DayTaskProgress: make(map[string][]bool, len(s.DayTaskProgress)),
		DayNotes:        make(map[string]string, len(s.DayNotes)),
		DayImageCounts:  make(map[string]int, len(s.DayNotesImages)),
		DailyRoutine:    make(map[string]bool, len(s.DailyRoutine)),
		Streak:          s.Streak,
		ProjectURLs:     nonNilMap(s.ProjectURLs),
		DeployURLs:      nonNilMap(s.DeployURLs),
		Theme:           string(s.Theme),
	}
	for day, tasks := range s.DayTaskProgress {
		res.DayTaskProgress[strconv.Itoa(day)] = tasks
	}
	for day, note := range s.DayNotes {
		res.DayNotes[strconv.Itoa(day)] = note
	}
	for day, imgs := range s.DayNotesImages {
		res.DayImageCounts[strconv.Itoa(day)] = len(imgs)
	}
	for key, v := range s.DailyRoutine {
		text, _ := key.MarshalText()
		res.DailyRoutine[string(text)] = v
	}
	if s.LastActiveDate != nil {
		res.LastActiveDate = s.LastActiveDate.String()
	}
	return res
}

func dayResponse(s domain.ProgressState, cat *curriculum.Catalog, info curriculum.DayInfo) DayResponse {
	return DayResponse{
		DayInfo:    info,
		Completed:  s.CompletedDays.Contains(info.Number),
		Current:    progress.CurrentDay(s.CompletedDays) == info.Number,
		TaskStates: progress.TaskStates(s, cat, info.Number),
		Note:       s.DayNotes[info.Number],
		Images:     len(s.DayNotesImages[info.Number]),
	}
}

func roadmapResponse(s domain.ProgressState, cat *curriculum.Catalog) []RoadmapEntry {
	days := cat.Days()
	out := make([]RoadmapEntry, 0, len(days))
	for _, d := range days {
		out = append(out, RoadmapEntry{
			Day:       d.Number,
			Phase:     string(d.Phase),
			Title:     d.Title,
			Completed: s.CompletedDays.Contains(d.Number),
			TasksDone: progress.TasksDone(s, d.Number),
			Tasks:     len(d.Tasks),
		})
	}
	return out
}

func habitsResponse(s domain.ProgressState, cat *curriculum.Catalog, date domain.Date) HabitsResponse {
	res := HabitsResponse{Date: date.String(), Score: progress.RoutineScore(s, cat, date)}
	for _, h := range cat.Habits() {
		res.Habits = append(res.Habits, HabitResponse{
			ID:    h.ID,
			Label: h.Label,
			Done:  s.DailyRoutine[domain.RoutineKey{Date: date, HabitID: h.ID}],
		})
	}
	return res
}

func activityResponse(points []progress.ActivityPoint) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(points))
	for _, p := range points {
		out = append(out, ActivityResponse{Date: p.Date.String(), Label: p.Label, Score: p.Score})
	}
	return out
}

func messageResponses(msgs []assistant.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, messageResponse(i, m))
	}
	return out
}

func messageResponse(index int, m assistant.Message) MessageResponse {
	return MessageResponse{
		Index:     index,
		ID:        m.ID,
		Role:      string(m.Role),
		Text:      m.Text,
		Citations: nonNilSlice(m.Citations),
		Dropped:   m.Dropped,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func nonNilMap(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}
