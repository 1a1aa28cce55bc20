package domain

import (
	"encoding/json"
	"slices"
)

// MaxDay is the length of the curriculum.
const MaxDay = 60

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

func (t Theme) Valid() bool { return t == ThemeDark || t == ThemeLight }

// DaySet is a sorted, duplicate-free list of curriculum days.
type DaySet []int

func ValidDay(day int) bool { return day >= 1 && day <= MaxDay }

// NewDaySet normalizes days into a set, dropping anything outside the curriculum.
func NewDaySet(days ...int) DaySet {
	out := DaySet{}
	for _, d := range days {
		out = out.With(d)
	}
	return out
}

func (s DaySet) Contains(day int) bool {
	_, ok := slices.BinarySearch(s, day)
	return ok
}

// With returns a copy of s including day. s itself is left untouched.
func (s DaySet) With(day int) DaySet {
	if !ValidDay(day) {
		return slices.Clone(s)
	}
	i, ok := slices.BinarySearch(s, day)
	out := slices.Clone(s)
	if out == nil {
		out = DaySet{}
	}
	if ok {
		return out
	}
	return slices.Insert(out, i, day)
}

func (s DaySet) Len() int { return len(s) }

// Max returns the highest day, or 0 for an empty set.
func (s DaySet) Max() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (s DaySet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// ProgressState is the learner's whole progress aggregate.
type ProgressState struct {
	CompletedDays   DaySet              `json:"completedDays"`
	DayTaskProgress map[int][]bool      `json:"dayTaskProgress"`
	DayNotes        map[int]string      `json:"dayNotes"`
	DayNotesImages  map[int][][]byte    `json:"dayNotesImages"`
	DailyRoutine    map[RoutineKey]bool `json:"dailyRoutine"`
	Streak          int                 `json:"streak"`
	LastActiveDate  *Date               `json:"lastActiveDate"`
	ProjectURLs     map[string]string   `json:"projectUrls"`
	DeployURLs      map[string]string   `json:"deployUrls"`
	Theme           Theme               `json:"theme"`
}

// DefaultState returns a fresh aggregate.
func DefaultState() ProgressState {
	return ProgressState{
		CompletedDays:   DaySet{},
		DayTaskProgress: map[int][]bool{},
		DayNotes:        map[int]string{},
		DayNotesImages:  map[int][][]byte{},
		DailyRoutine:    map[RoutineKey]bool{},
		ProjectURLs:     map[string]string{},
		DeployURLs:      map[string]string{},
		Theme:           ThemeDark,
	}
}

// Clone deep-copies the aggregate so mutations never alias a previous value.
func (s ProgressState) Clone() ProgressState {
	out := s
	out.CompletedDays = slices.Clone(s.CompletedDays)
	if out.CompletedDays == nil {
		out.CompletedDays = DaySet{}
	}
	out.DayTaskProgress = make(map[int][]bool, len(s.DayTaskProgress))
	for k, v := range s.DayTaskProgress {
		out.DayTaskProgress[k] = slices.Clone(v)
	}
	out.DayNotes = cloneMap(s.DayNotes)
	out.DayNotesImages = make(map[int][][]byte, len(s.DayNotesImages))
	for k, imgs := range s.DayNotesImages {
		cp := make([][]byte, len(imgs))
		for i, img := range imgs {
			cp[i] = slices.Clone(img)
		}
		out.DayNotesImages[k] = cp
	}
	out.DailyRoutine = cloneMap(s.DailyRoutine)
	out.ProjectURLs = cloneMap(s.ProjectURLs)
	out.DeployURLs = cloneMap(s.DeployURLs)
	if s.LastActiveDate != nil {
		d := *s.LastActiveDate
		out.LastActiveDate = &d
	}
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
