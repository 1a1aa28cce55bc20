// Package snapshot converts ProgressState to and from its persisted JSON form.
//
// Decoding never fails. Each top-level field is read on its own and falls back to
// its default when missing or malformed, so one damaged field does not discard the
// rest of the learner's progress.
package snapshot

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"sixty/internal/curriculum"
	"sixty/internal/domain"
)

// Encode renders the aggregate as JSON.
func Encode(s domain.ProgressState) ([]byte, error) {
	return json.Marshal(s)
}

// Decode rebuilds an aggregate from data. Absent or unreadable input yields defaults.
func Decode(data []byte) domain.ProgressState {
	s := domain.DefaultState()
	if len(data) == 0 {
		return s
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return s
	}

	var days []int
	if decodeField(raw, "completedDays", &days) {
		s.CompletedDays = domain.NewDaySet(days...)
	}

	var tasks map[string][]bool
	if decodeField(raw, "dayTaskProgress", &tasks) {
		cat := curriculum.Default()
		for k, v := range tasks {
			if day, ok := dayKey(k); ok && v != nil {
				s.DayTaskProgress[day] = fitTasks(v, cat.TaskCount(day))
			}
		}
	}

	var notes map[string]string
	if decodeField(raw, "dayNotes", &notes) {
		for k, v := range notes {
			if day, ok := dayKey(k); ok {
				s.DayNotes[day] = v
			}
		}
	}

	var images map[string][]string
	if decodeField(raw, "dayNotesImages", &images) {
		for k, list := range images {
			day, ok := dayKey(k)
			if !ok {
				continue
			}
			var blobs [][]byte
			for _, enc := range list {
				if b, ok := decodeImage(enc); ok {
					blobs = append(blobs, b)
				}
			}
			if len(blobs) > 0 {
				s.DayNotesImages[day] = blobs
			}
		}
	}

	var routine map[string]bool
	if decodeField(raw, "dailyRoutine", &routine) {
		for k, v := range routine {
			var key domain.RoutineKey
			if err := key.UnmarshalText([]byte(k)); err != nil {
				continue
			}
			s.DailyRoutine[key] = v
		}
	}

	var streak int
	if decodeField(raw, "streak", &streak) && streak > 0 {
		s.Streak = streak
	}

	var last string
	if decodeField(raw, "lastActiveDate", &last) && last != "" {
		if d, err := domain.ParseDate(last); err == nil {
			s.LastActiveDate = &d
		}
	}

	var urls map[string]string
	if decodeField(raw, "projectUrls", &urls) {
		s.ProjectURLs = nonEmpty(urls)
	}
	urls = nil
	if decodeField(raw, "deployUrls", &urls) {
		s.DeployURLs = nonEmpty(urls)
	}

	var theme domain.Theme
	if decodeField(raw, "theme", &theme) && theme.Valid() {
		s.Theme = theme
	}
	return s
}

func decodeField(raw map[string]json.RawMessage, name string, dst any) bool {
	msg, ok := raw[name]
	if !ok || string(msg) == "null" {
		return false
	}
	return json.Unmarshal(msg, dst) == nil
}

// fitTasks pads with false or truncates so a day's checklist always has n entries.
func fitTasks(v []bool, n int) []bool {
	out := make([]bool, n)
	copy(out, v)
	return out
}

func dayKey(k string) (int, bool) {
	day, err := strconv.Atoi(k)
	if err != nil || !domain.ValidDay(day) {
		return 0, false
	}
	return day, true
}

// decodeImage accepts plain base64 as well as data URLs saved by the browser app.
func decodeImage(enc string) ([]byte, bool) {
	if strings.HasPrefix(enc, "data:") {
		i := strings.Index(enc, ",")
		if i < 0 {
			return nil, false
		}
		enc = enc[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

func nonEmpty(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
