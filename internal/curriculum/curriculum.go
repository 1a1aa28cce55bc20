// Package curriculum is the fixed 60-day roadmap: days, habits, projects and skills.
// Everything here is read-only.
package curriculum

import "fmt"

const TotalDays = 60

type Phase string

const (
	PhaseHTMLCSS    Phase = "HTML_CSS"
	PhaseJavaScript Phase = "JAVASCRIPT"
	PhaseReact      Phase = "REACT"
	PhaseBackend    Phase = "BACKEND"
)

var phaseLabels = map[Phase]string{
	PhaseHTMLCSS:    "HTML & CSS",
	PhaseJavaScript: "JavaScript",
	PhaseReact:      "React",
	PhaseBackend:    "Backend & DB",
}

// Phases lists the curriculum stages in order.
func Phases() []Phase {
	return []Phase{PhaseHTMLCSS, PhaseJavaScript, PhaseReact, PhaseBackend}
}

func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// ParsePhase accepts either the identifier or the display label.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases() {
		if s == string(p) || s == p.Label() {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// PhaseForDay maps a day onto its stage. Callers must pass a valid day.
func PhaseForDay(day int) Phase {
	switch {
	case day > 42:
		return PhaseBackend
	case day > 28:
		return PhaseReact
	case day > 14:
		return PhaseJavaScript
	default:
		return PhaseHTMLCSS
	}
}

type DayInfo struct {
	Number int      `json:"day"`
	Phase  Phase    `json:"phase"`
	Title  string   `json:"title"`
	Goal   string   `json:"goal"`
	Tasks  []string `json:"tasks"`
}

type Habit struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phase       Phase  `json:"phase"`
	RequiredDay int    `json:"required_day"`
}

// Unlocked reports whether the project is visible and editable at currentDay.
func (p Project) Unlocked(currentDay int) bool { return currentDay >= p.RequiredDay }

type Skill struct {
	Name  string `json:"name"`
	Phase Phase  `json:"phase"`
}

// Catalog is the lookup surface the engine reads from.
type Catalog struct {
	days     []DayInfo
	habits   []Habit
	projects []Project
	skills   []Skill
}

// Default returns the built-in roadmap.
func Default() *Catalog {
	c := &Catalog{
		habits:   defaultHabits,
		projects: defaultProjects,
		skills:   defaultSkills,
	}
	c.days = make([]DayInfo, TotalDays)
	for i := range c.days {
		c.days[i] = buildDay(i + 1)
	}
	return c
}

func buildDay(day int) DayInfo {
	d := DayInfo{Number: day, Phase: PhaseForDay(day)}
	switch d.Phase {
	case PhaseHTMLCSS:
		d.Title = fmt.Sprintf("Building Basics %d", day)
		d.Goal = "Understand the fundamental structure of web pages."
		d.Tasks = []string{"Watch intro video", "Practice 3 HTML tags", "Build a boilerplate"}
	case PhaseJavaScript:
		d.Title = fmt.Sprintf("JS Essentials Day %d", day)
		d.Goal = "Master logic and interactivity."
		d.Tasks = []string{"Solve 2 logic puzzles", "Implement a click listener", "Review array methods"}
	case PhaseReact:
		d.Title = fmt.Sprintf("React Mastery Day %d", day)
		d.Goal = "Build modern user interfaces."
		d.Tasks = []string{"Create a component", "Manage state with useState", "Use props effectively"}
	case PhaseBackend:
		d.Title = fmt.Sprintf("Full Stack Flow Day %d", day)
		d.Goal = "Connect to data and servers."
		d.Tasks = []string{"Setup Node.js", "Define an API route", "Connect to MongoDB"}
	}
	if o, ok := dayOverrides[day]; ok {
		d.Title, d.Goal, d.Tasks = o.Title, o.Goal, o.Tasks
	}
	return d
}

// Day returns the descriptor for day, false when day is outside the roadmap.
func (c *Catalog) Day(day int) (DayInfo, bool) {
	if day < 1 || day > len(c.days) {
		return DayInfo{}, false
	}
	d := c.days[day-1]
	d.Tasks = append([]string(nil), d.Tasks...)
	return d, true
}

func (c *Catalog) Days() []DayInfo {
	out := make([]DayInfo, 0, len(c.days))
	for i := range c.days {
		d, _ := c.Day(i + 1)
		out = append(out, d)
	}
	return out
}

// TaskCount is 0 for unknown days.
func (c *Catalog) TaskCount(day int) int {
	if day < 1 || day > len(c.days) {
		return 0
	}
	return len(c.days[day-1].Tasks)
}

func (c *Catalog) DaysInPhase(p Phase) int {
	n := 0
	for _, d := range c.days {
		if d.Phase == p {
			n++
		}
	}
	return n
}

func (c *Catalog) Habits() []Habit { return append([]Habit(nil), c.habits...) }

func (c *Catalog) Habit(id string) (Habit, bool) {
	for _, h := range c.habits {
		if h.ID == id {
			return h, true
		}
	}
	return Habit{}, false
}

func (c *Catalog) Projects() []Project { return append([]Project(nil), c.projects...) }

func (c *Catalog) Project(id string) (Project, bool) {
	for _, p := range c.projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

func (c *Catalog) Skills() []Skill { return append([]Skill(nil), c.skills...) }

var dayOverrides = map[int]struct {
	Title string
	Goal  string
	Tasks []string
}{
	1:  {"Environment Setup", "Get VS Code, Git, and Chrome ready.", []string{"Install VS Code", "Set up Git", "First Hello World"}},
	15: {"Variables & Types", "Data types in JS.", []string{"Declare let vs const", "Primitive types", "Basic Math"}},
	29: {"CRA & Vite", "Bootstrap React.", []string{"Init a project", "Understand folder structure", "JSX Intro"}},
	60: {"Deployment & Showcase", "The Grand Finale.", []string{"Deploy to Vercel/Netlify", "Update Portfolio", "Celebrate!"}},
}

var defaultHabits = []Habit{
	{ID: "sunlight", Label: "Wake up + Sunlight"},
	{ID: "exercise", Label: "Exercise / Walk"},
	{ID: "deepwork1", Label: "Deep Work Block 1"},
	{ID: "deepwork2", Label: "Deep Work Block 2"},
	{ID: "review", Label: "Review & Plan"},
	{ID: "sleep", Label: "Sleep on Time"},
}

var defaultProjects = []Project{
	{ID: "p1", Name: "Bio Page", Phase: PhaseHTMLCSS, RequiredDay: 7},
	{ID: "p2", Name: "Calculator", Phase: PhaseJavaScript, RequiredDay: 20},
	{ID: "p3", Name: "To-Do App", Phase: PhaseJavaScript, RequiredDay: 28},
	{ID: "p4", Name: "Flashcards", Phase: PhaseReact, RequiredDay: 35},
	{ID: "p5", Name: "Movie Search App", Phase: PhaseReact, RequiredDay: 42},
	{ID: "p6", Name: "Quotes API", Phase: PhaseBackend, RequiredDay: 50},
	{ID: "p7", Name: "Expense Tracker (Capstone)", Phase: PhaseBackend, RequiredDay: 60},
}

var defaultSkills = []Skill{
	{Name: "HTML", Phase: PhaseHTMLCSS},
	{Name: "CSS / Tailwind", Phase: PhaseHTMLCSS},
	{Name: "JavaScript", Phase: PhaseJavaScript},
	{Name: "React", Phase: PhaseReact},
	{Name: "Node.js", Phase: PhaseBackend},
	{Name: "MongoDB", Phase: PhaseBackend},
}
