package sixtysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sixty HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// State mirrors the API progress snapshot. Map keys are day numbers,
// routine keys are YYYY-MM-DD-<habit>.
type State struct {
	CompletedDays   []int             `json:"completed_days"`
	CurrentDay      int               `json:"current_day"`
	DayTaskProgress map[string][]bool `json:"day_task_progress"`
	DayNotes        map[string]string `json:"day_notes"`
	DayImageCounts  map[string]int    `json:"day_image_counts"`
	DailyRoutine    map[string]bool   `json:"daily_routine"`
	Streak          int               `json:"streak"`
	LastActiveDate  string            `json:"last_active_date"`
	ProjectURLs     map[string]string `json:"project_urls"`
	DeployURLs      map[string]string `json:"deploy_urls"`
	Theme           string            `json:"theme"`
}

type Task struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Dashboard represents the derived dashboard (partial).
type Dashboard struct {
	CurrentDay int `json:"current_day"`
	Day        struct {
		Day   int    `json:"day"`
		Phase string `json:"phase"`
		Title string `json:"title"`
		Goal  string `json:"goal"`
	} `json:"day"`
	DayCompleted    bool   `json:"day_completed"`
	Tasks           []Task `json:"tasks"`
	TasksDone       int    `json:"tasks_done"`
	ProgressPercent int    `json:"progress_percent"`
	CompletedDays   int    `json:"completed_days"`
	Streak          int    `json:"streak"`
	TodayScore      int    `json:"today_score"`
	Theme           string `json:"theme"`
}

type Habit struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Habits is the routine checklist for one date.
type Habits struct {
	Date   string  `json:"date"`
	Score  int     `json:"score"`
	Habits []Habit `json:"habits"`
}

type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one advisor conversation entry.
type Message struct {
	Index     int        `json:"index"`
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Dropped   bool       `json:"dropped"`
}

// Event represents a journal entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) State(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodGet, "state", nil, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

// CompleteDay finalizes a day and returns the new state.
func (c *Client) CompleteDay(ctx context.Context, day int) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("days/%d/complete", day), nil, &resp)
	return resp, err
}

func (c *Client) ToggleTask(ctx context.Context, day, index int) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("days/%d/tasks/%d/toggle", day, index), nil, &resp)
	return resp, err
}

// SetNote replaces a day's note. Empty text removes it.
func (c *Client) SetNote(ctx context.Context, day int, text string) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("days/%d/note", day), map[string]any{"text": text}, &resp)
	return resp, err
}

// Habits lists habits for date (YYYY-MM-DD, or "" for today).
func (c *Client) Habits(ctx context.Context, date string) (Habits, error) {
	endpoint := "habits"
	if date != "" {
		endpoint += "?date=" + url.QueryEscape(date)
	}
	var resp Habits
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ToggleHabit flips a habit. date may be "today".
func (c *Client) ToggleHabit(ctx context.Context, date, habitID string) (Habits, error) {
	if date == "" {
		date = "today"
	}
	var resp Habits
	endpoint := fmt.Sprintf("habits/%s/%s/toggle", url.PathEscape(date), url.PathEscape(habitID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// UpdateProject sets the repository and/or deploy link of an unlocked project.
// Nil leaves a link unchanged; an empty string removes it.
func (c *Client) UpdateProject(ctx context.Context, id string, projectURL, deployURL *string) error {
	body := map[string]any{}
	if projectURL != nil {
		body["project_url"] = *projectURL
	}
	if deployURL != nil {
		body["deploy_url"] = *deployURL
	}
	return c.do(ctx, http.MethodPut, "projects/"+url.PathEscape(id), body, nil)
}

// Ask sends a question to the advisor and returns its reply.
func (c *Client) Ask(ctx context.Context, text string) (Message, error) {
	var resp Message
	err := c.do(ctx, http.MethodPost, "assistant/messages", map[string]any{"text": text}, &resp)
	return resp, err
}

// Events returns recent events, newest first. evtType filters when non-empty.
func (c *Client) Events(ctx context.Context, limit int, evtType string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
