package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"sixty/internal/assistant"
	"sixty/internal/db"
	"sixty/internal/engine"
	"sixty/internal/migrate"
	"sixty/internal/repo"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type stubGateway struct {
	reply assistant.Reply
	audio []byte
}

func (s stubGateway) SendMessage(ctx context.Context, c assistant.Context, text string) (assistant.Reply, error) {
	return s.reply, nil
}

func (s stubGateway) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	return s.audio, nil
}

func newTestServer(t *testing.T, gw assistant.Gateway) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	r := repo.Repo{DB: conn, Now: now}
	e := engine.New(r, nil, nil)
	e.Now = now
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("open engine: %v", err)
	}
	cfg := Config{Engine: e, Events: r, BasePath: "/v0"}
	if gw != nil {
		cfg.Advisor = assistant.NewConversation(gw, nil)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestStateAfterCompletion(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/1/tasks/0/toggle", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle task status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/1/complete", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var st StateResponse
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.CurrentDay != 2 || len(st.CompletedDays) != 1 || st.Streak != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if got := st.DayTaskProgress["1"]; len(got) != 3 || !got[0] {
		t.Fatalf("task progress = %v", got)
	}
	if st.LastActiveDate != "2024-01-01" {
		t.Fatalf("last active = %q", st.LastActiveDate)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	var dash struct {
		CurrentDay      int `json:"current_day"`
		ProgressPercent int `json:"progress_percent"`
		Activity        []struct {
			Date string `json:"date"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(data, &dash); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if dash.CurrentDay != 2 || dash.ProgressPercent != 2 || len(dash.Activity) != 14 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}
	if dash.Activity[13].Date != "2024-01-01" {
		t.Fatalf("activity should end today, got %s", dash.Activity[13].Date)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/61/complete", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "bad_request" || !strings.Contains(body.Message, "invalid day") {
		t.Fatalf("unexpected error body: %+v", body)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/1/tasks/9/toggle", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad task, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/p1", map[string]any{"project_url": "https://github.com/me/bio"}, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "project_locked" {
		t.Fatalf("unexpected code: %+v", body)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/p42", map[string]any{"project_url": "https://x"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/habits?date=yesterday", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d %s", res.StatusCode, string(data))
	}
}

func TestProjectUnlocksAndUpdates(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	for d := 1; d <= 6; d++ {
		if _, err := srv.Engine.CompleteDay(context.Background(), d); err != nil {
			t.Fatalf("complete %d: %v", d, err)
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/projects/p1", map[string]any{
		"project_url": " https://github.com/me/bio ",
		"deploy_url":  "https://bio.example.com",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update project: %d %s", res.StatusCode, string(data))
	}
	var p struct {
		ID         string `json:"id"`
		Unlocked   bool   `json:"unlocked"`
		ProjectURL string `json:"project_url"`
		DeployURL  string `json:"deploy_url"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if !p.Unlocked || p.ProjectURL != "https://github.com/me/bio" || p.DeployURL != "https://bio.example.com" {
		t.Fatalf("unexpected project: %+v", p)
	}
}

func TestImagesRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/2/images", map[string]any{"data": png}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add image: %d %s", res.StatusCode, string(data))
	}
	var st StateResponse
	_ = json.Unmarshal(data, &st)
	if st.DayImageCounts["2"] != 1 {
		t.Fatalf("image counts = %v", st.DayImageCounts)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2/images/0", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get image: %d %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Equal(data, png) {
		t.Fatalf("image bytes differ")
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/days/2/images/5", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing image, got %d", res.StatusCode)
	}

	// removing a missing index is accepted and changes nothing
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/days/2/images/5", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove missing: %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/days/2/images/0", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove: %d %s", res.StatusCode, string(data))
	}
	st = StateResponse{}
	_ = json.Unmarshal(data, &st)
	if _, ok := st.DayImageCounts["2"]; ok {
		t.Fatalf("expected no images left: %v", st.DayImageCounts)
	}
}

func TestHabitsAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	for _, habit := range []string{"sunlight", "exercise", "sleep"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/habits/2024-01-01/"+habit+"/toggle", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("toggle %s: %d %s", habit, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/habits", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("habits: %d %s", res.StatusCode, string(data))
	}
	var habits HabitsResponse
	if err := json.Unmarshal(data, &habits); err != nil {
		t.Fatalf("unmarshal habits: %v", err)
	}
	if habits.Date != "2024-01-01" || habits.Score != 50 || len(habits.Habits) != 6 {
		t.Fatalf("unexpected habits: %+v", habits)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/habits/today/nap/toggle", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown habit, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=habit.toggled&limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var evts []EventResponse
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts) != 2 || evts[0].EntityID != "sleep" || evts[0].Payload["date"] != "2024-01-01" {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestAssistantUnavailable(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/messages", map[string]any{"text": "hi"}, nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", res.StatusCode, string(data))
	}
	if body := decodeError(t, data); body.Code != "assistant_unavailable" {
		t.Fatalf("unexpected code: %+v", body)
	}
}

func TestAssistantAskAndSpeech(t *testing.T) {
	gw := stubGateway{
		reply: assistant.Reply{Text: "Start with git init.", Citations: []assistant.Citation{{URI: "https://git-scm.com", Title: "Git"}}},
		audio: []byte{0, 1, 0, 1},
	}
	srv, cleanup := newTestServer(t, gw)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages", map[string]any{"text": "   "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages", map[string]any{"text": "where do I start?"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ask: %d %s", res.StatusCode, string(data))
	}
	var msg MessageResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Index != 1 || msg.Role != "model" || len(msg.Citations) != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages/1/speech", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("speech: %d %s", res.StatusCode, string(data))
	}
	if res.Header.Get("Content-Type") != "audio/wav" || string(data[:4]) != "RIFF" || len(data) != 48 {
		t.Fatalf("unexpected wav: %q %d", res.Header.Get("Content-Type"), len(data))
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages/7/speech", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing message, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assistant/messages", nil, nil)
	var msgs []MessageResponse
	_ = json.Unmarshal(data, &msgs)
	if res.StatusCode != http.StatusOK || len(msgs) != 2 {
		t.Fatalf("messages: %d %d", res.StatusCode, len(msgs))
	}
}

func TestMetricsAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/theme/toggle", nil, nil)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/days/0/complete", nil, nil)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", res.StatusCode)
	}
	text := string(data)
	for _, want := range []string{
		`sixty_intents_total{intent="toggle_theme",outcome="ok"} 1`,
		`sixty_intents_total{intent="complete_day",outcome="rejected"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q:\n%s", want, text)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/days/{day}/complete") {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
}

func TestResetEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	if _, err := srv.Engine.CompleteDay(context.Background(), 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reset", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset: %d %s", res.StatusCode, string(data))
	}
	var st StateResponse
	_ = json.Unmarshal(data, &st)
	if len(st.CompletedDays) != 0 || st.CurrentDay != 1 || st.Theme != "dark" {
		t.Fatalf("unexpected state after reset: %+v", st)
	}
}

func TestSetTheme(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/theme", map[string]any{"theme": "light"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set theme: %d %s", res.StatusCode, string(data))
	}
	var st StateResponse
	_ = json.Unmarshal(data, &st)
	if st.Theme != "light" {
		t.Fatalf("theme = %q", st.Theme)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/theme", map[string]any{"theme": "sepia"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestSpeechWithoutAudioIsNoContent(t *testing.T) {
	srv, cleanup := newTestServer(t, stubGateway{reply: assistant.Reply{Text: "hi"}})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages", map[string]any{"text": "read this aloud"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ask: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assistant/messages/1/speech", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", res.StatusCode, string(data))
	}
	if len(data) != 0 {
		t.Fatalf("expected empty body, got %d bytes", len(data))
	}
}

func TestOpenAPIDocumentIsStable(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	const n = 8
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("openapi document %d differs from the first", i)
		}
	}

	var doc struct {
		Components struct {
			Schemas map[string]struct {
				Properties map[string]any `json:"properties"`
			} `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	project, found := doc.Components.Schemas["ProjectState"]
	if !found {
		t.Fatalf("ProjectState schema missing")
	}
	for _, field := range []string{"id", "name", "phase", "required_day", "unlocked", "project_url", "deploy_url"} {
		if _, ok := project.Properties[field]; !ok {
			t.Fatalf("ProjectState schema missing %q: %v", field, project.Properties)
		}
	}
}
