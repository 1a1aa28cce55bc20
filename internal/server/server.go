package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sixty/internal/assistant"
	"sixty/internal/domain"
	"sixty/internal/engine"
	"sixty/internal/progress"
	"sixty/internal/repo"
)

// EventLog is the read side of the event journal.
type EventLog interface {
	LatestEvents(ctx context.Context, n int, evtType string) ([]domain.Event, error)
}

// Config for the HTTP API handler.
type Config struct {
	Engine *engine.Engine
	// Events is nil when the storage driver keeps no journal.
	Events EventLog
	// Advisor is nil when no assistant key is configured.
	Advisor  *assistant.Conversation
	BasePath string
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"project_locked"`
	Message string         `json:"message" example:"project locked: p2 unlocks on day 20 (current day 4)"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type output[T any] struct {
	Body T
}

func ok[T any](v T) *output[T] { return &output[T]{Body: v} }

type blobOutput struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type handlers struct {
	engine  *engine.Engine
	events  EventLog
	advisor *assistant.Conversation
	metrics *metrics
	logger  *zap.Logger
}

// New returns an HTTP handler exposing the progress API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	h := handlers{
		engine:  cfg.Engine,
		events:  cfg.Events,
		advisor: cfg.Advisor,
		metrics: newMetrics(),
		logger:  logger,
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Sixty API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", h.metrics.handler())
	registerHealth(group)
	registerState(group, h)
	registerDays(group, h)
	registerImages(group, h)
	registerHabits(group, h)
	registerProjects(group, h)
	registerPreferences(group, h)
	registerAssistant(group, h)
	registerEvents(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrInvalidDay),
		errors.Is(err, engine.ErrInvalidTask),
		errors.Is(err, engine.ErrUnknownHabit),
		errors.Is(err, engine.ErrEmptyImage),
		errors.Is(err, engine.ErrInvalidTheme),
		errors.Is(err, engine.ErrInvalidNote),
		errors.Is(err, assistant.ErrEmptyMessage):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case errors.Is(err, engine.ErrProjectLocked):
		return newAPIError(http.StatusForbidden, "project_locked", msg, nil)
	case errors.Is(err, engine.ErrUnknownProject),
		errors.Is(err, assistant.ErrNoMessage),
		errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, assistant.ErrBusy):
		return newAPIError(http.StatusConflict, "busy", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sixty API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[map[string]string], error) {
		return ok(map[string]string{"status": "ok"}), nil
	})
}

func registerState(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/state",
		Summary:     "Full progress state",
	}, func(ctx context.Context, _ *struct{}) (*output[StateResponse], error) {
		return ok(stateResponse(h.engine.State())), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Derived dashboard for the current day",
	}, func(ctx context.Context, _ *struct{}) (*output[progress.Dashboard], error) {
		return ok(h.engine.Dashboard()), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-roadmap",
		Method:      http.MethodGet,
		Path:        "/roadmap",
		Summary:     "All days with completion",
	}, func(ctx context.Context, input *struct {
		Phase string `query:"phase" enum:"HTML_CSS,JAVASCRIPT,REACT,BACKEND" doc:"Only days of this phase"`
	}) (*output[[]RoadmapEntry], error) {
		items := roadmapResponse(h.engine.State(), h.engine.Catalog)
		if input.Phase == "" {
			return ok(items), nil
		}
		filtered := []RoadmapEntry{}
		for _, it := range items {
			if it.Phase == input.Phase {
				filtered = append(filtered, it)
			}
		}
		return ok(filtered), nil
	})
}

type dayPath struct {
	Day int `path:"day"`
}

func registerDays(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-day",
		Method:      http.MethodGet,
		Path:        "/days/{day}",
		Summary:     "Day detail",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *dayPath) (*output[DayResponse], error) {
		info, found := h.engine.Catalog.Day(input.Day)
		if !found {
			return nil, handleError(fmt.Errorf("%w: %d", engine.ErrInvalidDay, input.Day))
		}
		return ok(dayResponse(h.engine.State(), h.engine.Catalog, info)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "complete-day",
		Method:      http.MethodPost,
		Path:        "/days/{day}/complete",
		Summary:     "Finalize a day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *dayPath) (*output[StateResponse], error) {
		st, err := h.engine.CompleteDay(ctx, input.Day)
		if err := h.metrics.intent("complete_day", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/days/{day}/tasks/{index}/toggle",
		Summary:     "Flip one task checkbox",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Day   int `path:"day"`
		Index int `path:"index"`
	}) (*output[StateResponse], error) {
		st, err := h.engine.ToggleDayTask(ctx, input.Day, input.Index)
		if err := h.metrics.intent("toggle_task", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "set-note",
		Method:      http.MethodPut,
		Path:        "/days/{day}/note",
		Summary:     "Replace a day's note; empty text removes it",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Day  int `path:"day"`
		Body NoteRequest
	}) (*output[StateResponse], error) {
		st, err := h.engine.SetNote(ctx, input.Day, input.Body.Text)
		if err := h.metrics.intent("set_note", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
}

func registerImages(api huma.API, h handlers) {
	type imagePath struct {
		Day   int `path:"day"`
		Index int `path:"index"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "add-image",
		Method:        http.MethodPost,
		Path:          "/days/{day}/images",
		Summary:       "Attach an image to a day",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Day  int `path:"day"`
		Body ImageRequest
	}) (*output[StateResponse], error) {
		st, err := h.engine.AddImage(ctx, input.Day, input.Body.Data)
		if err := h.metrics.intent("add_image", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-image",
		Method:      http.MethodGet,
		Path:        "/days/{day}/images/{index}",
		Summary:     "Raw image bytes",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *imagePath) (*blobOutput, error) {
		imgs := h.engine.State().DayNotesImages[input.Day]
		if input.Index < 0 || input.Index >= len(imgs) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "image not found", map[string]any{"day": input.Day, "index": input.Index})
		}
		img := imgs[input.Index]
		return &blobOutput{Status: http.StatusOK, ContentType: http.DetectContentType(img), Body: img}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "remove-image",
		Method:      http.MethodDelete,
		Path:        "/days/{day}/images/{index}",
		Summary:     "Detach an image; unknown indexes are ignored",
	}, func(ctx context.Context, input *imagePath) (*output[StateResponse], error) {
		st, err := h.engine.RemoveImage(ctx, input.Day, input.Index)
		if err := h.metrics.intent("remove_image", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
}

func (h handlers) parseDate(raw string) (domain.Date, error) {
	if raw == "" || raw == "today" {
		return h.engine.Today(), nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return domain.Date{}, newAPIError(http.StatusBadRequest, "bad_request", "invalid date", map[string]any{"date": raw})
	}
	return d, nil
}

func registerHabits(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-habits",
		Method:      http.MethodGet,
		Path:        "/habits",
		Summary:     "Habit checklist for a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `query:"date" doc:"YYYY-MM-DD, defaults to today"`
	}) (*output[HabitsResponse], error) {
		date, err := h.parseDate(input.Date)
		if err != nil {
			return nil, err
		}
		return ok(habitsResponse(h.engine.State(), h.engine.Catalog, date)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "toggle-habit",
		Method:      http.MethodPost,
		Path:        "/habits/{date}/{habit}/toggle",
		Summary:     "Flip a habit for a date",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date  string `path:"date"`
		Habit string `path:"habit"`
	}) (*output[HabitsResponse], error) {
		date, err := h.parseDate(input.Date)
		if err != nil {
			return nil, err
		}
		st, err := h.engine.ToggleHabit(ctx, date, input.Habit)
		if err := h.metrics.intent("toggle_habit", handleError(err)); err != nil {
			return nil, err
		}
		return ok(habitsResponse(st, h.engine.Catalog, date)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Routine score for the last 14 days",
	}, func(ctx context.Context, _ *struct{}) (*output[[]ActivityResponse], error) {
		points := progress.ActivitySeries(h.engine.State(), h.engine.Catalog, h.engine.Today())
		return ok(activityResponse(points)), nil
	})
}

func registerProjects(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "Portfolio projects with lock state and links",
	}, func(ctx context.Context, _ *struct{}) (*output[[]progress.ProjectState], error) {
		return ok(progress.Projects(h.engine.State(), h.engine.Catalog)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Set repository and deploy links",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ProjectUpdateRequest
	}) (*output[progress.ProjectState], error) {
		if input.Body.ProjectURL == nil && input.Body.DeployURL == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_url or deploy_url required", nil)
		}
		var (
			st  domain.ProgressState
			err error
		)
		if input.Body.ProjectURL != nil {
			st, err = h.engine.SetProjectURL(ctx, input.ID, strings.TrimSpace(*input.Body.ProjectURL))
			if err := h.metrics.intent("set_project_url", handleError(err)); err != nil {
				return nil, err
			}
		}
		if input.Body.DeployURL != nil {
			st, err = h.engine.SetDeployURL(ctx, input.ID, strings.TrimSpace(*input.Body.DeployURL))
			if err := h.metrics.intent("set_deploy_url", handleError(err)); err != nil {
				return nil, err
			}
		}
		for _, p := range progress.Projects(st, h.engine.Catalog) {
			if p.ID == input.ID {
				return ok(p), nil
			}
		}
		return nil, handleError(repo.ErrNotFound)
	})
}

func registerPreferences(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "toggle-theme",
		Method:      http.MethodPost,
		Path:        "/theme/toggle",
		Summary:     "Switch between dark and light",
	}, func(ctx context.Context, _ *struct{}) (*output[StateResponse], error) {
		st, err := h.engine.ToggleTheme(ctx)
		if err := h.metrics.intent("toggle_theme", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "set-theme",
		Method:      http.MethodPut,
		Path:        "/theme",
		Summary:     "Set the display theme",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ThemeRequest
	}) (*output[StateResponse], error) {
		st, err := h.engine.SetTheme(ctx, domain.Theme(input.Body.Theme))
		if err := h.metrics.intent("set_theme", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(st)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "reset",
		Method:      http.MethodPost,
		Path:        "/reset",
		Summary:     "Discard all progress",
	}, func(ctx context.Context, _ *struct{}) (*output[StateResponse], error) {
		err := h.engine.Reset(ctx)
		if err := h.metrics.intent("reset", handleError(err)); err != nil {
			return nil, err
		}
		return ok(stateResponse(h.engine.State())), nil
	})
}

func (h handlers) requireAdvisor() (*assistant.Conversation, error) {
	if h.advisor == nil {
		return nil, newAPIError(http.StatusServiceUnavailable, "assistant_unavailable", assistant.ErrNoAPIKey.Error(), nil)
	}
	return h.advisor, nil
}

func registerAssistant(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/assistant/messages",
		Summary:     "Advisor conversation for this server run",
	}, func(ctx context.Context, _ *struct{}) (*output[[]MessageResponse], error) {
		if h.advisor == nil {
			return ok([]MessageResponse{}), nil
		}
		return ok(messageResponses(h.advisor.Messages())), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "ask-advisor",
		Method:      http.MethodPost,
		Path:        "/assistant/messages",
		Summary:     "Ask the advisor about the current day",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body AskRequest
	}) (*output[MessageResponse], error) {
		advisor, err := h.requireAdvisor()
		if err != nil {
			return nil, err
		}
		c := h.engine.AssistantContext(0)
		msg, err := advisor.Ask(ctx, c, input.Body.Text)
		switch {
		case errors.Is(err, assistant.ErrBusy):
			h.metrics.advisor("busy")
		case err != nil:
			h.metrics.advisor("rejected")
		case msg.Dropped:
			h.metrics.advisor("dropped")
		default:
			h.metrics.advisor("ok")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return ok(messageResponse(len(advisor.Messages())-1, msg)), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "message-speech",
		Method:      http.MethodPost,
		Path:        "/assistant/messages/{index}/speech",
		Summary:     "Synthesize a message as WAV audio; 204 when no audio was produced",
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Index int `path:"index"`
	}) (*blobOutput, error) {
		advisor, err := h.requireAdvisor()
		if err != nil {
			return nil, err
		}
		pcm, err := advisor.Speech(ctx, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		if len(pcm) == 0 {
			return &blobOutput{Status: http.StatusNoContent}, nil
		}
		return &blobOutput{
			Status:      http.StatusOK,
			ContentType: "audio/wav",
			Body:        assistant.EncodeWAV(pcm, assistant.SampleRate, assistant.Channels),
		}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func registerEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent progress events, newest first",
	}, func(ctx context.Context, input *struct {
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*output[[]EventResponse], error) {
		items := []EventResponse{}
		if h.events == nil {
			return ok(items), nil
		}
		evts, err := h.events.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		for _, evt := range evts {
			items = append(items, eventResponse(evt))
		}
		return ok(items), nil
	})
}
