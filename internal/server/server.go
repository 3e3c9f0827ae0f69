package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"vowline/internal/domain"
	"vowline/internal/engine"
	"vowline/internal/repo"
	"vowline/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"cycle_detected"`
	Message string         `json:"message" example:"dependency cycle: setup-chairs -> florals -> setup-chairs"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Vowline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Vowline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerEvents(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerDependencies(group, cfg.Engine)
	registerOptimize(group, cfg.Engine)
	registerResults(group, cfg.Engine)
	registerActuals(group, cfg.Engine)
	registerProfiles(group, cfg.Engine)
	registerLog(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

// handleError maps engine errors onto the envelope. Structural scheduling
// errors carry actionable details: the cycle witness or the window
// shortfall, plus a suggested fix.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ce *schedule.CycleError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusUnprocessableEntity, "cycle_detected", err.Error(), map[string]any{
			"cycle":         ce.Cycle,
			"suggested_fix": ce.SuggestedFix(),
		})
	}
	var iw *schedule.InfeasibleWindowError
	if errors.As(err, &iw) {
		return newAPIError(http.StatusUnprocessableEntity, "infeasible_window", err.Error(), map[string]any{
			"task_ids":          iw.TaskIDs,
			"shortfall_minutes": iw.ShortfallMinutes,
			"suggested_fix":     iw.SuggestedFix(),
		})
	}
	var ve *schedule.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		if len(ve.TaskIDs) > 0 {
			details["task_ids"] = ve.TaskIDs
		}
		return newAPIError(http.StatusBadRequest, "invalid_timeline", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists") || strings.Contains(lowered, "duplicate"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func actorFromRequest(ctx context.Context) string {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok {
		return "api"
	}
	if actor := strings.TrimSpace(r.Header.Get("X-Actor-Id")); actor != "" {
		return actor
	}
	return "api"
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
    <title>Vowline API Docs</title>
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Create event",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateEventRequest `json:"body"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		opts := engine.EventCreateOptions{
			ID:          input.Body.ID,
			WindowStart: input.Body.WindowStart,
			WindowEnd:   input.Body.WindowEnd,
			ActorID:     actorFromRequest(ctx),
		}
		if input.Body.Name != nil {
			opts.Name = *input.Body.Name
		}
		if input.Body.Date != nil {
			opts.Date = *input.Body.Date
		}
		ev, err := e.CreateEvent(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.ListEvents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Get event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		ev, err := e.Repo.GetEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "event-status",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/status",
		Summary:     "Event status summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body EventStatusResponse `json:"body"`
	}, error) {
		ev, err := e.Repo.GetEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListTasks(ctx, ev.ID)
		if err != nil {
			return nil, handleError(err)
		}
		edges, err := e.Repo.ListEdges(ctx, ev.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventStatusResponse{EventID: ev.ID, Status: ev.Status, Tasks: len(tasks), Edges: len(edges)}
		if latest, err := e.Repo.LatestResult(ctx, ev.ID); err == nil {
			resp.LatestRunID = latest.RunID
			resp.RiskScore = latest.RiskScore
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		return &struct {
			Body EventStatusResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-event",
		Method:      http.MethodDelete,
		Path:        "/events/{event_id}",
		Summary:     "Delete event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/tasks",
		Summary:       "Create vendor task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		EventID string            `path:"event_id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.VendorTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.TaskCreateOptions{
			EventID:          input.EventID,
			VendorID:         input.Body.VendorID,
			Category:         input.Body.Category,
			Title:            input.Body.Title,
			Zone:             input.Body.Zone,
			Start:            input.Body.Start,
			DurationMinutes:  input.Body.DurationMinutes,
			SetupMinutes:     input.Body.SetupMinutes,
			BreakdownMinutes: input.Body.BreakdownMinutes,
			ActorID:          actorFromRequest(ctx),
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VendorTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/tasks",
		Summary:     "List vendor tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body []domain.VendorTask `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListTasks(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.VendorTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/tasks/{task_id}",
		Summary:     "Get vendor task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		TaskID  string `path:"task_id"`
	}) (*struct {
		Body domain.VendorTask `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.EventID != input.EventID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not in event", nil)
		}
		return &struct {
			Body domain.VendorTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/events/{event_id}/tasks/{task_id}",
		Summary:     "Update vendor task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EventID string            `path:"event_id"`
		TaskID  string            `path:"task_id"`
		Body    UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.VendorTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:               input.TaskID,
			Start:            input.Body.Start,
			DurationMinutes:  input.Body.DurationMinutes,
			SetupMinutes:     input.Body.SetupMinutes,
			BreakdownMinutes: input.Body.BreakdownMinutes,
			Zone:             input.Body.Zone,
			Priority:         input.Body.Priority,
			ActorID:          actorFromRequest(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VendorTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/events/{event_id}/tasks/{task_id}",
		Summary:     "Delete vendor task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		TaskID  string `path:"task_id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.TaskID, actorFromRequest(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/dependencies",
		Summary:       "Add dependency edge",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EventID string               `path:"event_id"`
		Body    AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.DependencyEdge `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		edge, err := e.AddDependency(ctx, input.EventID, input.Body.FromTaskID, input.Body.ToTaskID,
			domain.EdgeKind(input.Body.Kind), actorFromRequest(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DependencyEdge `json:"body"`
		}{Body: edge}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/dependencies",
		Summary:     "List dependency edges",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body []domain.DependencyEdge `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEdges(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DependencyEdge `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/events/{event_id}/dependencies/{from_task_id}/{to_task_id}",
		Summary:     "Remove dependency edge",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID    string `path:"event_id"`
		FromTaskID string `path:"from_task_id"`
		ToTaskID   string `path:"to_task_id"`
	}) (*struct{}, error) {
		if err := e.RemoveDependency(ctx, input.EventID, input.FromTaskID, input.ToTaskID, actorFromRequest(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOptimize(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "optimize-event",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/optimize",
		Summary:     "Run timeline optimization",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EventID          string `path:"event_id"`
		BudgetIterations int    `query:"budget_iterations" minimum:"0"`
	}) (*struct {
		Body domain.OptimizationResult `json:"body"`
	}, error) {
		result, err := e.OptimizeEvent(ctx, input.EventID, engine.OptimizeOptions{
			BudgetIterations: input.BudgetIterations,
			ActorID:          actorFromRequest(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OptimizationResult `json:"body"`
		}{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detect-conflicts",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/conflicts/detect",
		Summary:     "Detect conflicts without proposing changes",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body []domain.ConflictRecord `json:"body"`
	}, error) {
		conflicts, err := e.DetectConflicts(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ConflictRecord `json:"body"`
		}{Body: conflicts}, nil
	})
}

func registerResults(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-results",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/results",
		Summary:     "List optimization results, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		Limit   int    `query:"limit" minimum:"0" maximum:"200"`
	}) (*struct {
		Body []domain.OptimizationResult `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListResults(ctx, input.EventID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.OptimizationResult `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-result",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/results/{run_id}",
		Summary:     "Get one optimization result",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		RunID   string `path:"run_id"`
	}) (*struct {
		Body domain.OptimizationResult `json:"body"`
	}, error) {
		res, err := e.Repo.GetResult(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		if res.EventID != input.EventID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "result not in event", nil)
		}
		return &struct {
			Body domain.OptimizationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerActuals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-actuals",
		Method:        http.MethodPost,
		Path:          "/events/{event_id}/actuals",
		Summary:       "Record a measured task outcome",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		EventID string               `path:"event_id"`
		Body    RecordActualsRequest `json:"body"`
	}) (*struct {
		Body ActualsAck `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.TaskID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		actual, err := e.RecordActuals(ctx, input.EventID, input.Body.TaskID,
			input.Body.ActualStart, input.Body.ActualDurationMinutes, actorFromRequest(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActualsAck `json:"body"`
		}{Body: ActualsAck{
			Recorded:             true,
			DelayMinutes:         actual.DelayMinutes,
			DurationDeltaMinutes: actual.DurationDeltaMinutes,
			ProfileUpdateQueued:  true,
		}}, nil
	})
}

func registerProfiles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-vendor-profile",
		Method:      http.MethodGet,
		Path:        "/vendors/{vendor_id}/profile",
		Summary:     "Get vendor reliability score",
	}, func(ctx context.Context, input *struct {
		VendorID string `path:"vendor_id"`
		Category string `query:"category"`
	}) (*struct {
		Body VendorProfileResponse `json:"body"`
	}, error) {
		score := e.Score(input.VendorID, input.Category)
		samples := 0
		if p, ok := e.Profiles.Get(input.VendorID, input.Category); ok {
			samples = p.SampleCount
		}
		return &struct {
			Body VendorProfileResponse `json:"body"`
		}{Body: VendorProfileResponse{
			VendorID: input.VendorID,
			Category: input.Category,
			Score:    score,
			Samples:  samples,
		}}, nil
	})
}

func registerLog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "event-log",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}/log",
		Summary:     "Tail the audit log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
		N       int    `query:"n" minimum:"0" maximum:"500"`
		Type    string `query:"type"`
	}) (*struct {
		Body []domain.AuditEvent `json:"body"`
	}, error) {
		if _, err := e.Repo.GetEvent(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		n := input.N
		if n <= 0 {
			n = 50
		}
		items, err := e.Repo.LatestEvents(ctx, n, input.EventID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEvent `json:"body"`
		}{Body: items}, nil
	})
}
