// Package server exposes the bidforge HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bidforge/internal/domain"
	"bidforge/internal/engine"
	"bidforge/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"job not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the bidforge API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Bidforge API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGenerate(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerProposals(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "required"),
		strings.Contains(lowered, "unknown strategy"),
		strings.Contains(lowered, "invalid"):
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

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bidforge API Docs</title>
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

func registerGenerate(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate",
		Method:        http.MethodPost,
		Path:          "/generate",
		Summary:       "Generate a proposal",
		Description:   "Dispatches an asynchronous generation job and returns its id. With strategy_name set, drafts that single strategy synchronously instead.",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateRequest `json:"body"`
	}) (*struct {
		Body GenerateResponse `json:"body"`
	}, error) {
		if input.Body.ProjectName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_name is required", nil)
		}
		if input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "client_name is required", nil)
		}
		if input.Body.StrategyName != "" {
			research := e.Research(ctx, input.Body.ProjectName, input.Body.ClientName, input.Body.RFPText)
			researchJSON, _ := json.Marshal(research)
			draft, err := e.DraftStrategy(ctx, domain.Strategy(input.Body.StrategyName),
				input.Body.ProjectName, input.Body.ClientName, string(researchJSON))
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body GenerateResponse `json:"body"`
			}{Body: GenerateResponse{Draft: &draft}}, nil
		}
		id, err := e.Dispatch(ctx, domain.GenerationInput{
			ProjectName: input.Body.ProjectName,
			ClientName:  input.Body.ClientName,
			RFPText:     input.Body.RFPText,
			OwnerID:     input.Body.OwnerID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateResponse `json:"body"`
		}{Body: GenerateResponse{JobID: id}}, nil
	})
}

func registerJobs(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.ProposalJob `json:"body"`
	}, error) {
		job, err := e.Poll(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProposalJob `json:"body"`
		}{Body: job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",pending,researching,drafting,critiquing,humanizing,complete,failed"`
		Owner  string `query:"owner_id"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body JobListResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		filters := repo.JobFilters{
			Status:  input.Status,
			OwnerID: input.Owner,
			Limit:   limit,
		}
		if input.Cursor != "" {
			createdAt, id, ok := strings.Cut(input.Cursor, "|")
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			filters.CursorCreatedAt = createdAt
			filters.CursorID = id
		}
		items, err := e.Repo.ListJobs(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		resp := JobListResponse{Items: items}
		if len(items) == limit {
			last := items[len(items)-1]
			resp.NextCursor = last.CreatedAt + "|" + last.ID
		}
		return &struct {
			Body JobListResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerProposals(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/proposals/{job_id}",
		Summary:     "Get the finished proposal for a job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body domain.ProposalDocument `json:"body"`
	}, error) {
		doc, err := e.Repo.GetProposal(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProposalDocument `json:"body"`
		}{Body: doc}, nil
	})
}

// registerStages exposes each pipeline stage as a bounded synchronous call
// for the interactive client mode.
func registerStages(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stage-research",
		Method:      http.MethodPost,
		Path:        "/stages/research",
		Summary:     "Run the research stage",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ResearchRequest `json:"body"`
	}) (*struct {
		Body domain.ResearchSummary `json:"body"`
	}, error) {
		if input.Body.ProjectName == "" || input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_name and client_name are required", nil)
		}
		sum := e.Research(ctx, input.Body.ProjectName, input.Body.ClientName, input.Body.RFPText)
		return &struct {
			Body domain.ResearchSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-draft",
		Method:      http.MethodPost,
		Path:        "/stages/draft",
		Summary:     "Draft one strategy",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DraftRequest `json:"body"`
	}) (*struct {
		Body domain.StrategyDraft `json:"body"`
	}, error) {
		if input.Body.ProjectName == "" || input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_name and client_name are required", nil)
		}
		draft, err := e.DraftStrategy(ctx, domain.Strategy(input.Body.StrategyName),
			input.Body.ProjectName, input.Body.ClientName, input.Body.Research)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StrategyDraft `json:"body"`
		}{Body: draft}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-critique",
		Method:      http.MethodPost,
		Path:        "/stages/critique",
		Summary:     "Critique text against the acceptance threshold",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CritiqueRequest `json:"body"`
	}) (*struct {
		Body domain.CritiqueResult `json:"body"`
	}, error) {
		if input.Body.Text == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		res := e.Critique(ctx, input.Body.Text)
		return &struct {
			Body domain.CritiqueResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-humanize",
		Method:      http.MethodPost,
		Path:        "/stages/humanize",
		Summary:     "Humanize text",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body HumanizeRequest `json:"body"`
	}) (*struct {
		Body domain.HumanizedText `json:"body"`
	}, error) {
		if input.Body.Text == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		res := e.Humanize(ctx, input.Body.Text)
		return &struct {
			Body domain.HumanizedText `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stage-write",
		Method:      http.MethodPost,
		Path:        "/stages/write",
		Summary:     "Expand a draft into the full document",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body WriteRequest `json:"body"`
	}) (*struct {
		Body domain.WrittenDocument `json:"body"`
	}, error) {
		if input.Body.ProjectName == "" || input.Body.ClientName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_name and client_name are required", nil)
		}
		doc := e.Write(ctx, input.Body.ProjectName, input.Body.ClientName, input.Body.Draft)
		return &struct {
			Body domain.WrittenDocument `json:"body"`
		}{Body: doc}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		filters := repo.EventFilters{
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Type:       input.Type,
			Limit:      limit,
		}
		if input.Cursor != "" {
			id, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			filters.CursorID = id
		}
		items, err := e.Repo.ListEvents(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventListResponse{Items: items}
		if len(items) == limit {
			resp.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: resp}, nil
	})
}
