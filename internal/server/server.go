package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"segmentline/internal/domain"
	"segmentline/internal/engine"
	"segmentline/internal/logging"
	"segmentline/internal/metrics"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Session  *engine.Session
	BasePath string
	Metrics  *metrics.Recorder
	Log      *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"missing segment name"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the compose API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("server: session is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = logging.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema errors are the caller's fault, not a segment validation
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	hcfg := huma.DefaultConfig("Segmentline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCatalog(group, cfg.Engine)
	registerCompose(group, cfg.Session)
	registerSubmit(group, cfg.Session)
	registerOpenAPI(router, api, basePath)
	router.Handle("/metrics", cfg.Metrics.Handler())

	return router, nil
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"elapsed", time.Since(start))
		})
	}
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

func handleError(err error, view domain.View) huma.StatusError {
	if err == nil {
		return nil
	}
	details := map[string]any{"status": view.Status}
	if view.Result != nil {
		details["result"] = view.Result
	}
	var ie engine.IndexError
	if errors.As(err, &ie) {
		details["index"] = ie.Index
		details["slots"] = ie.Len
		return newAPIError(http.StatusBadRequest, "index_out_of_range", err.Error(), details)
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	var se *engine.SubmissionError
	if errors.As(err, &se) {
		if se.StatusCode != 0 {
			details["collector_status"] = se.StatusCode
		}
		if se.Body != "" {
			details["collector_body"] = se.Body
		}
		return newAPIError(http.StatusBadGateway, "submission_failed", err.Error(), details)
	}
	switch {
	case errors.Is(err, engine.ErrBusy):
		return newAPIError(http.StatusConflict, "submission_in_progress", err.Error(), details)
	case errors.Is(err, engine.ErrClosed):
		return newAPIError(http.StatusConflict, "compose_closed", err.Error(), details)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusBadGateway:
		return "bad_gateway"
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
		// ensureDefaultErrorResponses edits the shared document; build it once
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
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	ref := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
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
					"application/json": {Schema: ref},
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
    <title>Segmentline API Docs</title>
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
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "List selectable schemas in catalog order",
	}, func(ctx context.Context, _ *struct{}) (*catalogOutput, error) {
		return &catalogOutput{Body: CatalogResponse{Items: e.Catalog.Entries()}}, nil
	})
}

var intentErrors = []int{
	http.StatusBadRequest,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerCompose(api huma.API, s *engine.Session) {
	huma.Register(api, huma.Operation{
		OperationID: "get-compose",
		Method:      http.MethodGet,
		Path:        "/compose",
		Summary:     "Current draft with per-slot availability and payload preview",
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		return viewResponse(s.View()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-compose",
		Method:      http.MethodPost,
		Path:        "/compose/open",
		Summary:     "Open the compose surface with a fresh draft",
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		return viewResponse(s.Open()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-compose",
		Method:      http.MethodPost,
		Path:        "/compose/close",
		Summary:     "Close the compose surface and discard the draft",
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		return viewResponse(s.Close()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dismiss-result",
		Method:      http.MethodPost,
		Path:        "/compose/dismiss",
		Summary:     "Dismiss the last submission result",
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		return viewResponse(s.Dismiss()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-name",
		Method:      http.MethodPut,
		Path:        "/compose/name",
		Summary:     "Set the segment name",
		Errors:      intentErrors,
	}, func(ctx context.Context, input *setNameInput) (*viewOutput, error) {
		v, err := s.SetName(input.Body.Name)
		if err != nil {
			return nil, handleError(err, v)
		}
		return viewResponse(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-slot",
		Method:      http.MethodPost,
		Path:        "/compose/slots",
		Summary:     "Append an empty slot",
		Errors:      intentErrors,
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		v, err := s.AddSlot()
		if err != nil {
			return nil, handleError(err, v)
		}
		return viewResponse(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-slot",
		Method:      http.MethodPut,
		Path:        "/compose/slots/{index}",
		Summary:     "Select a schema in a slot, or clear it",
		Errors:      intentErrors,
	}, func(ctx context.Context, input *setSlotInput) (*viewOutput, error) {
		v, err := s.SetSlot(input.Index, input.Body.Value)
		if err != nil {
			return nil, handleError(err, v)
		}
		return viewResponse(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-slot",
		Method:      http.MethodDelete,
		Path:        "/compose/slots/{index}",
		Summary:     "Remove a slot",
		Errors:      intentErrors,
	}, func(ctx context.Context, input *slotPath) (*viewOutput, error) {
		v, err := s.RemoveSlot(input.Index)
		if err != nil {
			return nil, handleError(err, v)
		}
		return viewResponse(v), nil
	})
}

func registerSubmit(api huma.API, s *engine.Session) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-segment",
		Method:      http.MethodPost,
		Path:        "/compose/submit",
		Summary:     "Validate the draft and send it to the collector",
		Errors: []int{
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*viewOutput, error) {
		// a client disconnect must not abort a delivery already in flight
		v, err := s.Submit(context.WithoutCancel(ctx))
		if err != nil {
			return nil, handleError(err, v)
		}
		return viewResponse(v), nil
	})
}
