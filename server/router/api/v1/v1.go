package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/notecrew/internal/profile"
	"github.com/hrygo/notecrew/server/service/note"
	"github.com/hrygo/notecrew/server/service/upload"
	"github.com/hrygo/notecrew/store"
)

// DefaultBodyLimit caps a note request: up to 20 images of a few MB each.
const DefaultBodyLimit = "200M"

// NoteGenerator runs one note generation. *note.Service implements it.
type NoteGenerator interface {
	Generate(ctx context.Context, idea string, sources []upload.Source) (*note.Outcome, error)
}

// RunReader looks up persisted runs. *store.Store implements it.
type RunReader interface {
	GetFlowRun(ctx context.Context, runID string) (*store.FlowRun, error)
}

// HTTPMetrics counts served requests.
type HTTPMetrics interface {
	RecordHTTPRequest(method, path string, status int)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type APIV1Service struct {
	Profile *profile.Profile
	Notes   NoteGenerator
	Runs    RunReader
	Metrics HTTPMetrics
	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler
	Readiness      []ReadinessCheck
	BodyLimit      string
}

func NewAPIV1Service(profile *profile.Profile, notes NoteGenerator, runs RunReader) *APIV1Service {
	return &APIV1Service{
		Profile:   profile,
		Notes:     notes,
		Runs:      runs,
		BodyLimit: DefaultBodyLimit,
	}
}

// Register installs the middleware chain and every route on e.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(middleware.Recover())
	e.Use(RequestID())
	e.Use(s.observe)

	e.GET("/health/live", s.Live)
	e.GET("/health/ready", s.Ready)
	if s.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.MetricsHandler))
	}

	limit := s.BodyLimit
	if limit == "" {
		limit = DefaultBodyLimit
	}
	api := e.Group("/api/v1", middleware.BodyLimit(limit), APIKeyAuth(s.Profile))
	api.POST("/xhs/notes/report", s.CreateNoteReport)
	api.GET("/xhs/notes/runs/:id", s.GetFlowRun)
}
