package v1

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/observability/logging"
	"github.com/hrygo/notecrew/server/service/upload"
	"github.com/hrygo/notecrew/store"
)

// Form fields of the note report request. Clients send either images or images[].
const (
	formIdeaText    = "idea_text"
	formImages      = "images"
	formImagesArray = "images[]"
)

// NoteReport is the data of a successful note report response.
type NoteReport struct {
	Report          string `json:"report"`
	RunID           string `json:"run_id"`
	ProcessedImages int    `json:"processed_images"`
	TotalImages     int    `json:"total_images"`
}

// FlowRun is the JSON view of a stored run.
type FlowRun struct {
	RunID           string   `json:"run_id"`
	RequestID       string   `json:"request_id"`
	IdeaPreview     string   `json:"idea_preview"`
	ImageIDs        []string `json:"image_ids"`
	ProcessedImages int      `json:"processed_images"`
	TotalImages     int      `json:"total_images"`
	Status          string   `json:"status"`
	Error           string   `json:"error,omitempty"`
	Report          string   `json:"report,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
	CreatedTs       int64    `json:"created_ts"`
}

func convertFlowRunFromStore(run *store.FlowRun) *FlowRun {
	return &FlowRun{
		RunID:           run.RunID,
		RequestID:       run.RequestID,
		IdeaPreview:     run.IdeaPreview,
		ImageIDs:        run.ImageIDs,
		ProcessedImages: run.ProcessedImages,
		TotalImages:     run.TotalImages,
		Status:          string(run.Status),
		Error:           run.ErrorMessage,
		Report:          run.Report,
		DurationMs:      run.DurationMs,
		CreatedTs:       run.CreatedTs,
	}
}

// CreateNoteReport handles POST /api/v1/xhs/notes/report.
//
// Validation errors answer 400. A failed flow answers 200 with code 1 and
// the classified error in the message.
func (s *APIV1Service) CreateNoteReport(c echo.Context) error {
	ctx := c.Request().Context()

	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
	}
	idea := firstValue(form.Value[formIdeaText])
	headers := append(form.File[formImages], form.File[formImagesArray]...)

	sources, closeAll, err := openSources(headers)
	defer closeAll()
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	out, err := s.Notes.Generate(ctx, idea, sources)
	if err != nil {
		var verr *agents.ValidationError
		if errors.As(err, &verr) {
			return fail(c, http.StatusBadRequest, agents.FormatError(err))
		}
		logging.FromContext(ctx).Warn("note report failed", "error", agents.FormatError(err))
		return fail(c, http.StatusOK, "note generation failed: "+agents.FormatError(err))
	}

	return ok(c, NoteReport{
		Report:          out.Report,
		RunID:           out.RunID,
		ProcessedImages: out.ProcessedImages,
		TotalImages:     out.TotalImages,
	})
}

// GetFlowRun handles GET /api/v1/xhs/notes/runs/:id.
func (s *APIV1Service) GetFlowRun(c echo.Context) error {
	if s.Runs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run history is disabled")
	}
	runID := c.Param("id")
	run, err := s.Runs.GetFlowRun(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get flow run").SetInternal(err)
	}
	if run == nil {
		return fail(c, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
	}
	return ok(c, convertFlowRunFromStore(run))
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// openSources opens every uploaded file. closeAll must be called even on error.
func openSources(headers []*multipart.FileHeader) ([]upload.Source, func(), error) {
	var files []io.Closer
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	sources := make([]upload.Source, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to read upload %s: %w", h.Filename, err)
		}
		files = append(files, f)
		sources = append(sources, upload.Source{FileName: h.Filename, Reader: f})
	}
	return sources, closeAll, nil
}
