// Package note generates Xiaohongshu notes from an idea and uploaded images.
package note

import (
	"context"
	"log/slog"
	"strings"
	"time"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/observability/logging"
	"github.com/hrygo/notecrew/ai/xhsnote"
	"github.com/hrygo/notecrew/server/service/upload"
	"github.com/hrygo/notecrew/store"
)

// Flow runs one note generation. *xhsnote.Flow implements it.
type Flow interface {
	Execute(ctx context.Context, req xhsnote.IdeaRequest) (*xhsnote.Result, error)
}

// Stager stages uploads. *upload.Service implements it.
type Stager interface {
	Stage(ctx context.Context, sources []upload.Source) (*upload.Batch, error)
}

// RunRecorder persists run records. *store.Store implements it.
type RunRecorder interface {
	SaveFlowRun(ctx context.Context, run *store.FlowRun) (*store.FlowRun, error)
}

// Service is the note generation entry point shared by the HTTP API and the CLI.
type Service struct {
	flow    Flow
	uploads Stager
	runs    RunRecorder
}

// NewService creates a note service. runs may be nil to skip persistence.
func NewService(flow Flow, uploads Stager, runs RunRecorder) *Service {
	return &Service{flow: flow, uploads: uploads, runs: runs}
}

// Outcome describes a finished run. RunID is empty when staging failed.
type Outcome struct {
	RunID           string
	Report          string
	ProcessedImages int
	TotalImages     int
	Duration        time.Duration
	// Result is nil when the flow failed.
	Result *xhsnote.Result
}

// Generate stages sources, runs the flow and removes the staged files once
// the flow has returned. The returned error is the flow's error; Outcome is
// non-nil whenever a run was started.
func (s *Service) Generate(ctx context.Context, idea string, sources []upload.Source) (*Outcome, error) {
	if len(sources) > 0 && strings.TrimSpace(idea) == "" {
		return nil, &agents.ValidationError{Err: agents.ErrNoIdea}
	}

	start := time.Now()
	batch, err := s.uploads.Stage(ctx, sources)
	if err != nil {
		return nil, err
	}

	ctx = logging.With(ctx, "run_id", batch.RunID)
	log := logging.FromContext(ctx)
	log.Info("note: service start",
		"idea_text", xhsnote.IdeaPreview(idea),
		"image_count", len(batch.Images),
		"base_dir", batch.Dir,
	)

	res, flowErr := s.runFlow(ctx, batch, idea)

	out := &Outcome{
		RunID:       batch.RunID,
		TotalImages: len(batch.Images),
		Duration:    time.Since(start),
		Result:      res,
	}
	if res != nil {
		out.Report = res.Report
		out.ProcessedImages = res.ProcessedImages
	}

	if flowErr != nil {
		log.Warn("note: service failed", "error", agents.FormatError(flowErr))
	} else {
		log.Info("note: service success", "processed_images", out.ProcessedImages, "duration_ms", out.Duration.Milliseconds())
	}

	s.record(ctx, idea, batch, out, flowErr)
	return out, flowErr
}

// runFlow executes the flow and always cleans the batch up afterwards: the
// image agents read the staged files until the flow returns.
func (s *Service) runFlow(ctx context.Context, batch *upload.Batch, idea string) (*xhsnote.Result, error) {
	defer batch.Cleanup()
	return s.flow.Execute(ctx, xhsnote.IdeaRequest{IdeaText: idea, Images: batch.Images})
}

func (s *Service) record(ctx context.Context, idea string, batch *upload.Batch, out *Outcome, flowErr error) {
	if s.runs == nil {
		return
	}
	run := &store.FlowRun{
		RunID:           batch.RunID,
		RequestID:       logging.RequestID(ctx),
		IdeaPreview:     xhsnote.IdeaPreview(idea),
		ImageIDs:        batch.ImageIDs(),
		ProcessedImages: out.ProcessedImages,
		TotalImages:     out.TotalImages,
		Status:          store.FlowRunSucceeded,
		Report:          out.Report,
		DurationMs:      out.Duration.Milliseconds(),
	}
	if flowErr != nil {
		run.Status = store.FlowRunFailed
		run.ErrorMessage = agents.FormatError(flowErr)
	}

	// The record outlives a cancelled request.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.runs.SaveFlowRun(saveCtx, run); err != nil {
		slog.Error("failed to save flow run", "run_id", batch.RunID, "error", err)
	}
}
