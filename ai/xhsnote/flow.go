// Package xhsnote implements the Xiaohongshu note flow: per-image visual
// analysis, per-image edit plans, then the strategy → copywriting → SEO chain,
// assembled into a text report.
package xhsnote

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/agents/orchestrator"
	"github.com/hrygo/notecrew/ai/observability/logging"
)

const (
	// FlowName labels the flow duration histogram.
	FlowName = "xhs_note_flow"

	// DefaultCrewTimeout bounds each phase.
	DefaultCrewTimeout = 600 * time.Second
)

// Crew names, used in logs.
const (
	visualCrewName  = "xhs_visual_analysis"
	editCrewName    = "xhs_image_edit"
	contentCrewName = "xhs_content"
)

// Kicker runs a crew. *orchestrator.Executor implements it.
type Kicker interface {
	Kickoff(ctx context.Context, crew *orchestrator.Crew) (*orchestrator.CrewOutput, error)
}

// Metrics receives flow instrumentation.
type Metrics interface {
	ObserveCrewExecution(flowName string, d time.Duration)
	IncAgentError(agentRole, errorType string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCrewExecution(string, time.Duration) {}
func (nopMetrics) IncAgentError(string, string)               {}

// Option customizes a Flow.
type Option func(*Flow)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *Flow) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithCrewTimeout overrides DefaultCrewTimeout. Non-positive values are ignored.
func WithCrewTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// Flow orchestrates one note generation. It keeps no per-request state and
// may serve concurrent requests.
type Flow struct {
	executor Kicker
	builder  *TaskBuilder
	metrics  Metrics
	timeout  time.Duration
}

// NewFlow creates a flow.
func NewFlow(executor Kicker, builder *TaskBuilder, opts ...Option) *Flow {
	f := &Flow{
		executor: executor,
		builder:  builder,
		metrics:  nopMetrics{},
		timeout:  DefaultCrewTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is the outcome of a successful flow.
type Result struct {
	Report string

	Visual VisualBatchReport
	Edit   EditBatchReport

	// Strategy and Copywriting are nil when the agent's answer was not parseable.
	Strategy    *ContentStrategyBrief
	Copywriting *CopywritingOutput
	SEO         SEOOptimizedNote

	// ProcessedImages counts images with both a visual analysis and an edit plan.
	ProcessedImages int
	TotalImages     int
	Duration        time.Duration
}

// Run executes the flow and returns exactly one of report and error message.
// The error message has the form "<ErrorType>: <message>".
func (f *Flow) Run(ctx context.Context, req IdeaRequest) (report string, errMsg string) {
	res, err := f.Execute(ctx, req)
	if err != nil {
		return "", agents.FormatError(err)
	}
	return res.Report, ""
}

// Execute runs every phase and assembles the report.
func (f *Flow) Execute(ctx context.Context, req IdeaRequest) (res *Result, err error) {
	if len(req.Images) == 0 {
		return nil, &agents.ValidationError{Err: agents.ErrNoImages}
	}
	if strings.TrimSpace(req.IdeaText) == "" {
		return nil, &agents.ValidationError{Err: agents.ErrNoIdea}
	}

	log := logging.FromContext(ctx)
	start := time.Now()
	log.Info("xhsnote: flow start",
		"idea_text", IdeaPreview(req.IdeaText),
		"image_count", len(req.Images),
	)
	defer func() {
		duration := time.Since(start)
		f.metrics.ObserveCrewExecution(FlowName, duration)
		if err != nil {
			log.Error("xhsnote: flow failed",
				"error", agents.FormatError(err),
				"duration_ms", duration.Milliseconds(),
			)
		}
	}()

	visualByID, visualSummary, err := f.visualPhase(ctx, req)
	if err != nil {
		return nil, err
	}

	editByID, editSummary, err := f.editPhase(ctx, req, visualByID)
	if err != nil {
		return nil, err
	}

	visualBatch, editBatch := aggregate(req, visualByID, editByID)
	visualBatch.Summary = visualSummary
	editBatch.Summary = editSummary

	processed := len(editBatch.ImagesEditPlan)
	if processed != len(req.Images) {
		log.Warn("xhsnote: some images dropped",
			"processed_images", processed,
			"total_images", len(req.Images),
		)
	}

	res, err = f.contentPhase(ctx, req, visualBatch, editBatch)
	if err != nil {
		return nil, err
	}

	res.Visual = visualBatch
	res.Edit = editBatch
	res.ProcessedImages = processed
	res.TotalImages = len(req.Images)
	res.Report = BuildReport(req.IdeaText, editBatch, res.SEO)
	res.Duration = time.Since(start)

	log.Info("xhsnote: flow success",
		"image_count", processed,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// visualPhase analyses every image concurrently and summarises the batch.
func (f *Flow) visualPhase(ctx context.Context, req IdeaRequest) (map[string]VisualAnalysis, string, error) {
	tasks := make([]*orchestrator.Task, 0, len(req.Images)+1)
	ids := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		t := f.builder.VisualTask(req.IdeaText, img)
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	tasks = append(tasks, f.builder.VisualSummaryTask(ids))

	out, err := f.kickoff(ctx, "visual", &orchestrator.Crew{Name: visualCrewName, Tasks: tasks})
	if err != nil {
		return nil, "", err
	}

	visualByID := make(map[string]VisualAnalysis, len(req.Images))
	for _, img := range req.Images {
		if v, ok := harvest[VisualAnalysis](ctx, out, VisualTaskID(img.ImageID)); ok {
			v.ImageID = img.ImageID
			visualByID[img.ImageID] = v
		}
	}

	logging.FromContext(ctx).Info("xhsnote: visual phase done",
		"image_count", len(req.Images),
		"analysed", sortedKeys(visualByID),
		"duration_ms", out.Duration.Milliseconds(),
	)
	return visualByID, rawOutput(out, VisualSummaryTaskID), nil
}

// editPhase plans edits for every analysed image. Images without an analysis
// get no task; with no task at all the executor is not called.
func (f *Flow) editPhase(ctx context.Context, req IdeaRequest, visualByID map[string]VisualAnalysis) (map[string]EditPlan, string, error) {
	var tasks []*orchestrator.Task
	var ids []string
	for _, img := range req.Images {
		visual, ok := visualByID[img.ImageID]
		if !ok {
			continue
		}
		t := f.builder.EditTask(req.IdeaText, img, visual)
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	if len(tasks) == 0 {
		logging.FromContext(ctx).Warn("xhsnote: edit phase skipped, no analysed image")
		return map[string]EditPlan{}, "", nil
	}
	tasks = append(tasks, f.builder.EditSummaryTask(ids))

	out, err := f.kickoff(ctx, "edit", &orchestrator.Crew{Name: editCrewName, Tasks: tasks})
	if err != nil {
		return nil, "", err
	}

	editByID := make(map[string]EditPlan, len(ids))
	for _, img := range req.Images {
		if p, ok := harvest[EditPlan](ctx, out, EditTaskID(img.ImageID)); ok {
			p.ImageID = img.ImageID
			editByID[img.ImageID] = p
		}
	}

	logging.FromContext(ctx).Info("xhsnote: edit phase done",
		"image_count", len(ids),
		"planned", sortedKeys(editByID),
		"duration_ms", out.Duration.Milliseconds(),
	)
	return editByID, rawOutput(out, EditSummaryTaskID), nil
}

// contentPhase runs strategy → copywriting → SEO sequentially. Only the SEO
// note is required.
func (f *Flow) contentPhase(ctx context.Context, req IdeaRequest, visual VisualBatchReport, edit EditBatchReport) (*Result, error) {
	crew := &orchestrator.Crew{
		Name:    contentCrewName,
		Process: orchestrator.ProcessSequential,
		Tasks:   f.builder.ContentTasks(req.IdeaText, visual, edit),
	}
	out, err := f.kickoff(ctx, "content", crew)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if v, ok := harvest[ContentStrategyBrief](ctx, out, ContentStrategyTaskID); ok {
		res.Strategy = &v
	}
	if v, ok := harvest[CopywritingOutput](ctx, out, CopywritingTaskID); ok {
		res.Copywriting = &v
	}

	seoOut, _ := out.Output(SEOOptimizationTaskID)
	seo, ok := orchestrator.Structured[SEOOptimizedNote](seoOut)
	if !ok {
		cause := errors.New("no structured output")
		if seoOut != nil && seoOut.ParseErr != nil {
			cause = seoOut.ParseErr
		}
		err := &agents.MalformedOutputError{TaskID: SEOOptimizationTaskID, Err: cause}
		f.recordCrewError(ctx, crew, err)
		return nil, err
	}
	res.SEO = seo

	logging.FromContext(ctx).Info("xhsnote: content phase done",
		"strategy_parsed", res.Strategy != nil,
		"copywriting_parsed", res.Copywriting != nil,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return res, nil
}

type kickoffResult struct {
	out *orchestrator.CrewOutput
	err error
}

// kickoff runs crew under the phase timeout. A timed-out batch keeps no
// partial results and kickoff returns only after the executor has.
func (f *Flow) kickoff(ctx context.Context, phase string, crew *orchestrator.Crew) (*orchestrator.CrewOutput, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan kickoffResult, 1)
	go func() {
		out, err := f.executor.Kickoff(phaseCtx, crew)
		done <- kickoffResult{out: out, err: err}
	}()

	var err error
	select {
	case r := <-done:
		if r.err == nil {
			return r.out, nil
		}
		err = r.err
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &agents.PhaseTimeoutError{Phase: phase, Timeout: f.timeout}
		}
	case <-phaseCtx.Done():
		err = ctx.Err()
		if err == nil {
			err = &agents.PhaseTimeoutError{Phase: phase, Timeout: f.timeout}
		}
		// 等待仍在运行的任务退出，调用方随后会删除暂存图片
		cancel()
		<-done
	}

	f.recordCrewError(ctx, crew, err)
	return nil, err
}

// recordCrewError counts err once for every role of the crew.
func (f *Flow) recordCrewError(ctx context.Context, crew *orchestrator.Crew, err error) {
	errType := agents.ErrorType(err)
	roles := crew.Roles()
	for _, role := range roles {
		f.metrics.IncAgentError(role, errType)
	}
	logging.FromContext(ctx).Error("xhsnote: crew execution failed",
		"crew", crew.Name,
		"agent_roles", roles,
		"error_type", errType,
		"error", err,
	)
}

// aggregate joins both maps in request order. Only images present in both
// are kept.
func aggregate(req IdeaRequest, visualByID map[string]VisualAnalysis, editByID map[string]EditPlan) (VisualBatchReport, EditBatchReport) {
	visual := VisualBatchReport{UserRawIntent: req.IdeaText, ImagesVisual: []VisualAnalysis{}}
	edit := EditBatchReport{ImagesEditPlan: []EditPlan{}}
	for _, img := range req.Images {
		v, okV := visualByID[img.ImageID]
		p, okP := editByID[img.ImageID]
		if !okV || !okP {
			continue
		}
		visual.ImagesVisual = append(visual.ImagesVisual, v)
		edit.ImagesEditPlan = append(edit.ImagesEditPlan, p)
	}
	return visual, edit
}

// harvest returns the structured output of a task, logging why it is absent.
func harvest[T any](ctx context.Context, out *orchestrator.CrewOutput, taskID string) (T, bool) {
	o, ok := out.Output(taskID)
	if !ok {
		var zero T
		logging.FromContext(ctx).Warn("xhsnote: task output missing", "task_id", taskID)
		return zero, false
	}
	v, ok := orchestrator.Structured[T](o)
	if !ok {
		logging.FromContext(ctx).Warn("xhsnote: task output not parsed, dropped",
			"task_id", taskID,
			"error", o.ParseErr,
		)
	}
	return v, ok
}

func rawOutput(out *orchestrator.CrewOutput, taskID string) string {
	if o, ok := out.Output(taskID); ok && o != nil {
		return o.Raw
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
