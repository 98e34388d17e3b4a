package xhsnote

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hrygo/notecrew/ai/agents/orchestrator"
	"github.com/hrygo/notecrew/ai/agents/registry"
	"github.com/hrygo/notecrew/ai/configloader"
)

// Template ids in tasks.yaml.
const (
	TemplateVisualAnalysis   = "task_visual_analysis"
	TemplateVisualSummary    = "task_visual_analysis_summary"
	TemplateImageEditPlan    = "task_image_edit_plan"
	TemplateImageEditSummary = "task_image_edit_plan_summary"
	TemplateContentStrategy  = "task_content_strategy"
	TemplateCopywriting      = "task_copywriting"
	TemplateSEOOptimization  = "task_seo_optimization"
)

// Task ids. Per-image tasks are "visual_<image_id>" and "edit_<image_id>".
const (
	VisualSummaryTaskID   = "visual_summary"
	EditSummaryTaskID     = "edit_summary"
	ContentStrategyTaskID = "content_strategy"
	CopywritingTaskID     = "copywriting"
	SEOOptimizationTaskID = "seo_optimization"

	visualTaskPrefix = "visual_"
	editTaskPrefix   = "edit_"
)

// TaskTemplate is one entry of tasks.yaml.
type TaskTemplate struct {
	Agent          string `yaml:"agent"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
}

// TaskBuilder turns templates plus runtime data into crew tasks. It holds no
// per-request state and is safe for concurrent use.
type TaskBuilder struct {
	templates map[string]TaskTemplate
}

// NewTaskBuilder creates a builder over the given templates.
func NewTaskBuilder(templates map[string]TaskTemplate) *TaskBuilder {
	return &TaskBuilder{templates: templates}
}

// LoadTaskBuilder reads tasks.yaml through loader.
func LoadTaskBuilder(loader *configloader.Loader) (*TaskBuilder, error) {
	v, err := loader.LoadCached(TasksFile, func() any { return &map[string]TaskTemplate{} })
	if err != nil {
		return nil, err
	}
	return NewTaskBuilder(*v.(*map[string]TaskTemplate)), nil
}

// VisualTaskID returns the id of the visual analysis task of an image.
func VisualTaskID(imageID string) string { return visualTaskPrefix + imageID }

// EditTaskID returns the id of the edit plan task of an image.
func EditTaskID(imageID string) string { return editTaskPrefix + imageID }

// VisualTask builds the analysis task of one image. Only that image's JSON is
// handed to the agent.
func (b *TaskBuilder) VisualTask(idea string, img ImageRef) *orchestrator.Task {
	t := b.build(TemplateVisualAnalysis, VisualTaskID(img.ImageID), registry.RoleVisualAnalyst, map[string]string{
		"idea_text":   idea,
		"images_info": toJSON([]ImageRef{img}),
	})
	t.ImageID = img.ImageID
	t.Async = true
	t.Decode = orchestrator.JSONOutput[VisualAnalysis]()
	return t
}

// VisualSummaryTask builds the summary over the given per-image tasks.
func (b *TaskBuilder) VisualSummaryTask(deps []string) *orchestrator.Task {
	t := b.build(TemplateVisualSummary, VisualSummaryTaskID, registry.RoleVisualAnalyst, nil)
	t.Dependencies = append([]string(nil), deps...)
	return t
}

// EditTask builds the edit plan task of one analysed image.
func (b *TaskBuilder) EditTask(idea string, img ImageRef, visual VisualAnalysis) *orchestrator.Task {
	t := b.build(TemplateImageEditPlan, EditTaskID(img.ImageID), registry.RoleImageEditor, map[string]string{
		"idea_text":       idea,
		"images_info":     toJSON([]ImageRef{img}),
		"visual_analysis": toJSON(visual),
	})
	t.ImageID = img.ImageID
	t.Async = true
	t.Decode = orchestrator.JSONOutput[EditPlan]()
	return t
}

// EditSummaryTask builds the summary over the given per-image edit tasks.
func (b *TaskBuilder) EditSummaryTask(deps []string) *orchestrator.Task {
	t := b.build(TemplateImageEditSummary, EditSummaryTaskID, registry.RoleImageEditor, nil)
	t.Dependencies = append([]string(nil), deps...)
	return t
}

// ContentTasks builds the strategy → copywriting → SEO chain.
func (b *TaskBuilder) ContentTasks(idea string, visual VisualBatchReport, edit EditBatchReport) []*orchestrator.Task {
	vars := map[string]string{
		"idea_text":     idea,
		"visual_report": toJSON(visual),
		"edit_report":   toJSON(edit),
	}

	strategy := b.build(TemplateContentStrategy, ContentStrategyTaskID, registry.RoleGrowthStrategist, vars)
	strategy.Decode = orchestrator.JSONOutput[ContentStrategyBrief]()

	copywriting := b.build(TemplateCopywriting, CopywritingTaskID, registry.RoleContentWriter, vars)
	copywriting.Dependencies = []string{ContentStrategyTaskID}
	copywriting.Decode = orchestrator.JSONOutput[CopywritingOutput]()

	seo := b.build(TemplateSEOOptimization, SEOOptimizationTaskID, registry.RoleSEOExpert, vars)
	seo.Dependencies = []string{ContentStrategyTaskID, CopywritingTaskID}
	seo.Decode = orchestrator.JSONOutput[SEOOptimizedNote]()

	return []*orchestrator.Task{strategy, copywriting, seo}
}

// build renders a template. A missing template yields a task with empty text.
func (b *TaskBuilder) build(templateID, taskID, role string, vars map[string]string) *orchestrator.Task {
	tpl, ok := b.templates[templateID]
	if !ok {
		slog.Error("xhsnote: task template not found", "template", templateID, "task_id", taskID)
	}
	if tpl.Agent != "" && tpl.Agent != role {
		slog.Warn("xhsnote: template agent ignored", "template", templateID, "agent", tpl.Agent, "agent_role", role)
	}

	return &orchestrator.Task{
		ID:             taskID,
		Name:           templateID,
		Description:    substitute(tpl.Description, vars),
		ExpectedOutput: substitute(tpl.ExpectedOutput, vars),
		AgentRole:      role,
	}
}

// substitute replaces every {name} with its value. Unknown placeholders and
// other braces are left untouched.
func substitute(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// toJSON renders v as indented JSON without HTML escaping, so Chinese text
// and symbols reach the prompt as written.
func toJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("xhsnote: encode prompt variable", "error", err)
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
