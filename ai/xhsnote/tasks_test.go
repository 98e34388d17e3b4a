package xhsnote

import (
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/notecrew/ai/agents/registry"
	"github.com/hrygo/notecrew/ai/configloader"
)

func TestEmbeddedTemplates(t *testing.T) {
	loader := configloader.NewLoader("", Templates())

	builder, err := LoadTaskBuilder(loader)
	require.NoError(t, err)
	for _, id := range []string{
		TemplateVisualAnalysis, TemplateVisualSummary, TemplateImageEditPlan, TemplateImageEditSummary,
		TemplateContentStrategy, TemplateCopywriting, TemplateSEOOptimization,
	} {
		tpl, ok := builder.templates[id]
		require.True(t, ok, id)
		assert.NotEmpty(t, tpl.Description, id)
		assert.NotEmpty(t, tpl.ExpectedOutput, id)
	}

	personas, err := registry.LoadPersonas(loader, PersonasFile)
	require.NoError(t, err)
	for _, role := range registry.Roles() {
		p, ok := personas[role]
		require.True(t, ok, role)
		assert.NotEmpty(t, p.Goal, role)
		assert.NotEmpty(t, p.Backstory, role)
	}
}

func TestVisualTask(t *testing.T) {
	b := NewTaskBuilder(map[string]TaskTemplate{
		TemplateVisualAnalysis: {
			Description:    "意图: {idea_text}\n图片: {images_info}\n保留: {unknown} {\"k\": 1}",
			ExpectedOutput: "JSON for {idea_text}",
		},
	})
	img := ImageRef{ImageID: "img_1", FileName: "咖啡<1>.jpg", LocalPath: "/data/run/img_1.jpg"}

	task := b.VisualTask("周末咖啡", img)
	assert.Equal(t, "visual_img_1", task.ID)
	assert.Equal(t, TemplateVisualAnalysis, task.Name)
	assert.Equal(t, registry.RoleVisualAnalyst, task.AgentRole)
	assert.Equal(t, "img_1", task.ImageID)
	assert.True(t, task.Async)
	require.NotNil(t, task.Decode)
	assert.Equal(t, "JSON for 周末咖啡", task.ExpectedOutput)
	assert.Contains(t, task.Description, "意图: 周末咖啡")
	assert.Contains(t, task.Description, `保留: {unknown} {"k": 1}`)
	assert.Contains(t, task.Description, `"file_name": "咖啡<1>.jpg"`, "no HTML escaping")

	// 只注入当前这张图片
	start := len("意图: 周末咖啡\n图片: ")
	end := len(task.Description) - len("\n保留: {unknown} {\"k\": 1}")
	var refs []ImageRef
	require.NoError(t, json.Unmarshal([]byte(task.Description[start:end]), &refs))
	assert.Equal(t, []ImageRef{img}, refs)
}

func TestEditTaskAndSummaries(t *testing.T) {
	b := NewTaskBuilder(map[string]TaskTemplate{
		TemplateImageEditPlan:    {Description: "{visual_analysis}"},
		TemplateImageEditSummary: {Description: "总结"},
		TemplateVisualSummary:    {Description: "总结"},
	})
	visual := VisualAnalysis{ImageID: "img_0", SubjectDescription: "拿铁"}
	edit := b.EditTask("咖啡", ImageRef{ImageID: "img_0"}, visual)
	assert.Equal(t, "edit_img_0", edit.ID)
	assert.Equal(t, registry.RoleImageEditor, edit.AgentRole)
	assert.Contains(t, edit.Description, `"subject_description": "拿铁"`)

	deps := []string{"edit_img_0", "edit_img_1"}
	summary := b.EditSummaryTask(deps)
	assert.Equal(t, EditSummaryTaskID, summary.ID)
	assert.Equal(t, deps, summary.Dependencies)
	assert.Nil(t, summary.Decode)
	deps[0] = "mutated"
	assert.Equal(t, "edit_img_0", summary.Dependencies[0])

	vs := b.VisualSummaryTask([]string{"visual_img_0"})
	assert.Equal(t, registry.RoleVisualAnalyst, vs.AgentRole)
	assert.Equal(t, []string{"visual_img_0"}, vs.Dependencies)
}

func TestContentTasks(t *testing.T) {
	b := NewTaskBuilder(map[string]TaskTemplate{
		TemplateContentStrategy: {Description: "{idea_text} {visual_report} {edit_report}"},
		TemplateCopywriting:     {Description: "{idea_text}"},
		TemplateSEOOptimization: {Description: "{idea_text}"},
	})
	tasks := b.ContentTasks("咖啡", VisualBatchReport{UserRawIntent: "咖啡"}, EditBatchReport{Summary: "统一暖色"})
	require.Len(t, tasks, 3)

	assert.Equal(t, ContentStrategyTaskID, tasks[0].ID)
	assert.Empty(t, tasks[0].Dependencies)
	assert.Contains(t, tasks[0].Description, `"user_raw_intent": "咖啡"`)
	assert.Contains(t, tasks[0].Description, `"summary": "统一暖色"`)

	assert.Equal(t, CopywritingTaskID, tasks[1].ID)
	assert.Equal(t, []string{ContentStrategyTaskID}, tasks[1].Dependencies)
	assert.Equal(t, registry.RoleContentWriter, tasks[1].AgentRole)

	assert.Equal(t, SEOOptimizationTaskID, tasks[2].ID)
	assert.Equal(t, []string{ContentStrategyTaskID, CopywritingTaskID}, tasks[2].Dependencies)
	assert.Equal(t, registry.RoleSEOExpert, tasks[2].AgentRole)
	for _, task := range tasks {
		assert.NotNil(t, task.Decode, task.ID)
		assert.False(t, task.Async, task.ID)
	}
}

func TestMissingTemplateYieldsEmptyTask(t *testing.T) {
	b := NewTaskBuilder(nil)
	task := b.VisualTask("咖啡", ImageRef{ImageID: "img_0"})
	assert.Equal(t, "visual_img_0", task.ID)
	assert.Empty(t, task.Description)
	assert.Empty(t, task.ExpectedOutput)
}

func TestLoadTaskBuilder_FallsBackToEmbedded(t *testing.T) {
	dir := t.TempDir()
	fsys := fstest.MapFS{TasksFile: {Data: []byte("task_copywriting:\n  description: embedded\n")}}

	b, err := LoadTaskBuilder(configloader.NewLoader(dir, fsys))
	require.NoError(t, err)
	assert.Equal(t, "embedded", b.templates[TemplateCopywriting].Description)

	_, err = LoadTaskBuilder(configloader.NewLoader("", fstest.MapFS{TasksFile: {Data: []byte("::not yaml")}}))
	assert.Error(t, err)
}
