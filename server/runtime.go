package server

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/ai/agents/orchestrator"
	"github.com/hrygo/notecrew/ai/agents/registry"
	"github.com/hrygo/notecrew/ai/agents/runner"
	"github.com/hrygo/notecrew/ai/configloader"
	"github.com/hrygo/notecrew/ai/core/llm"
	"github.com/hrygo/notecrew/ai/metrics"
	"github.com/hrygo/notecrew/ai/xhsnote"
	"github.com/hrygo/notecrew/internal/profile"
	"github.com/hrygo/notecrew/server/service/note"
	"github.com/hrygo/notecrew/server/service/upload"
)

// Runtime is the note generation stack shared by the HTTP server and the CLI.
type Runtime struct {
	Loader  *configloader.Loader
	Metrics *metrics.PrometheusExporter
	Flow    *xhsnote.Flow
	Uploads *upload.Service
	Notes   *note.Service
}

// NewRuntime builds the LLM client, the agent registry, the crew executor
// and the flow from profile. runs may be nil to skip run persistence.
func NewRuntime(profile *profile.Profile, runs note.RunRecorder, exporter *metrics.PrometheusExporter) (*Runtime, error) {
	if exporter == nil {
		exporter = metrics.NewPrometheusExporter(metrics.DefaultConfig())
	}

	client, err := llm.NewClient(profile.LLMConfig(), llm.WithObserver(exporter))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM client")
	}

	loader := configloader.NewLoader(profile.TemplateDir, xhsnote.Templates())
	builder, err := xhsnote.LoadTaskBuilder(loader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load task templates")
	}
	personas, err := registry.LoadPersonas(loader, xhsnote.PersonasFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load agent personas")
	}

	agents := registry.NewRegistry(personas, registry.SharedModel(client))
	taskRunner := runner.New(agents, runner.WithEventCallback(logAgentEvent))
	executor := orchestrator.NewExecutor(
		taskRunner,
		&orchestrator.ExecutorConfig{MaxParallelTasks: profile.CrewMaxParallel},
		orchestrator.WithQueueObserver(exporter),
	)
	flow := xhsnote.NewFlow(executor, builder,
		xhsnote.WithMetrics(exporter),
		xhsnote.WithCrewTimeout(profile.CrewTimeoutDuration()),
	)

	uploads := upload.NewService(upload.Config{
		DataDir:   profile.Data,
		MaxImages: profile.MaxImages,
		MaxSize:   profile.ImageMaxSize,
		Quality:   profile.ImageQuality,
		Parallel:  profile.CrewMaxParallel,
	})

	slog.Info("note runtime ready",
		"model", client.Model(),
		"vision_model", client.VisionModel(),
		"endpoint", client.Endpoint(),
		"template_dir", profile.TemplateDir,
	)

	return &Runtime{
		Loader:  loader,
		Metrics: exporter,
		Flow:    flow,
		Uploads: uploads,
		Notes:   note.NewService(flow, uploads, runs),
	}, nil
}

// CheckTemplates reports whether the task templates and personas are readable.
func (r *Runtime) CheckTemplates(context.Context) error {
	for _, name := range []string{xhsnote.TasksFile, xhsnote.PersonasFile} {
		if _, err := r.Loader.ReadFile(name); err != nil {
			return errors.Wrapf(err, "failed to read %s", name)
		}
	}
	return nil
}

func logAgentEvent(ev *runner.Event) error {
	if ev.Meta == nil {
		slog.Debug("agent event", "type", ev.Type)
		return nil
	}
	slog.Debug("agent event",
		"type", ev.Type,
		"task_id", ev.Meta.TaskID,
		"agent_role", ev.Meta.AgentRole,
		"iteration", ev.Meta.Iteration,
		"tool", ev.Meta.ToolName,
		"duration_ms", ev.Meta.DurationMs,
	)
	return nil
}
