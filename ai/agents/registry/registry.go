// Package registry builds the agents of the note crew. Every call to New
// returns a fresh agent, so no tool state leaks between tasks.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/ai/agents/tools"
	"github.com/hrygo/notecrew/ai/configloader"
	"github.com/hrygo/notecrew/ai/core/llm"
)

// Agent roles.
const (
	RoleVisualAnalyst    = "xhs_visual_analyst"
	RoleImageEditor      = "xhs_image_editor"
	RoleGrowthStrategist = "xhs_growth_strategist"
	RoleContentWriter    = "xhs_content_writer"
	RoleSEOExpert        = "xhs_seo_expert"
)

const defaultAgentMaxIter = 15

// Persona is the prompt-facing description of an agent, loaded from YAML.
type Persona struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
	// MaxIter bounds the agent's ReAct loop.
	MaxIter int `yaml:"max_iter"`
}

// ChatModel is the LLM binding of an agent.
type ChatModel interface {
	Call(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

// ModelFactory returns the model for a role.
type ModelFactory func(role string, multimodal bool) (ChatModel, error)

// SharedModel binds every role to the same model. The LLM client picks the
// vision model on its own when a request carries images.
func SharedModel(m ChatModel) ModelFactory {
	return func(string, bool) (ChatModel, error) { return m, nil }
}

// Agent is a ready-to-run agent instance.
type Agent struct {
	Role       string
	Persona    Persona
	Model      ChatModel
	Tools      *tools.Set
	Multimodal bool
}

// MaxIter returns the ReAct iteration budget.
func (a *Agent) MaxIter() int {
	if a.Persona.MaxIter > 0 {
		return a.Persona.MaxIter
	}
	return defaultAgentMaxIter
}

type roleSpec struct {
	multimodal bool
	tools      func() []tools.Tool
}

func imageTools() []tools.Tool {
	return []tools.Tool{tools.NewImageLoader()}
}

func draftTools() []tools.Tool {
	return []tools.Tool{tools.NewIntermediateProduct()}
}

var roleSpecs = map[string]roleSpec{
	RoleVisualAnalyst:    {multimodal: true, tools: imageTools},
	RoleImageEditor:      {multimodal: true, tools: imageTools},
	RoleGrowthStrategist: {tools: draftTools},
	RoleContentWriter:    {tools: draftTools},
	RoleSEOExpert:        {tools: draftTools},
}

// Roles returns every known role.
func Roles() []string {
	return []string{RoleVisualAnalyst, RoleImageEditor, RoleGrowthStrategist, RoleContentWriter, RoleSEOExpert}
}

// Registry creates agents by role.
type Registry struct {
	personas map[string]Persona
	models   ModelFactory
}

// NewRegistry creates a registry. Roles without a persona fall back to their role name.
func NewRegistry(personas map[string]Persona, models ModelFactory) *Registry {
	for _, role := range Roles() {
		if _, ok := personas[role]; !ok {
			slog.Warn("registry: persona missing, using role name", "agent_role", role)
		}
	}
	return &Registry{personas: personas, models: models}
}

// New returns a fresh agent for role.
func (r *Registry) New(role string) (*Agent, error) {
	spec, ok := roleSpecs[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agents.ErrUnknownRole, role)
	}

	persona, ok := r.personas[role]
	if !ok {
		persona = Persona{Role: role}
	}

	model, err := r.models(role, spec.multimodal)
	if err != nil {
		return nil, fmt.Errorf("build model for %s: %w", role, err)
	}

	return &Agent{
		Role:       role,
		Persona:    persona,
		Model:      model,
		Tools:      tools.NewSet(spec.tools()...),
		Multimodal: spec.multimodal,
	}, nil
}

// LoadPersonas reads the persona file (a map keyed by role).
func LoadPersonas(loader *configloader.Loader, path string) (map[string]Persona, error) {
	personas := make(map[string]Persona)
	if err := loader.Load(path, &personas); err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	return personas, nil
}
