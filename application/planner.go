package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
)

const plannerSystemPrompt = `You are a planning assistant. Respond with a JSON array of steps toward the goal. Each step is an object with "id", "instruction", and optionally "tools" (an array of tool names from the available set) and "input" (a JSON value passed to the tools). Respond with the JSON array only.`

// plannedStep is the wire shape the planner expects back from the model.
type plannedStep struct {
	ID          string          `json:"id"`
	Instruction string          `json:"instruction"`
	Tools       []string        `json:"tools,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
}

// ModelPlanner asks the model provider to propose the next steps toward
// the plan's goal. It only runs when the plan has no pending steps, and
// it only appends.
type ModelPlanner struct {
	provider model.Provider
	registry tool.Registry
	maxSteps int
}

// NewModelPlanner creates a planner over the given provider. maxSteps
// bounds how many steps one planning call may append; zero means 5.
func NewModelPlanner(provider model.Provider, registry tool.Registry, maxSteps int) (*ModelPlanner, error) {
	if provider == nil {
		return nil, fmt.Errorf("model planner: provider is required")
	}
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &ModelPlanner{provider: provider, registry: registry, maxSteps: maxSteps}, nil
}

// Plan extends the plan with model-proposed steps. A plan that still has
// pending work is left alone.
func (p *ModelPlanner) Plan(ctx context.Context, pl *plan.Plan) error {
	if pl.Pending() > 0 {
		return nil
	}

	resp, err := p.provider.Generate(ctx, model.Request{
		System: plannerSystemPrompt,
		Messages: []model.PromptMessage{
			{Role: model.RoleUser, Content: p.prompt(pl)},
		},
	})
	if err != nil {
		return fmt.Errorf("planning call: %w", err)
	}

	steps, err := p.parse(resp.Content)
	if err != nil {
		return err
	}

	existing := make(map[string]struct{}, pl.Len())
	for _, s := range pl.Steps {
		existing[s.ID] = struct{}{}
	}
	appended := 0
	for _, ps := range steps {
		if appended >= p.maxSteps {
			break
		}
		if ps.Instruction == "" {
			continue
		}
		id := ps.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", pl.Len()+appended+1)
		}
		if _, dup := existing[id]; dup {
			continue
		}
		existing[id] = struct{}{}

		step := plan.NewStep(id, ps.Instruction).WithInput(ps.Input)
		if len(ps.Tools) > 0 {
			step.WithTools(ps.Tools...)
		}
		pl.Append(step)
		appended++
	}
	return nil
}

func (p *ModelPlanner) prompt(pl *plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", pl.Goal)

	if p.registry != nil {
		if names := p.registry.Names(); len(names) > 0 {
			fmt.Fprintf(&b, "Available tools: %s\n", strings.Join(names, ", "))
		}
	}

	done := 0
	for _, s := range pl.Steps {
		if s.Status == plan.StatusSucceeded {
			done++
		}
	}
	if done > 0 {
		fmt.Fprintf(&b, "Completed steps: %d of %d.\n", done, pl.Len())
		for _, s := range pl.Steps {
			if s.Status == plan.StatusSucceeded && len(s.Output) > 0 {
				fmt.Fprintf(&b, "- %s: %s\n", s.Instruction, truncate(string(s.Output), 200))
			}
		}
	}
	b.WriteString("Propose the remaining steps, or an empty array if the goal is met.")
	return b.String()
}

// parse extracts the step array, tolerating surrounding prose and code
// fences in the model output.
func (p *ModelPlanner) parse(content string) ([]plannedStep, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("planning response contains no step array")
	}
	var steps []plannedStep
	if err := json.Unmarshal([]byte(content[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("parse planning response: %w", err)
	}
	return steps, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
