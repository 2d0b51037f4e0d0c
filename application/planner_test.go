package application

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/modelstub"
)

func scriptedResponse(content string) modelstub.ScriptEntry {
	return modelstub.ScriptEntry{Response: &model.Response{Content: content}}
}

func TestModelPlannerAppendsSteps(t *testing.T) {
	provider := modelstub.NewScripted(scriptedResponse(`[
		{"id": "s1", "instruction": "look up the forecast", "tools": ["http_fetch"], "input": {"url": "https://example.com"}},
		{"id": "s2", "instruction": "summarize it"}
	]`))
	planner, err := NewModelPlanner(provider, nil, 0)
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	pl := plan.New("report the weather")
	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.Len() != 2 {
		t.Fatalf("plan length = %d, want 2", pl.Len())
	}
	if pl.Steps[0].ID != "s1" || pl.Steps[1].ID != "s2" {
		t.Errorf("step IDs = %s, %s", pl.Steps[0].ID, pl.Steps[1].ID)
	}
	if len(pl.Steps[0].Tools) != 1 || pl.Steps[0].Tools[0] != "http_fetch" {
		t.Errorf("step tools = %v", pl.Steps[0].Tools)
	}
}

func TestModelPlannerToleratesProseAndFences(t *testing.T) {
	provider := modelstub.NewScripted(scriptedResponse(
		"Here is the plan:\n```json\n[{\"id\": \"s1\", \"instruction\": \"do the thing\"}]\n```\nGood luck!"))
	planner, _ := NewModelPlanner(provider, nil, 0)

	pl := plan.New("goal")
	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.Len() != 1 || pl.Steps[0].Instruction != "do the thing" {
		t.Fatalf("plan = %+v", pl.Steps)
	}
}

func TestModelPlannerSkipsWhenWorkPending(t *testing.T) {
	provider := modelstub.NewScripted()
	planner, _ := NewModelPlanner(provider, nil, 0)

	pl := plan.New("goal")
	pl.Append(plan.NewStep("s1", "still to do"))

	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if provider.Calls() != 0 {
		t.Errorf("provider called %d times with pending work", provider.Calls())
	}
}

func TestModelPlannerDropsDuplicateIDs(t *testing.T) {
	provider := modelstub.NewScripted(scriptedResponse(
		`[{"id": "s1", "instruction": "again"}, {"id": "s2", "instruction": "new"}]`))
	planner, _ := NewModelPlanner(provider, nil, 0)

	pl := plan.New("goal")
	done := plan.NewStep("s1", "already ran")
	pl.Append(done)
	done.Begin()
	done.Succeed(nil)

	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.Len() != 2 {
		t.Fatalf("plan length = %d, want 2", pl.Len())
	}
	if pl.Steps[0].Instruction != "already ran" {
		t.Error("existing step was replaced")
	}
	if pl.Steps[1].ID != "s2" {
		t.Errorf("appended step = %s, want s2", pl.Steps[1].ID)
	}
}

func TestModelPlannerBoundsAppendedSteps(t *testing.T) {
	provider := modelstub.NewScripted(scriptedResponse(`[
		{"id": "a", "instruction": "one"},
		{"id": "b", "instruction": "two"},
		{"id": "c", "instruction": "three"}
	]`))
	planner, _ := NewModelPlanner(provider, nil, 2)

	pl := plan.New("goal")
	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.Len() != 2 {
		t.Errorf("plan length = %d, want the configured bound of 2", pl.Len())
	}
}

func TestModelPlannerAssignsMissingIDs(t *testing.T) {
	provider := modelstub.NewScripted(scriptedResponse(
		`[{"instruction": "unnamed work"}]`))
	planner, _ := NewModelPlanner(provider, nil, 0)

	pl := plan.New("goal")
	if err := planner.Plan(context.Background(), pl); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if pl.Len() != 1 || pl.Steps[0].ID != "step-1" {
		t.Fatalf("plan = %+v", pl.Steps)
	}
}

func TestModelPlannerErrors(t *testing.T) {
	t.Run("provider required", func(t *testing.T) {
		if _, err := NewModelPlanner(nil, nil, 0); err == nil {
			t.Fatal("nil provider accepted")
		}
	})

	t.Run("provider failure propagates", func(t *testing.T) {
		provider := modelstub.NewScripted(modelstub.ScriptEntry{Err: errors.New("backend offline")})
		planner, _ := NewModelPlanner(provider, nil, 0)
		if err := planner.Plan(context.Background(), plan.New("goal")); err == nil {
			t.Fatal("provider failure not propagated")
		}
	})

	t.Run("no array in response", func(t *testing.T) {
		provider := modelstub.NewScripted(scriptedResponse("I cannot help with that."))
		planner, _ := NewModelPlanner(provider, nil, 0)
		if err := planner.Plan(context.Background(), plan.New("goal")); err == nil {
			t.Fatal("missing step array not reported")
		}
	})
}
