package services

import (
	"context"
	"testing"

	"agenticdebugger/internal/models"
)

func TestBatch_ClearThenSetBreakpoint(t *testing.T) {
	f := newExecutorFixture(t)
	batch := NewBatchExecutor(f.executor)

	resp := batch.Execute(context.Background(), models.BatchRequest{
		Commands: []models.CommandRequest{
			{Action: "clearBreakpoints"},
			{Action: "setBreakpoint", File: "/x.cs", Line: 5},
		},
		StopOnError: true,
	})

	if !resp.OK || resp.SuccessCount != 2 || resp.FailureCount != 0 {
		t.Fatalf("Expected 2 successes, got %+v", resp)
	}
	if len(resp.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(resp.Results))
	}
}

func TestBatch_StopOnErrorHaltsAtFailure(t *testing.T) {
	// stepOver fails outside break mode; position k is 0-based
	for k := 0; k < 4; k++ {
		f := newExecutorFixture(t)
		batch := NewBatchExecutor(f.executor)

		cmds := make([]models.CommandRequest, 5)
		for i := range cmds {
			cmds[i] = models.CommandRequest{Action: "clean"}
		}
		cmds[k] = models.CommandRequest{Action: "stepOver"}

		resp := batch.Execute(context.Background(), models.BatchRequest{Commands: cmds, StopOnError: true})
		if len(resp.Results) != k+1 {
			t.Errorf("k=%d: expected %d results, got %d", k, k+1, len(resp.Results))
		}
		if resp.OK {
			t.Errorf("k=%d: expected overall failure", k)
		}
		if resp.SuccessCount != k || resp.FailureCount != 1 {
			t.Errorf("k=%d: expected %d/1 counts, got %d/%d", k, k, resp.SuccessCount, resp.FailureCount)
		}
		if got := f.sim.Calls("Clean"); got != k {
			t.Errorf("k=%d: expected %d engine cleans, got %d", k, k, got)
		}
	}
}

func TestBatch_WithoutStopOnErrorRunsEverything(t *testing.T) {
	f := newExecutorFixture(t)
	batch := NewBatchExecutor(f.executor)

	resp := batch.Execute(context.Background(), models.BatchRequest{
		Commands: []models.CommandRequest{
			{Action: "stepInto"},
			{Action: "build"},
			{Action: "setBreakpoint", File: "/x.cs"},
			{Action: "eval"},
			{Action: "addWatch", Expression: "count"},
		},
	})

	if len(resp.Results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(resp.Results))
	}
	if resp.SuccessCount != 2 || resp.FailureCount != 3 {
		t.Errorf("Expected 2 successes and 3 failures, got %d/%d", resp.SuccessCount, resp.FailureCount)
	}
	if resp.OK {
		t.Error("Expected overall failure")
	}
	if f.sim.Calls("SetBreakpoint") != 0 || f.sim.Calls("Evaluate") != 0 {
		t.Error("Invalid entries must not reach the engine")
	}
	if got := f.sim.Watches(); len(got) != 1 || got[0] != "count" {
		t.Errorf("Expected the watch after failures to still run, got %v", got)
	}
}

func TestBatch_Empty(t *testing.T) {
	f := newExecutorFixture(t)
	resp := NewBatchExecutor(f.executor).Execute(context.Background(), models.BatchRequest{})
	if !resp.OK || len(resp.Results) != 0 {
		t.Errorf("Expected an empty successful batch, got %+v", resp)
	}
}
