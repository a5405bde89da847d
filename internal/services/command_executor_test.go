package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/engine"
	"agenticdebugger/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

type executorFixture struct {
	sim      *engine.Simulator
	thread   *automation.Thread
	cache    *SnapshotCache
	metrics  *Metrics
	executor *CommandExecutor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	sim := engine.NewSimulator("Shop.sln", "Shop.Api", "Shop.Tests")
	thread := automation.NewThread("executor-test", 32)
	thread.Start()
	t.Cleanup(func() { thread.Stop(time.Second) })

	cache := NewSnapshotCache()
	metrics := NewMetrics(prometheus.NewRegistry(), nil, nil)
	return &executorFixture{
		sim:      sim,
		thread:   thread,
		cache:    cache,
		metrics:  metrics,
		executor: NewCommandExecutor(sim, thread, cache, metrics, 2*time.Second),
	}
}

func mustCommand(t *testing.T, req models.CommandRequest) models.Command {
	t.Helper()
	cmd, err := models.NewCommand(req)
	if err != nil {
		t.Fatalf("NewCommand(%+v) failed: %v", req, err)
	}
	return cmd
}

func TestExecutor_SetBreakpoint(t *testing.T) {
	f := newExecutorFixture(t)

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "bp", File: "/x.cs", Line: 5}))
	if !resp.OK {
		t.Fatalf("Expected success, got %q", resp.Message)
	}
	if resp.Snapshot == nil || resp.Snapshot.Mode != models.ModeDesign {
		t.Errorf("Expected a Design snapshot in the response, got %+v", resp.Snapshot)
	}
	if bps := f.sim.Breakpoints(); len(bps) != 1 || bps[0].Line != 5 {
		t.Errorf("Expected breakpoint at line 5, got %+v", bps)
	}
}

func TestExecutor_GoStartsThenResumes(t *testing.T) {
	f := newExecutorFixture(t)
	goCmd := mustCommand(t, models.CommandRequest{Action: "continue"})

	resp := f.executor.Execute(context.Background(), goCmd)
	if !resp.OK || f.sim.Calls("Run") != 1 {
		t.Fatalf("Expected go to start a run, got %+v", resp)
	}

	f.sim.HitBreakpoint("Main.cs", 3)
	resp = f.executor.Execute(context.Background(), goCmd)
	if !resp.OK || f.sim.Calls("Continue") != 1 {
		t.Fatalf("Expected go to resume, got %+v", resp)
	}
}

func TestExecutor_StartPinsProject(t *testing.T) {
	f := newExecutorFixture(t)

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "start", ProjectName: "Shop.Tests"}))
	if !resp.OK {
		t.Fatalf("Expected start to succeed, got %q", resp.Message)
	}
	projects, _ := f.sim.Projects()
	if !projects[1].IsStartup {
		t.Errorf("Expected Shop.Tests to be the startup project")
	}
}

func TestExecutor_EvalBecomesStickyNote(t *testing.T) {
	f := newExecutorFixture(t)
	_ = f.sim.Run()
	f.sim.HitBreakpoint("Order.cs", 12)
	f.sim.SetEvalResult("total", "42.50")

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "eval", Expression: "total"}))
	if !resp.OK {
		t.Fatalf("Expected eval to succeed, got %q", resp.Message)
	}
	if resp.Snapshot.Notes != "total = 42.50" {
		t.Errorf("Expected note in response snapshot, got %q", resp.Snapshot.Notes)
	}
	if f.cache.Get().Notes != "total = 42.50" {
		t.Errorf("Expected note in cache, got %q", f.cache.Get().Notes)
	}
}

func TestExecutor_EngineErrorBecomesFailedResponse(t *testing.T) {
	f := newExecutorFixture(t)

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "stepInto"}))
	if resp.OK {
		t.Fatal("Expected stepInto outside break mode to fail")
	}
	if resp.Snapshot == nil {
		t.Error("Expected the latest snapshot on failure")
	}
	if !strings.Contains(resp.Message, "break mode") {
		t.Errorf("Expected engine message, got %q", resp.Message)
	}

	snap := f.metrics.Snapshot()
	if snap.CommandsByName["stepInto"] != 1 || snap.CommandFailuresByName["stepInto"] != 1 {
		t.Errorf("Expected failed command to be counted, got %+v", snap)
	}
}

func TestExecutor_RebuildCleansThenBuilds(t *testing.T) {
	f := newExecutorFixture(t)
	built := make(chan struct{}, 1)
	f.executor.OnBuild = func() { built <- struct{}{} }

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "rebuild"}))
	if !resp.OK {
		t.Fatalf("Expected rebuild to succeed, got %q", resp.Message)
	}
	if f.sim.Calls("Clean") != 1 || f.sim.Calls("Build") != 1 {
		t.Errorf("Expected one clean and one build, got %d/%d", f.sim.Calls("Clean"), f.sim.Calls("Build"))
	}

	select {
	case <-built:
	case <-time.After(time.Second):
		t.Error("Expected the build hook to run")
	}
}

func TestExecutor_RebuildStopsWhenCleanFails(t *testing.T) {
	f := newExecutorFixture(t)
	f.sim.FailOn("Clean", errors.New("files locked"))

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "rebuild"}))
	if resp.OK {
		t.Fatal("Expected rebuild to fail")
	}
	if f.sim.Calls("Build") != 0 {
		t.Error("Expected build to be skipped after a failed clean")
	}
}

func TestExecutor_BusyThreadTimesOut(t *testing.T) {
	f := newExecutorFixture(t)
	f.executor.timeout = 50 * time.Millisecond

	release := make(chan struct{})
	running := make(chan struct{})
	go f.thread.Do(context.Background(), func(ctx context.Context) error {
		close(running)
		<-release
		return nil
	})
	defer close(release)
	<-running

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "build"}))
	if resp.OK {
		t.Fatal("Expected a timeout while the automation thread is busy")
	}
	if !strings.Contains(resp.Message, "timed out") {
		t.Errorf("Expected timeout message, got %q", resp.Message)
	}
}

func TestExecutor_PanicDoesNotKillThread(t *testing.T) {
	f := newExecutorFixture(t)
	panicky := &panickingHost{Simulator: f.sim}
	f.executor.host = panicky

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "clean"}))
	if resp.OK || !strings.Contains(resp.Message, "crashed") {
		t.Fatalf("Expected crash to be reported, got %+v", resp)
	}

	resp = f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "build"}))
	if !resp.OK {
		t.Errorf("Expected the thread to keep serving after a panic, got %q", resp.Message)
	}
}

type panickingHost struct {
	*engine.Simulator
}

func (h *panickingHost) Clean() error {
	panic("COM object disconnected")
}

func TestExecutor_ConfigureAndReads(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	msg, err := f.executor.Configure(ctx, models.ConfigureRequest{StartupProject: "Shop.Tests", ActiveConfiguration: "Release"})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if !strings.Contains(msg, "Release") {
		t.Errorf("Unexpected configure message %q", msg)
	}

	if _, err := f.executor.Configure(ctx, models.ConfigureRequest{}); !errors.Is(err, models.ErrInvalidCommand) {
		t.Errorf("Expected ErrInvalidCommand for an empty configure, got %v", err)
	}

	panes, err := f.executor.OutputPanes(ctx)
	if err != nil || len(panes) == 0 {
		t.Fatalf("OutputPanes failed: %v", err)
	}
	if _, err := f.executor.Output(ctx, "missing"); !errors.Is(err, engine.ErrPaneNotFound) {
		t.Errorf("Expected ErrPaneNotFound, got %v", err)
	}

	snap, err := f.executor.LiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("LiveSnapshot failed: %v", err)
	}
	if snap.Mode != models.ModeDesign {
		t.Errorf("Expected Design from live capture, got %s", snap.Mode)
	}
	if f.cache.Get().Mode != models.ModeDesign {
		t.Error("Expected live capture to refresh the cache")
	}
}

func TestExecutor_StepWhileBrokenAdvancesLocation(t *testing.T) {
	f := newExecutorFixture(t)
	_ = f.sim.Run()
	f.sim.HitBreakpoint("Order.cs", 12)

	resp := f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "stepOver"}))
	if !resp.OK {
		t.Fatalf("Expected step to succeed, got %q", resp.Message)
	}
	if resp.Snapshot == nil || resp.Snapshot.Mode != models.ModeBroken || resp.Snapshot.Line != 13 {
		t.Fatalf("Expected Broken at line 13 in the response, got %+v", resp.Snapshot)
	}
	if got := f.cache.Get(); got.Line != 13 || got.File != "Order.cs" {
		t.Errorf("Expected cache at Order.cs:13, got %s:%d", got.File, got.Line)
	}

	resp = f.executor.Execute(context.Background(), mustCommand(t, models.CommandRequest{Action: "stepOut"}))
	if !resp.OK || resp.Snapshot == nil || resp.Snapshot.Line != 16 {
		t.Errorf("Expected step out to land on line 16, got %+v", resp)
	}
}
