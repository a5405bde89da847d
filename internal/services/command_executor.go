package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/engine"
	"agenticdebugger/internal/logging"
	"agenticdebugger/internal/models"
)

// CommandExecutor is the only path from request handlers to the host engine.
// Every engine call is handed to the automation thread; callers wait on the
// hand-off bounded by their context and the command timeout, never on a lock.
type CommandExecutor struct {
	host    engine.Host
	thread  *automation.Thread
	cache   *SnapshotCache
	metrics *Metrics
	timeout time.Duration

	// OnBuild runs after a successful build, rebuild or clean
	OnBuild func()
}

// NewCommandExecutor wires an executor. metrics may be nil.
func NewCommandExecutor(host engine.Host, thread *automation.Thread, cache *SnapshotCache, metrics *Metrics, timeout time.Duration) *CommandExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandExecutor{
		host:    host,
		thread:  thread,
		cache:   cache,
		metrics: metrics,
		timeout: timeout,
	}
}

// Execute runs one validated command. Engine failures come back as a failed
// response carrying the latest snapshot; nothing is retried.
func (e *CommandExecutor) Execute(ctx context.Context, cmd models.Command) models.CommandResponse {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	logger := logging.WithCommand(slog.Default(), string(cmd.Kind))
	start := time.Now()

	var (
		message string
		snap    models.Snapshot
	)
	err := e.thread.Do(ctx, func(ctx context.Context) error {
		version := e.cache.Version()

		msg, err := e.apply(cmd)
		if err != nil {
			return err
		}
		message = msg

		live, capErr := e.host.Capture()
		if capErr != nil {
			snap = e.cache.Get()
		} else {
			snap, _ = e.cache.Refresh(version, live)
		}

		// the eval result is attached after the recapture, which may change mode
		if cmd.Kind == models.CommandEval {
			e.cache.SetNote(msg)
			snap.Notes = msg
		}
		return nil
	})

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordCommand(string(cmd.Kind), err == nil, elapsed)
	}

	if err != nil {
		latest := e.cache.Get()
		logger.Warn("command failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return models.CommandResponse{
			OK:       false,
			Action:   string(cmd.Kind),
			Message:  describeFailure(err),
			Snapshot: &latest,
		}
	}

	logger.Debug("command executed", "duration_ms", elapsed.Milliseconds())
	return models.CommandResponse{
		OK:       true,
		Action:   string(cmd.Kind),
		Message:  message,
		Snapshot: &snap,
	}
}

func describeFailure(err error) string {
	var panicErr *automation.PanicError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the automation thread"
	case errors.Is(err, context.Canceled):
		return "request cancelled before the command completed"
	case errors.Is(err, automation.ErrStopped):
		return "bridge is shutting down"
	case errors.As(err, &panicErr):
		return fmt.Sprintf("engine call crashed: %v", panicErr.Value)
	}
	return err.Error()
}

// apply performs the engine calls for cmd. Runs on the automation thread.
func (e *CommandExecutor) apply(cmd models.Command) (string, error) {
	h := e.host
	switch cmd.Kind {
	case models.CommandGo:
		if h.Mode() == models.ModeDesign {
			if err := h.Run(); err != nil {
				return "", err
			}
			return "Debugging started", nil
		}
		if err := h.Continue(); err != nil {
			return "", err
		}
		return "Execution resumed", nil

	case models.CommandStart:
		if cmd.Project != "" {
			if err := h.SetStartupProject(cmd.Project); err != nil {
				return "", err
			}
		}
		if err := h.Run(); err != nil {
			return "", err
		}
		if cmd.Project != "" {
			return fmt.Sprintf("Debugging started for %s", cmd.Project), nil
		}
		return "Debugging started", nil

	case models.CommandStop:
		return "Debugging stopped", h.Stop()
	case models.CommandBreak:
		return "Execution paused", h.Break()
	case models.CommandStepInto:
		return "Stepped into", h.StepInto()
	case models.CommandStepOver:
		return "Stepped over", h.StepOver()
	case models.CommandStepOut:
		return "Stepped out", h.StepOut()

	case models.CommandBuild:
		if err := h.Build(); err != nil {
			return "", err
		}
		e.built()
		return "Build completed", nil
	case models.CommandRebuild:
		if err := h.Clean(); err != nil {
			return "", err
		}
		if err := h.Build(); err != nil {
			return "", err
		}
		e.built()
		return "Rebuild completed", nil
	case models.CommandClean:
		if err := h.Clean(); err != nil {
			return "", err
		}
		e.built()
		return "Clean completed", nil

	case models.CommandSetBreakpoint:
		bp := cmd.Breakpoint
		if err := h.SetBreakpoint(bp.File, bp.Line); err != nil {
			return "", err
		}
		return fmt.Sprintf("Breakpoint set at %s:%d", bp.File, bp.Line), nil
	case models.CommandClearBreakpoints:
		return "All breakpoints cleared", h.ClearBreakpoints()

	case models.CommandEval:
		value, err := h.Evaluate(cmd.Expression)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", cmd.Expression, value), nil
	case models.CommandAddWatch:
		if err := h.AddWatch(cmd.Expression); err != nil {
			return "", err
		}
		return fmt.Sprintf("Watch added: %s", cmd.Expression), nil
	}

	return "", fmt.Errorf("%w: %s", models.ErrUnknownAction, cmd.Kind)
}

func (e *CommandExecutor) built() {
	if e.OnBuild == nil {
		return
	}
	hook := e.OnBuild
	// hooks run off the automation thread
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("⚠️  [EXECUTOR] Build hook panicked: %v", r)
			}
		}()
		hook()
	}()
}
