package services

import (
	"context"
	"fmt"
	"strings"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/models"
)

// LiveSnapshot recaptures engine state on the automation thread and folds it
// into the cache. A capture that races an engine event is returned but not stored.
func (e *CommandExecutor) LiveSnapshot(ctx context.Context) (models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) (models.Snapshot, error) {
		version := e.cache.Version()
		live, err := e.host.Capture()
		if err != nil {
			return models.Snapshot{}, err
		}
		merged, _ := e.cache.Refresh(version, live)
		return merged, nil
	})
}

// RefreshSnapshot is the periodic refresh. It only touches the engine when the
// thread is idle, so a busy engine never backs up behind refreshes.
func (e *CommandExecutor) RefreshSnapshot(ctx context.Context) (bool, error) {
	if e.thread.Pending() > 0 {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) (bool, error) {
		version := e.cache.Version()
		live, err := e.host.Capture()
		if err != nil {
			return false, err
		}
		_, stored := e.cache.Refresh(version, live)
		return stored, nil
	})
}

// Errors returns the host's error list
func (e *CommandExecutor) Errors(ctx context.Context) ([]models.BuildError, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) ([]models.BuildError, error) {
		return e.host.Errors()
	})
}

// Projects lists projects in the loaded solution
func (e *CommandExecutor) Projects(ctx context.Context) ([]models.ProjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) ([]models.ProjectInfo, error) {
		return e.host.Projects()
	})
}

// OutputPanes lists output pane names
func (e *CommandExecutor) OutputPanes(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) ([]string, error) {
		return e.host.OutputPanes()
	})
}

// Output returns the text of one output pane
func (e *CommandExecutor) Output(ctx context.Context, pane string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) (string, error) {
		return e.host.Output(pane)
	})
}

// Configure applies a startup project and/or active configuration change
func (e *CommandExecutor) Configure(ctx context.Context, req models.ConfigureRequest) (string, error) {
	project := strings.TrimSpace(req.StartupProject)
	configuration := strings.TrimSpace(req.ActiveConfiguration)
	if project == "" && configuration == "" {
		return "", fmt.Errorf("%w: startupProject or activeConfiguration is required", models.ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return automation.Call(ctx, e.thread, func(ctx context.Context) (string, error) {
		var changes []string
		if project != "" {
			if err := e.host.SetStartupProject(project); err != nil {
				return "", err
			}
			changes = append(changes, "startup project set to "+project)
		}
		if configuration != "" {
			if err := e.host.SetActiveConfiguration(configuration); err != nil {
				return "", err
			}
			changes = append(changes, "active configuration set to "+configuration)
		}
		return strings.Join(changes, "; "), nil
	})
}
