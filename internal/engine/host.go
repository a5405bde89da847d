// Package engine defines the boundary to the host engine: the thread-affine
// automation surface the bridge drives, and the ordered event stream it
// publishes.
package engine

import (
	"errors"
	"time"

	"agenticdebugger/internal/models"
)

var (
	// ErrNotInBreakMode is returned by stepping and evaluation outside Broken
	ErrNotInBreakMode = errors.New("debugger is not in break mode")
	// ErrProjectNotFound is returned for an unknown project name
	ErrProjectNotFound = errors.New("project not found")
	// ErrPaneNotFound is returned for an unknown output pane
	ErrPaneNotFound = errors.New("output pane not found")
)

// EventKind classifies engine events
type EventKind string

const (
	EventModeChanged     EventKind = "modeChanged"
	EventExceptionThrown EventKind = "exceptionThrown"
)

// Event is published by the engine in emission order. Snapshot is captured by
// the engine at emission time, so consumers never call back into the engine.
type Event struct {
	Kind     EventKind
	Snapshot models.Snapshot
	At       time.Time
}

// Host is the automation surface. Every method except Events must be called
// on the automation thread.
type Host interface {
	Mode() models.DebugMode
	Run() error
	Continue() error
	Stop() error
	Break() error
	StepInto() error
	StepOver() error
	StepOut() error

	Build() error
	Clean() error

	SetBreakpoint(file string, line int) error
	ClearBreakpoints() error
	Evaluate(expression string) (string, error)
	AddWatch(expression string) error

	SetStartupProject(name string) error
	SetActiveConfiguration(name string) error

	Capture() (models.Snapshot, error)
	Errors() ([]models.BuildError, error)
	Projects() ([]models.ProjectInfo, error)
	OutputPanes() ([]string, error)
	Output(pane string) (string, error)

	// Events is safe to call from any goroutine
	Events() <-chan Event
}
