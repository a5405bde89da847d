package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCommand marks a command rejected before it reaches the engine
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnknownAction marks an action tag that maps to no command kind
	ErrUnknownAction = errors.New("unknown action")
)

// CommandKind is the closed set of engine commands
type CommandKind string

const (
	CommandGo               CommandKind = "go"
	CommandStart            CommandKind = "start"
	CommandStop             CommandKind = "stop"
	CommandBreak            CommandKind = "break"
	CommandStepInto         CommandKind = "stepInto"
	CommandStepOver         CommandKind = "stepOver"
	CommandStepOut          CommandKind = "stepOut"
	CommandBuild            CommandKind = "build"
	CommandRebuild          CommandKind = "rebuild"
	CommandClean            CommandKind = "clean"
	CommandSetBreakpoint    CommandKind = "setBreakpoint"
	CommandClearBreakpoints CommandKind = "clearBreakpoints"
	CommandEval             CommandKind = "eval"
	CommandAddWatch         CommandKind = "addWatch"
)

// actionAliases maps lower-cased action tags (including shorthands) to kinds
var actionAliases = map[string]CommandKind{
	"go":               CommandGo,
	"continue":         CommandGo,
	"start":            CommandStart,
	"stop":             CommandStop,
	"break":            CommandBreak,
	"pause":            CommandBreak,
	"stepinto":         CommandStepInto,
	"stepover":         CommandStepOver,
	"stepout":          CommandStepOut,
	"build":            CommandBuild,
	"rebuild":          CommandRebuild,
	"clean":            CommandClean,
	"setbreakpoint":    CommandSetBreakpoint,
	"bp":               CommandSetBreakpoint,
	"clearbreakpoints": CommandClearBreakpoints,
	"clrbp":            CommandClearBreakpoints,
	"eval":             CommandEval,
	"addwatch":         CommandAddWatch,
}

// AllCommandKinds lists every kind in a stable order (used by docs)
func AllCommandKinds() []CommandKind {
	return []CommandKind{
		CommandGo, CommandStart, CommandStop, CommandBreak,
		CommandStepInto, CommandStepOver, CommandStepOut,
		CommandBuild, CommandRebuild, CommandClean,
		CommandSetBreakpoint, CommandClearBreakpoints,
		CommandEval, CommandAddWatch,
	}
}

// ResolveKind matches an action tag case-insensitively
func ResolveKind(action string) (CommandKind, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return "", fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}
	kind, ok := actionAliases[strings.ToLower(action)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return kind, nil
}

// CommandRequest is the wire form of a command
type CommandRequest struct {
	Action      string `json:"action"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Expression  string `json:"expression,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// Location is a source position
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Command is a validated command. Only the payload field matching Kind is set.
type Command struct {
	Kind CommandKind

	// Breakpoint is set for CommandSetBreakpoint
	Breakpoint Location
	// Expression is set for CommandEval and CommandAddWatch
	Expression string
	// Project optionally pins the run target for CommandStart
	Project string

	InstanceID string
}

// NewCommand validates a request and builds the typed command
func NewCommand(req CommandRequest) (Command, error) {
	kind, err := ResolveKind(req.Action)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Kind: kind, InstanceID: strings.TrimSpace(req.InstanceID)}

	switch kind {
	case CommandSetBreakpoint:
		file := strings.TrimSpace(req.File)
		if file == "" || req.Line <= 0 {
			return Command{}, fmt.Errorf("%w: %s requires file and line > 0", ErrInvalidCommand, kind)
		}
		cmd.Breakpoint = Location{File: file, Line: req.Line}
	case CommandEval, CommandAddWatch:
		expr := strings.TrimSpace(req.Expression)
		if expr == "" {
			return Command{}, fmt.Errorf("%w: %s requires a non-empty expression", ErrInvalidCommand, kind)
		}
		cmd.Expression = expr
	case CommandStart:
		cmd.Project = strings.TrimSpace(req.ProjectName)
	}

	return cmd, nil
}

// CommandResponse is the result of a single command
type CommandResponse struct {
	OK       bool      `json:"ok"`
	Action   string    `json:"action,omitempty"`
	Message  string    `json:"message"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// BatchRequest runs several commands in order
type BatchRequest struct {
	Commands    []CommandRequest `json:"commands"`
	StopOnError bool             `json:"stopOnError"`
}

// BatchResponse aggregates per-entry results. Results holds only attempted entries.
type BatchResponse struct {
	OK           bool              `json:"ok"`
	Results      []CommandResponse `json:"results"`
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
}

// ConfigureRequest changes host configuration
type ConfigureRequest struct {
	StartupProject      string `json:"startupProject,omitempty"`
	ActiveConfiguration string `json:"activeConfiguration,omitempty"`
}
