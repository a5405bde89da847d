// Package permissions decides which requests the bridge may serve.
//
// A Policy is a flat set of capability flags plus the shared key. It is
// immutable once loaded; the Provider swaps in a new one on each refresh.
package permissions

import (
	"fmt"
	"net/http"
	"strings"

	"agenticdebugger/internal/models"
)

// Capability names a category of gated work
type Capability string

const (
	CapReadOnlyAnalysis      Capability = "read-only-analysis"
	CapReadOnlyObservability Capability = "read-only-observability"
	CapDebugControl          Capability = "debug-control"
	CapBuildControl          Capability = "build-control"
	CapBreakpointControl     Capability = "breakpoint-control"
	CapConfiguration         Capability = "configuration"
)

// AllCapabilities lists every capability in display order
func AllCapabilities() []Capability {
	return []Capability{
		CapReadOnlyAnalysis,
		CapReadOnlyObservability,
		CapDebugControl,
		CapBuildControl,
		CapBreakpointControl,
		CapConfiguration,
	}
}

// Policy is one refresh cycle's view of the permission settings
type Policy struct {
	ReadOnlyAnalysis      bool   `yaml:"read_only_analysis" mapstructure:"read_only_analysis"`
	ReadOnlyObservability bool   `yaml:"read_only_observability" mapstructure:"read_only_observability"`
	DebugControl          bool   `yaml:"debug_control" mapstructure:"debug_control"`
	BuildControl          bool   `yaml:"build_control" mapstructure:"build_control"`
	BreakpointControl     bool   `yaml:"breakpoint_control" mapstructure:"breakpoint_control"`
	Configuration         bool   `yaml:"configuration" mapstructure:"configuration"`
	APIKey                string `yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// DefaultPolicy enables every capability. The shared key is left to configuration.
func DefaultPolicy() Policy {
	return Policy{
		ReadOnlyAnalysis:      true,
		ReadOnlyObservability: true,
		DebugControl:          true,
		BuildControl:          true,
		BreakpointControl:     true,
		Configuration:         true,
	}
}

// Allows reports whether c is enabled
func (p Policy) Allows(c Capability) bool {
	switch c {
	case CapReadOnlyAnalysis:
		return p.ReadOnlyAnalysis
	case CapReadOnlyObservability:
		return p.ReadOnlyObservability
	case CapDebugControl:
		return p.DebugControl
	case CapBuildControl:
		return p.BuildControl
	case CapBreakpointControl:
		return p.BreakpointControl
	case CapConfiguration:
		return p.Configuration
	}
	return false
}

// With returns a copy with c set to enabled
func (p Policy) With(c Capability, enabled bool) Policy {
	switch c {
	case CapReadOnlyAnalysis:
		p.ReadOnlyAnalysis = enabled
	case CapReadOnlyObservability:
		p.ReadOnlyObservability = enabled
	case CapDebugControl:
		p.DebugControl = enabled
	case CapBuildControl:
		p.BuildControl = enabled
	case CapBreakpointControl:
		p.BreakpointControl = enabled
	case CapConfiguration:
		p.Configuration = enabled
	}
	return p
}

// Decision is the outcome of evaluating one request
type Decision struct {
	Allowed    bool
	Capability Capability
	Reason     string
}

func allow(c Capability) Decision {
	return Decision{Allowed: true, Capability: c}
}

func deny(c Capability) Decision {
	return Decision{
		Capability: c,
		Reason:     fmt.Sprintf("permission denied: the %q capability is disabled", c),
	}
}

func check(p Policy, c Capability) Decision {
	if p.Allows(c) {
		return allow(c)
	}
	return deny(c)
}

// CapabilityFor maps a command kind to the capability that gates it
func CapabilityFor(kind models.CommandKind) (Capability, bool) {
	switch kind {
	case models.CommandGo, models.CommandStart, models.CommandStop, models.CommandBreak,
		models.CommandStepInto, models.CommandStepOver, models.CommandStepOut,
		models.CommandEval, models.CommandAddWatch:
		return CapDebugControl, true
	case models.CommandBuild, models.CommandRebuild, models.CommandClean:
		return CapBuildControl, true
	case models.CommandSetBreakpoint, models.CommandClearBreakpoints:
		return CapBreakpointControl, true
	}
	return "", false
}

// EvaluateActions checks every action tag of a /command or /batch request.
// Unknown actions are denied. Empty tags are skipped; they fail validation later.
func EvaluateActions(p Policy, actions ...string) Decision {
	decision := Decision{Allowed: true}
	for _, action := range actions {
		if strings.TrimSpace(action) == "" {
			continue
		}
		kind, err := models.ResolveKind(action)
		if err != nil {
			return Decision{Reason: fmt.Sprintf("permission denied: unknown action %q", action)}
		}
		c, ok := CapabilityFor(kind)
		if !ok {
			return Decision{Reason: fmt.Sprintf("permission denied: action %q is not mapped to a capability", action)}
		}
		if d := check(p, c); !d.Allowed {
			return d
		}
		decision.Capability = c
	}
	return decision
}

// IsCommandRoute reports whether path carries actions that EvaluateActions must check
func IsCommandRoute(path string) bool {
	path = normalizePath(path)
	return path == "/command" || path == "/batch"
}

// normalizePath lower-cases path and trims its slashes so every spelling of
// a route maps to one table entry
func normalizePath(path string) string {
	return "/" + strings.Trim(strings.ToLower(path), "/")
}

// Evaluate classifies a non-command route. Discovery, status and docs routes
// are always allowed; routes the bridge does not know are let through so the
// router can answer 404.
func Evaluate(p Policy, method, path string) Decision {
	path = normalizePath(path)

	switch {
	case path == "/" || path == "/docs" || path == "/swagger.json" || path == "/health":
		return allow("")
	case path == "/register" || path == "/instances" || hasPrefix(path, "/proxy"):
		// a proxied request is evaluated again by the instance that serves it
		return allow("")
	case path == "/configure":
		return check(p, CapConfiguration)
	case hasPrefix(path, "/logs"):
		if method == http.MethodDelete {
			return check(p, CapConfiguration)
		}
		return check(p, CapReadOnlyObservability)
	case path == "/state" || path == "/errors" || path == "/projects" || path == "/ws" ||
		hasPrefix(path, "/output") || hasPrefix(path, "/metrics"):
		return check(p, CapReadOnlyObservability)
	case hasPrefix(path, "/code"):
		return check(p, CapReadOnlyAnalysis)
	}
	return allow("")
}

func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
