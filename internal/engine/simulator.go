package engine

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"agenticdebugger/internal/models"
)

type breakpoint struct {
	File string
	Line int
}

// Simulator is an in-memory host. It is the host `serve` runs against and
// the double used by the test suites. It is internally synchronised, so timer-driven events
// (AutoBreakDelay) may fire from other goroutines.
type Simulator struct {
	// AutoBreakDelay, when > 0, makes a run stop at the first breakpoint after the delay
	AutoBreakDelay time.Duration

	mu             sync.Mutex
	mode           models.DebugMode
	solutionName   string
	solutionPath   string
	projects       []models.ProjectInfo
	configuration  string
	breakpoints    []breakpoint
	watches        []string
	buildErrors    []models.BuildError
	pendingErrors  []models.BuildError
	output         map[string]*strings.Builder
	evalResults    map[string]string
	failures       map[string]error
	location       models.Location
	stack          []string
	locals         models.Locals
	exception      string
	calls          map[string]int
	events         chan Event
}

// NewSimulator creates a simulator in Design mode with the given projects
func NewSimulator(solutionPath string, projects ...string) *Simulator {
	s := &Simulator{
		mode:          models.ModeDesign,
		solutionPath:  solutionPath,
		solutionName:  baseName(solutionPath),
		configuration: "Debug",
		output: map[string]*strings.Builder{
			"Build": {},
			"Debug": {},
		},
		evalResults: make(map[string]string),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		events:      make(chan Event, 1024),
	}
	for i, name := range projects {
		s.projects = append(s.projects, models.ProjectInfo{
			Name:      name,
			Path:      filepath.Join(filepath.Dir(solutionPath), name, name+".csproj"),
			Kind:      "csproj",
			IsStartup: i == 0,
		})
	}
	return s
}

// baseName strips directories and extension. Both separators are honoured
// because host paths are usually Windows paths.
func baseName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FailOn makes the named method return err until cleared with a nil err
func (s *Simulator) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// SetEvalResult fixes the value returned for expression
func (s *Simulator) SetEvalResult(expression, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evalResults[expression] = value
}

// SetBuildErrors sets the error list the next build produces
func (s *Simulator) SetBuildErrors(errs ...models.BuildError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingErrors = append([]models.BuildError(nil), errs...)
}

// Calls returns how many times method was invoked
func (s *Simulator) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of automation calls of any kind
func (s *Simulator) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Breakpoints returns the configured breakpoints as locations
func (s *Simulator) Breakpoints() []models.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Location, len(s.breakpoints))
	for i, bp := range s.breakpoints {
		out[i] = models.Location{File: bp.File, Line: bp.Line}
	}
	return out
}

// Watches returns the watch expressions
func (s *Simulator) Watches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.watches...)
}

// Events implements Host
func (s *Simulator) Events() <-chan Event {
	return s.events
}

// enter records a call and returns any injected failure. Caller holds mu.
func (s *Simulator) enter(method string) error {
	s.calls[method]++
	return s.failures[method]
}

// HitBreakpoint suspends a running program at file:line
func (s *Simulator) HitBreakpoint(file string, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendAt(file, line, "")
}

// ThrowException suspends a running program with an unhandled exception
func (s *Simulator) ThrowException(exception, file string, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendAt(file, line, exception)
}

// suspendAt moves a running program to Broken. Caller holds mu.
func (s *Simulator) suspendAt(file string, line int, exception string) {
	if s.mode != models.ModeRunning && exception == "" {
		return
	}
	s.moveTo(file, line, exception)
}

// moveTo places execution at file:line in Broken mode and publishes the
// new location. Caller holds mu.
func (s *Simulator) moveTo(file string, line int, exception string) {
	s.location = models.Location{File: file, Line: line}
	method := baseName(file)
	s.stack = []string{
		fmt.Sprintf("%s.Execute() Line %d", method, line),
		"Program.Main(string[] args) Line 12",
	}
	s.locals = models.Locals{}.
		Add("this", "{"+method+"}").
		Add("line", fmt.Sprintf("%d", line)).
		Add("args", "{string[0]}")
	s.exception = exception
	s.setMode(models.ModeBroken, exception)
}

// setMode transitions and publishes an event. Caller holds mu.
func (s *Simulator) setMode(mode models.DebugMode, exception string) {
	s.mode = mode
	if mode != models.ModeBroken {
		s.location = models.Location{}
		s.stack = nil
		s.locals = nil
		s.exception = ""
	}
	kind := EventModeChanged
	if exception != "" {
		kind = EventExceptionThrown
	}
	s.publish(Event{Kind: kind, Snapshot: s.captureLocked(), At: time.Now().UTC()})
}

func (s *Simulator) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("⚠️ [SIMULATOR] Event queue full, dropping %s", ev.Kind)
	}
}

// Mode implements Host
func (s *Simulator) Mode() models.DebugMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Run implements Host
func (s *Simulator) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Run"); err != nil {
		return err
	}
	if s.mode != models.ModeDesign {
		return fmt.Errorf("cannot start: debugger is in %s mode", s.mode)
	}
	s.setMode(models.ModeRunning, "")
	s.scheduleAutoBreak()
	return nil
}

// Continue implements Host
func (s *Simulator) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Continue"); err != nil {
		return err
	}
	if s.mode != models.ModeBroken {
		return ErrNotInBreakMode
	}
	s.setMode(models.ModeRunning, "")
	return nil
}

// scheduleAutoBreak arms a timer that stops at the first breakpoint. Caller holds mu.
func (s *Simulator) scheduleAutoBreak() {
	if s.AutoBreakDelay <= 0 || len(s.breakpoints) == 0 {
		return
	}
	bp := s.breakpoints[0]
	time.AfterFunc(s.AutoBreakDelay, func() {
		s.HitBreakpoint(bp.File, bp.Line)
	})
}

// Stop implements Host
func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Stop"); err != nil {
		return err
	}
	if s.mode == models.ModeDesign {
		return nil
	}
	s.setMode(models.ModeDesign, "")
	return nil
}

// Break implements Host
func (s *Simulator) Break() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Break"); err != nil {
		return err
	}
	if s.mode != models.ModeRunning {
		return fmt.Errorf("cannot break: debugger is in %s mode", s.mode)
	}
	s.suspendAt("Program.cs", 1, "")
	return nil
}

func (s *Simulator) step(method string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return err
	}
	if s.mode != models.ModeBroken {
		return ErrNotInBreakMode
	}
	s.moveTo(s.location.File, s.location.Line+delta, "")
	return nil
}

// StepInto implements Host
func (s *Simulator) StepInto() error { return s.step("StepInto", 1) }

// StepOver implements Host
func (s *Simulator) StepOver() error { return s.step("StepOver", 1) }

// StepOut implements Host
func (s *Simulator) StepOut() error { return s.step("StepOut", 3) }

// Build implements Host
func (s *Simulator) Build() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Build"); err != nil {
		return err
	}
	s.buildErrors = append([]models.BuildError(nil), s.pendingErrors...)
	out := s.output["Build"]
	fmt.Fprintf(out, "------ Build started: %s (%s) ------\n", s.solutionName, s.configuration)
	for _, e := range s.buildErrors {
		fmt.Fprintf(out, "%s(%d,%d): %s: %s\n", e.File, e.Line, e.Column, e.Severity, e.Description)
	}
	failed := 0
	for _, e := range s.buildErrors {
		if e.Severity == "error" {
			failed = 1
		}
	}
	fmt.Fprintf(out, "========== Build: %d succeeded, %d failed ==========\n", 1-failed, failed)
	return nil
}

// Clean implements Host
func (s *Simulator) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Clean"); err != nil {
		return err
	}
	s.buildErrors = nil
	fmt.Fprintf(s.output["Build"], "------ Clean started: %s ------\n", s.solutionName)
	return nil
}

// SetBreakpoint implements Host
func (s *Simulator) SetBreakpoint(file string, line int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetBreakpoint"); err != nil {
		return err
	}
	for _, bp := range s.breakpoints {
		if bp.File == file && bp.Line == line {
			return nil
		}
	}
	s.breakpoints = append(s.breakpoints, breakpoint{File: file, Line: line})
	return nil
}

// ClearBreakpoints implements Host
func (s *Simulator) ClearBreakpoints() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ClearBreakpoints"); err != nil {
		return err
	}
	s.breakpoints = nil
	return nil
}

// Evaluate implements Host
func (s *Simulator) Evaluate(expression string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Evaluate"); err != nil {
		return "", err
	}
	if s.mode != models.ModeBroken {
		return "", ErrNotInBreakMode
	}
	if v, ok := s.evalResults[expression]; ok {
		return v, nil
	}
	if v, ok := s.locals.Get(expression); ok {
		return v, nil
	}
	return "", fmt.Errorf("the name '%s' does not exist in the current context", expression)
}

// AddWatch implements Host
func (s *Simulator) AddWatch(expression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AddWatch"); err != nil {
		return err
	}
	s.watches = append(s.watches, expression)
	return nil
}

// SetStartupProject implements Host
func (s *Simulator) SetStartupProject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetStartupProject"); err != nil {
		return err
	}
	found := false
	for i := range s.projects {
		match := strings.EqualFold(s.projects[i].Name, name)
		s.projects[i].IsStartup = match
		found = found || match
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return nil
}

// SetActiveConfiguration implements Host
func (s *Simulator) SetActiveConfiguration(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetActiveConfiguration"); err != nil {
		return err
	}
	s.configuration = name
	return nil
}

// Capture implements Host
func (s *Simulator) Capture() (models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Capture"); err != nil {
		return models.Snapshot{}, err
	}
	return s.captureLocked(), nil
}

func (s *Simulator) captureLocked() models.Snapshot {
	snap := models.Snapshot{
		Timestamp:    time.Now().UTC(),
		Mode:         s.mode,
		Stack:        []string{},
		Locals:       models.Locals{},
		SolutionName: s.solutionName,
		SolutionPath: s.solutionPath,
	}
	if s.mode == models.ModeBroken {
		snap.File = s.location.File
		snap.Line = s.location.Line
		snap.Exception = s.exception
		snap.Stack = append(snap.Stack, s.stack...)
		snap.Locals = append(snap.Locals, s.locals...)
	}
	return snap
}

// Errors implements Host
func (s *Simulator) Errors() ([]models.BuildError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Errors"); err != nil {
		return nil, err
	}
	return append([]models.BuildError{}, s.buildErrors...), nil
}

// Projects implements Host
func (s *Simulator) Projects() ([]models.ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Projects"); err != nil {
		return nil, err
	}
	return append([]models.ProjectInfo{}, s.projects...), nil
}

// OutputPanes implements Host
func (s *Simulator) OutputPanes() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("OutputPanes"); err != nil {
		return nil, err
	}
	panes := make([]string, 0, len(s.output))
	for name := range s.output {
		panes = append(panes, name)
	}
	sort.Strings(panes)
	return panes, nil
}

// Output implements Host
func (s *Simulator) Output(pane string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Output"); err != nil {
		return "", err
	}
	for name, buf := range s.output {
		if strings.EqualFold(name, pane) {
			return buf.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPaneNotFound, pane)
}
