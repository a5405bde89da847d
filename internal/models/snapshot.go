package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DebugMode is the run state of the host engine
type DebugMode string

const (
	ModeDesign  DebugMode = "Design"
	ModeRunning DebugMode = "Running"
	ModeBroken  DebugMode = "Broken"
	ModeUnknown DebugMode = "Unknown"
)

// Snapshot is a point-in-time capture of host engine state
type Snapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Mode         DebugMode `json:"mode"`
	Exception    string    `json:"exception,omitempty"`
	File         string    `json:"file,omitempty"`
	Line         int       `json:"line,omitempty"`
	Stack        []string  `json:"stack"`
	Locals       Locals    `json:"locals"`
	Notes        string    `json:"notes,omitempty"`
	SolutionName string    `json:"solutionName,omitempty"`
	SolutionPath string    `json:"solutionPath,omitempty"`
}

// NewUnknownSnapshot returns the state the bridge reports before the engine has been observed.
func NewUnknownSnapshot() Snapshot {
	return Snapshot{
		Timestamp: time.Now().UTC(),
		Mode:      ModeUnknown,
		Stack:     []string{},
		Locals:    Locals{},
	}
}

// Clone returns a deep copy so callers never share slices with the cache
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Stack = append(make([]string, 0, len(s.Stack)), s.Stack...)
	out.Locals = append(make(Locals, 0, len(s.Locals)), s.Locals...)
	return out
}

// Variable is a single local variable rendered as a string
type Variable struct {
	Name  string
	Value string
}

// Locals keeps local variables in engine order. The first occurrence of a
// name wins; later duplicates (shadowed variables) are ignored.
type Locals []Variable

// Add appends name unless it is already present
func (l Locals) Add(name, value string) Locals {
	if _, exists := l.Get(name); exists {
		return l
	}
	return append(l, Variable{Name: name, Value: value})
}

// Get returns the value for name
func (l Locals) Get(name string) (string, bool) {
	for _, v := range l {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// Names returns variable names in order
func (l Locals) Names() []string {
	names := make([]string, len(l))
	for i, v := range l {
		names[i] = v.Name
	}
	return names
}

// MarshalJSON renders locals as a JSON object preserving engine order
func (l Locals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order
func (l *Locals) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("locals: expected object, got %v", tok)
	}

	out := Locals{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("locals: expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("locals: value for %q: %w", key, err)
		}
		out = out.Add(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*l = out
	return nil
}
