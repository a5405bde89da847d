package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResolveKind(t *testing.T) {
	tests := []struct {
		action  string
		want    CommandKind
		wantErr error
	}{
		{"go", CommandGo, nil},
		{"Continue", CommandGo, nil},
		{"STEPOVER", CommandStepOver, nil},
		{" bp ", CommandSetBreakpoint, nil},
		{"clrbp", CommandClearBreakpoints, nil},
		{"pause", CommandBreak, nil},
		{"", "", ErrInvalidCommand},
		{"   ", "", ErrInvalidCommand},
		{"deleteEverything", "", ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := ResolveKind(tt.action)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ResolveKind(%q) = %q, %v; want %q", tt.action, got, err, tt.want)
			}
		})
	}
}

func TestNewCommand_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     CommandRequest
		wantErr bool
	}{
		{"breakpoint ok", CommandRequest{Action: "setBreakpoint", File: "/x.cs", Line: 3}, false},
		{"breakpoint without line", CommandRequest{Action: "setBreakpoint", File: "/x.cs"}, true},
		{"breakpoint negative line", CommandRequest{Action: "setBreakpoint", File: "/x.cs", Line: -1}, true},
		{"breakpoint blank file", CommandRequest{Action: "bp", File: "  ", Line: 3}, true},
		{"eval ok", CommandRequest{Action: "eval", Expression: "x + 1"}, false},
		{"eval blank", CommandRequest{Action: "eval", Expression: " "}, true},
		{"watch blank", CommandRequest{Action: "addWatch"}, true},
		{"start with project", CommandRequest{Action: "start", ProjectName: "Shop.Api"}, false},
		{"build ignores payload", CommandRequest{Action: "build", File: "ignored", Line: -5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommand(tt.req)
			if tt.wantErr && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Expected ErrInvalidCommand, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestNewCommand_OnlyMatchingPayloadIsSet(t *testing.T) {
	cmd, err := NewCommand(CommandRequest{Action: "eval", Expression: " total ", File: "/x.cs", Line: 9, InstanceID: " abc "})
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	if cmd.Expression != "total" || cmd.Breakpoint != (Location{}) || cmd.InstanceID != "abc" {
		t.Errorf("Unexpected command %+v", cmd)
	}
}

func TestLocals_FirstOccurrenceWinsAndOrderSurvivesJSON(t *testing.T) {
	locals := Locals{}.Add("order", "{Order}").Add("total", "42").Add("order", "shadowed").Add("args", "{string[0]}")

	if got, _ := locals.Get("order"); got != "{Order}" {
		t.Errorf("Expected the first order to win, got %q", got)
	}

	data, err := json.Marshal(locals)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"order":"{Order}","total":"42","args":"{string[0]}"}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var back Locals
	if err := json.Unmarshal([]byte(`{"z":"1","a":"2","z":"3"}`), &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	names := back.Names()
	if len(names) != 2 || names[0] != "z" || names[1] != "a" {
		t.Errorf("Expected [z a], got %v", names)
	}
	if v, _ := back.Get("z"); v != "1" {
		t.Errorf("Expected duplicate key to keep the first value, got %q", v)
	}
}

func TestSnapshotClone_DoesNotShareSlices(t *testing.T) {
	snap := Snapshot{Stack: []string{"Main"}, Locals: Locals{}.Add("x", "1")}
	clone := snap.Clone()
	clone.Stack[0] = "changed"
	clone.Locals[0].Value = "2"

	if snap.Stack[0] != "Main" || snap.Locals[0].Value != "1" {
		t.Error("Clone shares backing arrays with the original")
	}
}

func TestLogFilterMatches(t *testing.T) {
	entry := LogEntry{Path: "/Command", StatusCode: 403}
	tests := []struct {
		name   string
		filter LogFilter
		want   bool
	}{
		{"empty", LogFilter{}, true},
		{"path case-insensitive", LogFilter{PathContains: "comm"}, true},
		{"path miss", LogFilter{PathContains: "state"}, false},
		{"status in range", LogFilter{MinStatus: 400, MaxStatus: 499}, true},
		{"below min", LogFilter{MinStatus: 500}, false},
		{"above max", LogFilter{MaxStatus: 299}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(entry); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
