package models

import "strings"

// BuildError is one entry of the host's error list
type BuildError struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
	Project     string `json:"project,omitempty"`
}

// ProjectInfo describes a project in the loaded solution
type ProjectInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Kind      string `json:"kind,omitempty"`
	IsStartup bool   `json:"isStartup"`
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
