// Package codeintel is the boundary to the semantic code-intelligence
// collaborator. The bridge only consumes it; "not found" is a normal
// negative result and is reported with ErrNotFound.
package codeintel

import (
	"context"
	"errors"
)

// ErrNotFound means the query resolved to nothing
var ErrNotFound = errors.New("symbol not found")

// DefaultSearchLimit caps symbol search results when the caller passes none
const DefaultSearchLimit = 50

// Position is a cursor in a source file. Line and Column are 1-based; a zero
// Column matches anywhere on the line.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// Location is where a symbol or reference lives
type Location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column,omitempty" yaml:"column"`
}

// Symbol is a named declaration
type Symbol struct {
	Name          string    `json:"name" yaml:"name"`
	Kind          string    `json:"kind" yaml:"kind"`
	Container     string    `json:"container,omitempty" yaml:"container"`
	Type          string    `json:"type,omitempty" yaml:"type"`
	Documentation string    `json:"documentation,omitempty" yaml:"documentation"`
	Location      Location  `json:"location" yaml:"location"`
	Children      []*Symbol `json:"children,omitempty" yaml:"children"`
}

// SearchQuery filters symbols by name substring and optional kind
type SearchQuery struct {
	Query string `json:"query"`
	Kind  string `json:"kind,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// References is the result of a find-references query
type References struct {
	Symbol     Symbol     `json:"symbol"`
	References []Location `json:"references"`
}

// SemanticInfo describes the symbol under a cursor
type SemanticInfo struct {
	Symbol        Symbol `json:"symbol"`
	Type          string `json:"type,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	IsLocal       bool   `json:"isLocal"`
	IsParameter   bool   `json:"isParameter"`
	IsStatic      bool   `json:"isStatic"`
}

// Service is the code-intelligence collaborator
type Service interface {
	SearchSymbols(ctx context.Context, q SearchQuery) ([]Symbol, error)
	GoToDefinition(ctx context.Context, pos Position) (*Symbol, error)
	FindReferences(ctx context.Context, pos Position, includeDeclaration bool) (*References, error)
	Outline(ctx context.Context, file string) ([]*Symbol, error)
	SemanticInfo(ctx context.Context, pos Position) (*SemanticInfo, error)
}
