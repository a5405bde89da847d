package codeintel

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// outlineKinds are the member kinds shown in a document outline
var outlineKinds = map[string]bool{
	"namespace":   true,
	"class":       true,
	"struct":      true,
	"interface":   true,
	"enum":        true,
	"record":      true,
	"method":      true,
	"constructor": true,
	"property":    true,
	"field":       true,
	"event":       true,
}

// Declaration is one indexed symbol and everything known about it
type Declaration struct {
	Symbol      `yaml:",inline"`
	IsLocal     bool       `json:"isLocal,omitempty" yaml:"isLocal"`
	IsParameter bool       `json:"isParameter,omitempty" yaml:"isParameter"`
	IsStatic    bool       `json:"isStatic,omitempty" yaml:"isStatic"`
	References  []Location `json:"references,omitempty" yaml:"references"`
}

// Index is an in-memory symbol table. It serves a precomputed index file or
// symbols registered by tests.
type Index struct {
	mu    sync.RWMutex
	decls []*Declaration
}

// NewIndex creates an index over decls
func NewIndex(decls ...Declaration) *Index {
	idx := &Index{}
	for _, d := range decls {
		idx.Add(d)
	}
	return idx
}

// LoadIndex reads a YAML list of declarations. JSON exports load as well.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbol index: %w", err)
	}
	var decls []Declaration
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parse symbol index %s: %w", path, err)
	}
	return NewIndex(decls...), nil
}

// Add registers a declaration
func (idx *Index) Add(d Declaration) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	decl := d
	idx.decls = append(idx.decls, &decl)
}

// Len returns the number of declarations
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.decls)
}

// SearchSymbols ranks exact matches before prefix matches before substring matches
func (idx *Index) SearchSymbols(ctx context.Context, q SearchQuery) ([]Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(q.Query))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	type hit struct {
		rank int
		sym  Symbol
	}

	idx.mu.RLock()
	var hits []hit
	for _, d := range idx.decls {
		if q.Kind != "" && !strings.EqualFold(d.Kind, q.Kind) {
			continue
		}
		name := strings.ToLower(d.Name)
		rank := -1
		switch {
		case name == query:
			rank = 0
		case strings.HasPrefix(name, query):
			rank = 1
		case strings.Contains(name, query):
			rank = 2
		}
		if rank >= 0 {
			hits = append(hits, hit{rank: rank, sym: d.Symbol})
		}
	}
	idx.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].sym.Name < hits[j].sym.Name
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Symbol, len(hits))
	for i, h := range hits {
		out[i] = h.sym
	}
	return out, nil
}

func covers(loc Location, name string, pos Position) bool {
	if !sameFile(loc.File, pos.File) || loc.Line != pos.Line {
		return false
	}
	if pos.Column == 0 || loc.Column == 0 {
		return true
	}
	return pos.Column >= loc.Column && pos.Column <= loc.Column+len(name)
}

func sameFile(a, b string) bool {
	return strings.EqualFold(strings.ReplaceAll(a, `\`, "/"), strings.ReplaceAll(b, `\`, "/"))
}

// resolve finds the declaration at pos, either at its definition or at one of its references
func (idx *Index) resolve(pos Position) (*Declaration, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, d := range idx.decls {
		if covers(d.Location, d.Name, pos) {
			return d, nil
		}
	}
	for _, d := range idx.decls {
		for _, ref := range d.References {
			if covers(ref, d.Name, pos) {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("%w at %s:%d", ErrNotFound, pos.File, pos.Line)
}

// GoToDefinition resolves the symbol under pos to its declaration
func (idx *Index) GoToDefinition(ctx context.Context, pos Position) (*Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := idx.resolve(pos)
	if err != nil {
		return nil, err
	}
	sym := d.Symbol
	return &sym, nil
}

// FindReferences lists usages of the symbol under pos
func (idx *Index) FindReferences(ctx context.Context, pos Position, includeDeclaration bool) (*References, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := idx.resolve(pos)
	if err != nil {
		return nil, err
	}
	refs := make([]Location, 0, len(d.References)+1)
	if includeDeclaration {
		refs = append(refs, d.Location)
	}
	refs = append(refs, d.References...)
	return &References{Symbol: d.Symbol, References: refs}, nil
}

// Outline returns the named members of file as a tree keyed by container name
func (idx *Index) Outline(ctx context.Context, file string) ([]*Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	var members []Symbol
	for _, d := range idx.decls {
		if sameFile(d.Location.File, file) && outlineKinds[strings.ToLower(d.Kind)] {
			members = append(members, d.Symbol)
		}
	}
	idx.mu.RUnlock()

	if len(members) == 0 {
		return nil, fmt.Errorf("%w: no members in %s", ErrNotFound, file)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Location.Line < members[j].Location.Line
	})

	byName := make(map[string]*Symbol, len(members))
	nodes := make([]*Symbol, len(members))
	for i := range members {
		node := members[i]
		node.Children = nil
		nodes[i] = &node
		if _, exists := byName[node.Name]; !exists {
			byName[node.Name] = nodes[i]
		}
	}

	var roots []*Symbol
	for _, node := range nodes {
		parent, ok := byName[node.Container]
		if node.Container == "" || !ok || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots, nil
}

// SemanticInfo describes the symbol under pos
func (idx *Index) SemanticInfo(ctx context.Context, pos Position) (*SemanticInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := idx.resolve(pos)
	if err != nil {
		return nil, err
	}
	return &SemanticInfo{
		Symbol:        d.Symbol,
		Type:          d.Type,
		Documentation: excerpt(d.Documentation, 400),
		IsLocal:       d.IsLocal,
		IsParameter:   d.IsParameter,
		IsStatic:      d.IsStatic,
	}, nil
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
