package permissions

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Source is the external settings collaborator. Load is only ever called from
// the automation thread by the Provider.
type Source interface {
	Load() (Policy, error)
}

// FileSource reads the policy from a YAML settings file. A missing file is
// created with the default policy.
type FileSource struct {
	Path string
	// Defaults fills keys the file leaves out
	Defaults Policy
}

// NewFileSource creates a file-backed source
func NewFileSource(path string, defaults Policy) *FileSource {
	return &FileSource{Path: path, Defaults: defaults}
}

// Load implements Source
func (s *FileSource) Load() (Policy, error) {
	if _, err := os.Stat(s.Path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(s.Defaults); err != nil {
			return Policy{}, err
		}
		log.Printf("📝 [PERMISSIONS] Created default permissions file at %s", s.Path)
	}

	v := viper.New()
	v.SetConfigFile(s.Path)
	v.SetConfigType("yaml")
	v.SetDefault("read_only_analysis", s.Defaults.ReadOnlyAnalysis)
	v.SetDefault("read_only_observability", s.Defaults.ReadOnlyObservability)
	v.SetDefault("debug_control", s.Defaults.DebugControl)
	v.SetDefault("build_control", s.Defaults.BuildControl)
	v.SetDefault("breakpoint_control", s.Defaults.BreakpointControl)
	v.SetDefault("configuration", s.Defaults.Configuration)
	v.SetDefault("api_key", s.Defaults.APIKey)

	if err := v.ReadInConfig(); err != nil {
		return Policy{}, fmt.Errorf("read permissions %s: %w", s.Path, err)
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, fmt.Errorf("decode permissions %s: %w", s.Path, err)
	}
	return p, nil
}

// Save writes p to the settings file
func (s *FileSource) Save(p Policy) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create permissions dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	header := []byte("# Capabilities the debugger bridge grants to clients. Changes apply without a restart.\n")
	if err := os.WriteFile(s.Path, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("write permissions: %w", err)
	}
	return nil
}

// StaticSource holds a policy in memory
type StaticSource struct {
	mu     sync.Mutex
	policy Policy
	err    error
}

// NewStaticSource returns a source that always yields p
func NewStaticSource(p Policy) *StaticSource {
	return &StaticSource{policy: p}
}

// Set replaces the policy returned by the next Load
func (s *StaticSource) Set(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
	s.err = nil
}

// Fail makes the next loads return err
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Load implements Source
func (s *StaticSource) Load() (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Policy{}, s.err
	}
	return s.policy, nil
}
