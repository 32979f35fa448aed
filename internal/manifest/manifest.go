// Package manifest parses qv.yaml project manifests.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Defaults applied when the manifest leaves a setting empty.
const (
	DefaultAPIRoot  = "api"
	DefaultCasesDir = "./cases/"
)

// Backend is one implementation of the query API under test.
type Backend struct {
	Kind     string `yaml:"kind"`
	BaseURL  string `yaml:"base_url"`
	AdminURL string `yaml:"admin_url"`
	// Match lists the string matching strategies the backend supports.
	// Empty means every strategy.
	Match []testcase.MatchStrategy `yaml:"match"`
}

// Supports reports whether the backend implements the strategy.
func (b Backend) Supports(m testcase.MatchStrategy) bool {
	if len(b.Match) == 0 {
		return true
	}
	for _, s := range b.Match {
		if s == m {
			return true
		}
	}
	return false
}

// VerifySettings tune verification.
type VerifySettings struct {
	PageAwarePagination bool `yaml:"page_aware_pagination"`
}

// Manifest represents a parsed qv.yaml file.
type Manifest struct {
	APIRoot  string             `yaml:"api_root"`
	Cases    string             `yaml:"cases"`
	Backends map[string]Backend `yaml:"backends"`
	Verify   VerifySettings     `yaml:"verify"`

	dir string
}

// Load reads and parses a qv.yaml file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if len(m.Backends) == 0 {
		return nil, fmt.Errorf("manifest has no backends defined")
	}

	// Apply defaults
	if m.APIRoot == "" {
		m.APIRoot = DefaultAPIRoot
	}
	if m.Cases == "" {
		m.Cases = DefaultCasesDir
	}
	m.dir = filepath.Dir(path)

	for name, b := range m.Backends {
		if b.BaseURL == "" {
			return nil, fmt.Errorf("backend %q: base_url is required", name)
		}
		if b.Kind == "" {
			b.Kind = name
		}
		m.Backends[name] = b
	}

	return &m, nil
}

// CasesPath returns the case directory resolved against the manifest's
// location.
func (m *Manifest) CasesPath() string {
	if filepath.IsAbs(m.Cases) || m.dir == "" {
		return m.Cases
	}
	return filepath.Join(m.dir, m.Cases)
}

// Backend returns a named backend's config, or an error if not found.
func (m *Manifest) Backend(name string) (Backend, error) {
	b, ok := m.Backends[name]
	if !ok {
		return Backend{}, fmt.Errorf("backend %q not found in manifest", name)
	}
	return b, nil
}

// BackendNames returns all backend names in sorted order.
func (m *Manifest) BackendNames() []string {
	names := make([]string, 0, len(m.Backends))
	for name := range m.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
