package testcase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Setup defines pre-run actions against the backend under test.
type Setup struct {
	Reset bool     `json:"reset,omitempty" yaml:"reset,omitempty"`
	Seed  []string `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Suite is an ordered, 1-based sequence of test cases. It is built once by
// the loader and passed explicitly to whoever runs it.
type Suite struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Setup       Setup      `json:"setup,omitempty" yaml:"setup,omitempty"`
	Cases       []TestCase `json:"cases" yaml:"cases"`

	byID map[int]int
}

// LoadFile parses a single JSON or YAML corpus file.
// The format is detected by file extension.
func LoadFile(path string) (*Suite, error) {
	s, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.index(); err != nil {
		return nil, fmt.Errorf("cases %s: %w", path, err)
	}
	return s, nil
}

// loadFile decodes and validates a corpus file without numbering it, so
// LoadDir can number the merged sequence once.
func loadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cases %s: %w", path, err)
	}

	var s Suite
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing cases %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing cases %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported case file format %q (expected .json, .yaml, or .yml)", ext)
	}

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("cases %s: at least one case is required", path)
	}

	base := filepath.Dir(path)
	for i, seed := range s.Setup.Seed {
		if !filepath.IsAbs(seed) {
			s.Setup.Seed[i] = filepath.Join(base, seed)
		}
	}

	for i := range s.Cases {
		tc := &s.Cases[i]
		if tc.URL == "" {
			return nil, fmt.Errorf("cases %s: case #%d: url is required", path, i+1)
		}
		if err := tc.ResolveParams(); err != nil {
			return nil, fmt.Errorf("cases %s: %w", path, err)
		}
	}
	return &s, nil
}

// LoadDir loads every .json, .yaml and .yml file in dir into one suite.
// Files are read in name order; setup actions are merged.
func LoadDir(dir string) (*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading case directory %s: %w", dir, err)
	}

	merged := &Suite{Name: filepath.Base(filepath.Clean(dir))}
	found := 0
	var only string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		s, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		found++
		only = s.Name
		merged.Setup.Reset = merged.Setup.Reset || s.Setup.Reset
		merged.Setup.Seed = append(merged.Setup.Seed, s.Setup.Seed...)
		merged.Cases = append(merged.Cases, s.Cases...)
	}

	if found == 0 {
		return nil, fmt.Errorf("no case files found in %s", dir)
	}
	if found == 1 {
		merged.Name = only
	}
	if err := merged.index(); err != nil {
		return nil, fmt.Errorf("cases %s: %w", dir, err)
	}
	return merged, nil
}

// Load loads a file or a directory, depending on what path names.
func Load(path string) (*Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("case path %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// NewSuite builds a suite from in-memory cases.
func NewSuite(name string, cases []TestCase) (*Suite, error) {
	s := &Suite{Name: name, Cases: cases}
	for i := range s.Cases {
		if err := s.Cases[i].ResolveParams(); err != nil {
			return nil, err
		}
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

// index numbers cases without an ID after the highest explicit one, rejects
// duplicates, and orders the sequence by ID.
func (s *Suite) index() error {
	next := 0
	for _, tc := range s.Cases {
		if tc.ID > next {
			next = tc.ID
		}
	}
	for i := range s.Cases {
		if s.Cases[i].ID <= 0 {
			next++
			s.Cases[i].ID = next
		}
	}

	sort.SliceStable(s.Cases, func(i, j int) bool { return s.Cases[i].ID < s.Cases[j].ID })

	s.byID = make(map[int]int, len(s.Cases))
	for i, tc := range s.Cases {
		if _, dup := s.byID[tc.ID]; dup {
			return fmt.Errorf("duplicate case id %d", tc.ID)
		}
		s.byID[tc.ID] = i
	}
	return nil
}

// Len returns the number of cases.
func (s *Suite) Len() int { return len(s.Cases) }

// At returns the case at 1-based position pos.
func (s *Suite) At(pos int) (*TestCase, bool) {
	if pos < 1 || pos > len(s.Cases) {
		return nil, false
	}
	return &s.Cases[pos-1], true
}

// Position returns the 1-based position of the case with the given ID.
func (s *Suite) Position(id int) (int, bool) {
	i, ok := s.byID[id]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// Case returns the case with the given ID.
func (s *Suite) Case(id int) (*TestCase, bool) {
	pos, ok := s.Position(id)
	if !ok {
		return nil, false
	}
	return s.At(pos)
}

// Select returns a new suite restricted to the given categories and IDs.
// Empty selectors match everything.
func (s *Suite) Select(categories []string, ids []int) *Suite {
	if len(categories) == 0 && len(ids) == 0 {
		return s
	}
	wantCat := make(map[string]bool, len(categories))
	for _, c := range categories {
		wantCat[strings.ToLower(c)] = true
	}
	wantID := make(map[int]bool, len(ids))
	for _, id := range ids {
		wantID[id] = true
	}

	out := &Suite{Name: s.Name, Description: s.Description, Setup: s.Setup}
	for _, tc := range s.Cases {
		if len(wantCat) > 0 && !wantCat[strings.ToLower(tc.Category)] {
			continue
		}
		if len(wantID) > 0 && !wantID[tc.ID] {
			continue
		}
		out.Cases = append(out.Cases, tc)
	}
	_ = out.index()
	return out
}
