package testcase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "users.yaml", `
name: users
setup:
  reset: true
  seed: [seed/users.json]
cases:
  - id: 1
    url: /api/User?sort=username
    method: get
    category: sort
    expected_status: 200
  - id: 2
    url: /api/User
    method: POST
    category: crud
    expected_status: 422
    body: {username: ""}
    expected_data:
      expected_error_type: validation
  - id: 3
    url: /api/User?filter=gender:male
    params:
      filter:
        age: {operator: gt, value: 30}
`)

	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "users", s.Name)
	assert.True(t, s.Setup.Reset)
	assert.Equal(t, []string{filepath.Join(dir, "seed/users.json")}, s.Setup.Seed)
	require.Equal(t, 3, s.Len())

	first, ok := s.At(1)
	require.True(t, ok)
	assert.Equal(t, "GET", first.HTTPMethod())
	assert.Equal(t, []SortField{{Field: "username", Direction: Asc}}, first.Params.Sort)

	second, _ := s.Case(2)
	require.NotNil(t, second.ExpectedData)
	assert.Equal(t, ErrorValidation, second.ExpectedData.ExpectedErrorType)

	third, _ := s.Case(3)
	assert.Equal(t, map[string]FilterCondition{"age": {Operator: OpGt, Value: 30}}, third.Params.Filter)
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cases.json", `{
  "cases": [
    {"url": "/api/User?sort=-age", "expected_status": 200},
    {"url": "/api/User/1", "expected_data": {"should_contain_fields": ["id"]}}
  ]
}`)

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cases", s.Name)
	require.Equal(t, 2, s.Len())

	c1, _ := s.At(1)
	assert.Equal(t, 1, c1.ID)
	assert.Equal(t, Desc, c1.Params.Sort[0].Direction)
	c2, _ := s.At(2)
	assert.Equal(t, 2, c2.ID)
}

func TestLoadFileRejectsUnknownOperator(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
cases:
  - url: /api/User
    params:
      filter:
        age: {operator: like, value: 3}
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "like")
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "no cases", file: "empty.yaml", content: "name: empty\n"},
		{name: "missing url", file: "nourl.yaml", content: "cases:\n  - id: 1\n"},
		{name: "duplicate ids", file: "dup.yaml", content: "cases:\n  - {id: 1, url: /a}\n  - {id: 1, url: /b}\n"},
		{name: "unsupported extension", file: "cases.txt", content: "cases: []"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadDirMergesAndNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "cases:\n  - url: /api/A\n  - url: /api/B\n")
	writeFile(t, dir, "b.json", `{"setup": {"reset": true}, "cases": [{"url": "/api/C"}]}`)
	writeFile(t, dir, "notes.md", "ignored")

	s, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.True(t, s.Setup.Reset)

	for pos := 1; pos <= 3; pos++ {
		tc, ok := s.At(pos)
		require.True(t, ok)
		assert.Equal(t, pos, tc.ID)
	}
	_, ok := s.At(4)
	assert.False(t, ok)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}

func TestSuiteSelect(t *testing.T) {
	s, err := NewSuite("s", []TestCase{
		{ID: 1, URL: "/api/A", Category: "sort"},
		{ID: 2, URL: "/api/B", Category: "filter"},
		{ID: 3, URL: "/api/C", Category: "Sort"},
	})
	require.NoError(t, err)

	sorted := s.Select([]string{"sort"}, nil)
	require.Equal(t, 2, sorted.Len())
	pos, ok := sorted.Position(3)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)

	byID := s.Select(nil, []int{2})
	require.Equal(t, 1, byID.Len())
	assert.Same(t, s, s.Select(nil, nil))
}
