package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/qverify/internal/fixture"
	"github.com/wondertwin-ai/qverify/internal/report"
)

const casesYAML = `
name: users
setup:
  reset: true
cases:
  - id: 1
    url: /api/User?sort=username
    category: sort
    expected_status: 200
  - id: 2
    url: /api/User?filter=age:gt:30
    category: filter
    expected_status: 200
  - id: 3
    url: /api/User/1
    category: crud
    expected_status: 200
    expected_data:
      expected_fields: {username: carol}
`

type cli struct {
	dir      string
	manifest string
}

func setup(t *testing.T, cases string) cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	db, err := fixture.NewDB(fixture.State{
		Data: map[string][]fixture.Record{
			"User": {
				{"id": 1, "username": "carol", "age": 41},
				{"id": 2, "username": "alice", "age": 29},
				{"id": 3, "username": "bob", "age": 35},
			},
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(fixture.NewServer(db, "api", zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cases"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cases", "users.yaml"), []byte(cases), 0o644))

	manifest := filepath.Join(dir, "qv.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("backends:\n  fixture:\n    base_url: "+srv.URL+"\n"), 0o644))
	return cli{dir: dir, manifest: manifest}
}

func (c cli) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", c.manifest}, args...)
	code := execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var stdout bytes.Buffer
	code := execute(context.Background(), []string{"version"}, strings.NewReader(""), &stdout, &bytes.Buffer{})
	assert.Equal(t, 0, code)
	assert.Equal(t, "qv version dev\n", stdout.String())
}

func TestUnknownCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var stderr bytes.Buffer
	code := execute(context.Background(), []string{"bogus"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "qv: unknown command")
}

func TestRunPasses(t *testing.T) {
	c := setup(t, casesYAML)
	jsonPath := filepath.Join(c.dir, "out", "report.json")

	code, stdout, stderr := c.run(t, "", "run", "--report", "console", "--report", "json:"+jsonPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Suite users on fixture")
	assert.Contains(t, stdout, "No failures.")
	assert.Contains(t, stdout, "3 passed, 0 failed, 0 skipped")

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var doc report.JSONReport
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.True(t, doc.Passed)
	assert.NotEmpty(t, doc.RunID)
}

func TestRunWithoutConsolePrintsSummary(t *testing.T) {
	c := setup(t, casesYAML)
	jsonPath := filepath.Join(c.dir, "report.json")

	code, stdout, stderr := c.run(t, "", "run", "--report", "json:"+jsonPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "users on fixture: 3 passed, 0 failed, 0 skipped\n", stdout)
	assert.FileExists(t, jsonPath)
}

func TestRunSelectsByCategory(t *testing.T) {
	c := setup(t, casesYAML)
	code, stdout, _ := c.run(t, "", "run", "--category", "sort", "--show-all")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "/api/User?sort=username")
	assert.NotContains(t, stdout, "/api/User?filter")
	assert.Contains(t, stdout, "1 passed, 0 failed, 0 skipped")
}

func TestRunFailureUsesConfiguredExitCode(t *testing.T) {
	c := setup(t, casesYAML+`
  - id: 4
    url: /api/User/2
    expected_status: 404
`)
	t.Setenv("QV_FAIL_EXIT_CODE", "3")

	code, stdout, _ := c.run(t, "", "run")
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout, "Expected status 404 but got 200")
	assert.Contains(t, stdout, "3 passed, 1 failed, 0 skipped")
}

func TestRunUnknownBackend(t *testing.T) {
	c := setup(t, casesYAML)
	code, _, stderr := c.run(t, "", "run", "--backend", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `backend "missing" not found`)
}

func TestRunBadReportSpec(t *testing.T) {
	c := setup(t, casesYAML)
	code, _, stderr := c.run(t, "", "run", "--report", "html:x.html")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported report format")
}

func TestList(t *testing.T) {
	c := setup(t, casesYAML)
	code, stdout, _ := c.run(t, "", "list")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Suite users (3 cases)")
	assert.Contains(t, stdout, "/api/User?filter=age:gt:30")
	assert.Contains(t, stdout, "fixture")
}

func TestInteractiveQuit(t *testing.T) {
	c := setup(t, casesYAML)
	code, stdout, stderr := c.run(t, "\nq\n", "interactive")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "[1/3]")
	assert.Contains(t, stdout, "[2/3]")
	assert.NotContains(t, stdout, "[3/3]")
	assert.Contains(t, stdout, "2 passed, 0 failed, 0 skipped")
}

func TestVerifyOffline(t *testing.T) {
	c := setup(t, casesYAML)
	casesPath := filepath.Join(c.dir, "cases", "users.yaml")

	good := filepath.Join(c.dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"data":[{"age":41},{"age":35}],"pagination":{"page":1,"pageSize":20,"total":2,"totalPages":1}}`), 0o644))
	code, stdout, stderr := c.run(t, "", "verify", "--case", casesPath+":2", "--response", good)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, `"status": "PASS"`)

	bad := filepath.Join(c.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"data":[{"age":29}],"pagination":{"page":1,"pageSize":20,"total":1,"totalPages":1}}`), 0o644))
	code, stdout, _ = c.run(t, "", "verify", "--case", casesPath+":2", "--response", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `"status": "FAIL"`)
	assert.Contains(t, stdout, "does not satisfy gt")
}

func TestVerifyBadCaseRef(t *testing.T) {
	c := setup(t, casesYAML)
	code, _, stderr := c.run(t, "", "verify", "--case", "nofile", "--response", "x.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "case must be <file>:<id>")
}

func TestResolveManifestPath(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "qv.yaml")
	assert.Equal(t, yamlPath, resolveManifestPath(yamlPath))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "qv.json"), []byte(`{}`), 0o644))
	assert.Equal(t, filepath.Join(dir, "qv.json"), resolveManifestPath(yamlPath))
	assert.Equal(t, "custom.yaml", resolveManifestPath("custom.yaml"))
}

func TestCheck(t *testing.T) {
	c := setup(t, casesYAML)
	seed := filepath.Join(c.dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"data":{"Order":[{"id":1,"total":9.5}]}}`), 0o644))

	code, stdout, stderr := c.run(t, "", "check", "--seed", seed)
	require.Equal(t, 0, code, stdout+stderr)
	assert.Contains(t, stdout, "Checking fixture at")
	assert.Contains(t, stdout, "PASS  GET /api/Order returns a paginated envelope")
	assert.Contains(t, stdout, "6 passed, 0 failed")
}
