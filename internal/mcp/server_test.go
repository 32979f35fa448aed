package mcp

import (
	"bufio"
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/fixture"
	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
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

	suite, err := testcase.NewSuite("users", []testcase.TestCase{
		{ID: 1, URL: "/api/User?sort=username", ExpectedStatus: 200, Category: "sort"},
		{ID: 2, URL: "/api/User?filter=age:gt:30", ExpectedStatus: 200, Category: "filter"},
	})
	require.NoError(t, err)

	r := runner.New(runner.Options{Logger: zerolog.Nop()})
	targets := []runner.Target{{
		Name:     "fixture",
		Executor: client.New(srv.URL, client.Options{Logger: zerolog.Nop()}),
	}}
	return NewServer(suite, r, targets, zerolog.Nop())
}

// roundTrip feeds lines to the server and returns the decoded responses.
func roundTrip(t *testing.T, s *Server, lines ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	s.stdin = strings.NewReader(strings.Join(lines, "\n") + "\n")
	s.stdout = &out
	require.NoError(t, s.Serve(context.Background()))

	var resps []Response
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		resps = append(resps, r)
	}
	return resps
}

func toolText(t *testing.T, r Response) (string, bool) {
	t.Helper()
	require.Nil(t, r.Error)
	raw, err := json.Marshal(r.Result)
	require.NoError(t, err)
	var res ToolResult
	require.NoError(t, json.Unmarshal(raw, &res))
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestInitializeAndList(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, resps, 2)
	assert.JSONEq(t, `1`, string(resps[0].ID))

	info := resps[0].Result.(map[string]any)
	assert.Equal(t, "2024-11-05", info["protocolVersion"])

	tools := resps[1].Result.(map[string]any)["tools"].([]any)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"qv_list_cases", "qv_run_case", "qv_verify_response", "qv_reset_backend"}, names)
}

func TestProtocolErrors(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"nope"}`,
		`{"jsonrpc":"1.0","id":4,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"missing"}}`,
		`{"jsonrpc":"2.0","method":"unknown/notification"}`,
	)
	require.Len(t, resps, 4)
	assert.Equal(t, ErrCodeParse, resps[0].Error.Code)
	assert.Equal(t, ErrCodeNoMethod, resps[1].Error.Code)
	assert.Equal(t, ErrCodeInvalidReq, resps[2].Error.Code)
	assert.Equal(t, ErrCodeNoMethod, resps[3].Error.Code)
}

func TestListCasesTool(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"qv_list_cases","arguments":{"category":"filter"}}}`,
	)
	text, isErr := toolText(t, resps[0])
	assert.False(t, isErr)

	var cases []caseSummary
	require.NoError(t, json.Unmarshal([]byte(text), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, 2, cases[0].ID)
	assert.Equal(t, "GET", cases[0].Method)
}

func TestRunCaseTool(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"qv_run_case","arguments":{"id":1}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"qv_run_case","arguments":{"id":1,"backend":"other"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"qv_run_case","arguments":{"id":42}}}`,
	)
	require.Len(t, resps, 3)

	text, isErr := toolText(t, resps[0])
	require.False(t, isErr, text)
	var rep caseReport
	require.NoError(t, json.Unmarshal([]byte(text), &rep))
	assert.Equal(t, "PASS", rep.Result)
	assert.Equal(t, 200, rep.Status)
	assert.Equal(t, []any{"alice", "bob", "carol"}, rep.Fields["sort_username"])

	text, isErr = toolText(t, resps[1])
	assert.True(t, isErr)
	assert.Contains(t, text, `unknown backend "other"`)

	text, isErr = toolText(t, resps[2])
	assert.True(t, isErr)
	assert.Contains(t, text, "no test case with id 42")
}

func TestVerifyResponseTool(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"qv_verify_response","arguments":{"id":2,"status":200,"body":{"data":[{"age":29}]}}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"qv_verify_response","arguments":{"url":"/api/User?sort=-age","status":200,"body":"{\"data\":[{\"age\":41},{\"age\":35}],\"pagination\":{\"page\":1,\"pageSize\":20,\"total\":2,\"totalPages\":1}}"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"qv_verify_response","arguments":{"status":200,"body":{}}}}`,
	)
	require.Len(t, resps, 3)

	text, isErr := toolText(t, resps[0])
	require.False(t, isErr, text)
	var rep caseReport
	require.NoError(t, json.Unmarshal([]byte(text), &rep))
	assert.Equal(t, "FAIL", rep.Result)
	require.NotEmpty(t, rep.Issues)
	assert.Contains(t, rep.Issues[0], "Filter field 'age'")

	text, isErr = toolText(t, resps[1])
	require.False(t, isErr, text)
	rep = caseReport{}
	require.NoError(t, json.Unmarshal([]byte(text), &rep))
	assert.Equal(t, "PASS", rep.Result)

	_, isErr = toolText(t, resps[2])
	assert.True(t, isErr)
}

func TestResetBackendTool(t *testing.T) {
	s := newTestServer(t)
	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"qv_reset_backend","arguments":{}}}`,
	)
	text, isErr := toolText(t, resps[0])
	assert.False(t, isErr, text)
	assert.Equal(t, "fixture reset (0 seed files loaded)", text)
}
