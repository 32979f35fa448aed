package mcp

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Tool describes an MCP tool definition.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ToolResult is returned from tool invocations.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

func errorResult(format string, args ...any) ToolResult {
	r := textResult(fmt.Sprintf(format, args...))
	r.IsError = true
	return r
}

func jsonResult(v any) ToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encoding result: %v", err)
	}
	return textResult(string(b))
}

type toolHandler func(ctx context.Context, s *Server, params json.RawMessage) ToolResult

type toolEntry struct {
	Tool    Tool
	Handler toolHandler
}

func allTools() []toolEntry {
	return []toolEntry{
		{
			Tool: Tool{
				Name:        "qv_list_cases",
				Description: "List the loaded test cases with their ID, method, URL and category. Optionally restrict to one category.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {"category": {"type": "string", "description": "Only list cases in this category (optional)"}}, "required": []}`),
			},
			Handler: handleListCases,
		},
		{
			Tool: Tool{
				Name:        "qv_run_case",
				Description: "Execute one test case against a backend and verify the response. Returns the verdict, issues and extracted field values.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {"id": {"type": "integer", "description": "Test case ID"}, "backend": {"type": "string", "description": "Backend name from the manifest (optional; defaults to the first)"}}, "required": ["id"]}`),
			},
			Handler: handleRunCase,
		},
		{
			Tool: Tool{
				Name:        "qv_verify_response",
				Description: "Verify a response body you already have against a test case, without sending any request. Identify the case by 'id', or describe it inline with 'url' and optional 'method' and 'expected_status'.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {"id": {"type": "integer", "description": "Test case ID (optional when url is given)"}, "url": {"type": "string", "description": "Request URL with query string"}, "method": {"type": "string"}, "expected_status": {"type": "integer"}, "status": {"type": "integer", "description": "Observed HTTP status code"}, "body": {"description": "Observed response body, as a JSON value or a string"}}, "required": ["status", "body"]}`),
			},
			Handler: handleVerifyResponse,
		},
		{
			Tool: Tool{
				Name:        "qv_reset_backend",
				Description: "Reset a backend and reload the suite's seed files through its admin API.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {"backend": {"type": "string", "description": "Backend name (optional; defaults to the first)"}}, "required": []}`),
			},
			Handler: handleResetBackend,
		},
	}
}

type caseSummary struct {
	ID          int    `json:"id"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

func handleListCases(_ context.Context, s *Server, params json.RawMessage) ToolResult {
	var args struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}

	suite := s.suite
	if args.Category != "" {
		suite = suite.Select([]string{args.Category}, nil)
	}
	out := make([]caseSummary, 0, suite.Len())
	for i := range suite.Cases {
		tc := &suite.Cases[i]
		out = append(out, caseSummary{
			ID:          tc.ID,
			Method:      tc.HTTPMethod(),
			URL:         tc.URL,
			Category:    tc.Category,
			Description: tc.Description,
		})
	}
	return jsonResult(out)
}

type caseReport struct {
	ID      int            `json:"id"`
	Backend string         `json:"backend,omitempty"`
	Status  int            `json:"status,omitempty"`
	Result  string         `json:"result"`
	Issues  []string       `json:"issues,omitempty"`
	Notes   string         `json:"notes,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func report(o runner.Outcome) caseReport {
	return caseReport{
		ID:      o.Case.ID,
		Backend: o.Backend,
		Status:  o.ActualStatus(),
		Result:  o.Status().String(),
		Issues:  o.Issues(),
		Notes:   o.Notes(),
		Fields:  o.Verification.Fields,
	}
}

func handleRunCase(ctx context.Context, s *Server, params json.RawMessage) ToolResult {
	var args struct {
		ID      int    `json:"id"`
		Backend string `json:"backend"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	tc, ok := s.suite.Case(args.ID)
	if !ok {
		return errorResult("no test case with id %d", args.ID)
	}
	t, err := s.target(args.Backend)
	if err != nil {
		return errorResult("%v", err)
	}
	return jsonResult(report(s.runner.RunCase(ctx, t, tc)))
}

func handleVerifyResponse(_ context.Context, s *Server, params json.RawMessage) ToolResult {
	var args struct {
		ID             int             `json:"id"`
		URL            string          `json:"url"`
		Method         string          `json:"method"`
		ExpectedStatus int             `json:"expected_status"`
		Status         int             `json:"status"`
		Body           json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}

	var tc *testcase.TestCase
	switch {
	case args.ID != 0:
		found, ok := s.suite.Case(args.ID)
		if !ok {
			return errorResult("no test case with id %d", args.ID)
		}
		tc = found
	case args.URL != "":
		tc = &testcase.TestCase{URL: args.URL, Method: args.Method, ExpectedStatus: args.ExpectedStatus}
		if err := tc.ResolveParams(); err != nil {
			return errorResult("invalid url: %v", err)
		}
	default:
		return errorResult("either id or url is required")
	}

	res, err := client.ParseResponse(args.Status, responseBody(args.Body))
	if err != nil {
		return errorResult("%v", err)
	}
	o := runner.Outcome{Case: tc, Result: res, Verification: s.runner.Verifier().Verify(tc, res)}
	return jsonResult(report(o))
}

// responseBody accepts the body as an embedded JSON value or as a string
// holding the raw text.
func responseBody(raw json.RawMessage) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return []byte(text)
		}
	}
	return []byte(trimmed)
}

func handleResetBackend(ctx context.Context, s *Server, params json.RawMessage) ToolResult {
	var args struct {
		Backend string `json:"backend"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	t, err := s.target(args.Backend)
	if err != nil {
		return errorResult("%v", err)
	}

	setup := s.suite.Setup
	setup.Reset = true
	if err := s.runner.Setup(ctx, t, setup); err != nil {
		return errorResult("%v", err)
	}
	return textResult(fmt.Sprintf("%s reset (%d seed files loaded)", t.Name, len(setup.Seed)))
}
