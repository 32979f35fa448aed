package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Version is reported in the initialize handshake.
var Version = "dev"

// Server exposes a loaded suite and its backends as MCP tools.
type Server struct {
	suite   *testcase.Suite
	runner  *runner.Runner
	targets map[string]runner.Target
	order   []string
	tools   []toolEntry
	log     zerolog.Logger

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a server over the suite. targets are the backends
// qv_run_case may address; the first is the default.
func NewServer(suite *testcase.Suite, r *runner.Runner, targets []runner.Target, log zerolog.Logger) *Server {
	s := &Server{
		suite:   suite,
		runner:  r,
		targets: make(map[string]runner.Target, len(targets)),
		tools:   allTools(),
		log:     log,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
	for _, t := range targets {
		s.targets[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	return s
}

// Serve reads one JSON-RPC message per line until stdin closes or ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(newErrorResponse(nil, ErrCodeParse, "parse error: "+err.Error()))
			continue
		}

		resp, reply := s.dispatch(ctx, &req)
		if reply {
			s.writeResponse(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}

// dispatch routes a request. Notifications get no reply.
func (s *Server) dispatch(ctx context.Context, req *Request) (Response, bool) {
	if req.JSONRPC != "2.0" {
		if req.IsNotification() {
			return Response{}, false
		}
		return newErrorResponse(req.ID, ErrCodeInvalidReq, "jsonrpc must be \"2.0\""), true
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req), true
	case "notifications/initialized":
		return Response{}, false
	case "ping":
		return newResponse(req.ID, map[string]any{}), true
	case "tools/list":
		return s.handleToolsList(req), true
	case "tools/call":
		return s.handleToolsCall(ctx, req), true
	default:
		if req.IsNotification() {
			return Response{}, false
		}
		return newErrorResponse(req.ID, ErrCodeNoMethod, "method not found: "+req.Method), true
	}
}

func (s *Server) handleInitialize(req *Request) Response {
	return newResponse(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "qv-mcp",
			"version": Version,
		},
	})
}

func (s *Server) handleToolsList(req *Request) Response {
	tools := make([]Tool, len(s.tools))
	for i, t := range s.tools {
		tools[i] = t.Tool
	}
	return newResponse(req.ID, map[string]any{"tools": tools})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, ErrCodeInvalidParams, "invalid params: "+err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage(`{}`)
	}

	for _, t := range s.tools {
		if t.Tool.Name == params.Name {
			s.log.Debug().Str("tool", params.Name).Msg("tool call")
			return newResponse(req.ID, t.Handler(ctx, s, params.Arguments))
		}
	}
	return newErrorResponse(req.ID, ErrCodeNoMethod, "unknown tool: "+params.Name)
}

func (s *Server) writeResponse(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		fmt.Fprintf(s.stdout, `{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":"internal marshal error"}}`+"\n", ErrCodeInternal)
		return
	}
	fmt.Fprintf(s.stdout, "%s\n", data)
}

// target resolves a backend by name, or the default when name is empty.
func (s *Server) target(name string) (runner.Target, error) {
	if name == "" {
		if len(s.order) == 0 {
			return runner.Target{}, fmt.Errorf("no backends configured")
		}
		name = s.order[0]
	}
	t, ok := s.targets[name]
	if !ok {
		return runner.Target{}, fmt.Errorf("unknown backend %q", name)
	}
	return t, nil
}
