package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// CommandKind is an interactive navigation command.
type CommandKind int

const (
	CmdNext CommandKind = iota
	CmdPrev
	CmdGoto
	CmdData
	CmdNotify
	CmdQuit
	CmdHelp
)

// Command is a parsed line of interactive input.
type Command struct {
	Kind CommandKind
	// ID is the target test ID for CmdGoto.
	ID int
}

// ParseCommand maps an input line to a command. Blank input is next; any
// unrecognised input is help.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "", "n", "next":
		return Command{Kind: CmdNext}
	case "-", "p", "prev", "previous":
		return Command{Kind: CmdPrev}
	case "data", "d":
		return Command{Kind: CmdData}
	case "notify":
		return Command{Kind: CmdNotify}
	case "q", "quit", "exit":
		return Command{Kind: CmdQuit}
	}
	if id, err := strconv.Atoi(line); err == nil {
		return Command{Kind: CmdGoto, ID: id}
	}
	return Command{Kind: CmdHelp}
}

// SessionState is where the interactive loop stands.
type SessionState int

const (
	StateShowing SessionState = iota
	StateAwaitingInput
	StateDone
)

// CaseFunc executes and verifies one case.
type CaseFunc func(ctx context.Context, tc *testcase.TestCase) runner.Outcome

const helpText = `Commands:
  <enter>   next test
  -         previous test
  <id>      jump to the test with that ID
  data      show the full record dump
  notify    show warnings and errors reported by the backend
  q         quit
  h         this help
`

// Session walks a suite one case at a time. Cases execute the first time
// they are shown and are cached after that.
type Session struct {
	suite *testcase.Suite
	run   CaseFunc
	out   io.Writer

	pos   int
	state SessionState
	quit  bool
	cache map[int]runner.Outcome
}

// NewSession creates a session positioned on the first case.
func NewSession(suite *testcase.Suite, run CaseFunc, out io.Writer) *Session {
	return &Session{
		suite: suite,
		run:   run,
		out:   out,
		pos:   1,
		state: StateShowing,
		cache: make(map[int]runner.Outcome),
	}
}

// State returns the current state.
func (s *Session) State() SessionState { return s.state }

// Position returns the 1-based position of the current case.
func (s *Session) Position() int { return s.pos }

// Quit reports whether the session ended on a quit command.
func (s *Session) Quit() bool { return s.quit }

// Run drives the session from in until the user quits, input ends, the
// last case is passed, or ctx is cancelled. Cancellation returns at once,
// even while waiting for input.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	if s.suite.Len() == 0 {
		s.state = StateDone
		fmt.Fprintln(s.out, "No tests to run.")
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	lines, scanErr := readLines(in, done)

	for s.state != StateDone {
		if err := ctx.Err(); err != nil {
			s.stop()
			return err
		}
		if s.state == StateShowing {
			s.show(ctx)
			s.state = StateAwaitingInput
		}

		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			s.stop()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				s.stop()
				return <-scanErr
			}
			s.Apply(ctx, ParseCommand(line))
		}
	}
	return nil
}

func (s *Session) stop() {
	s.state = StateDone
	s.quit = true
}

// readLines scans in on its own goroutine. The reader is abandoned once
// done is closed; the scan error is delivered after lines is closed.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// Apply performs one state transition.
func (s *Session) Apply(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdNext:
		if s.pos >= s.suite.Len() {
			fmt.Fprintln(s.out, "End of tests.")
			s.state = StateDone
			return
		}
		s.pos++
		s.state = StateShowing
	case CmdPrev:
		if s.pos <= 1 {
			fmt.Fprintln(s.out, "Already at the first test.")
			return
		}
		s.pos--
		s.state = StateShowing
	case CmdGoto:
		pos, ok := s.suite.Position(cmd.ID)
		if !ok {
			fmt.Fprintf(s.out, "No test with ID %d.\n", cmd.ID)
			return
		}
		s.pos = pos
		s.state = StateShowing
	case CmdData:
		s.showData(ctx)
	case CmdNotify:
		s.showNotifications(ctx)
	case CmdQuit:
		s.quit = true
		s.state = StateDone
	default:
		fmt.Fprint(s.out, helpText)
	}
}

// Outcomes returns every case executed so far, in suite order.
func (s *Session) Outcomes() []runner.Outcome {
	ids := make([]int, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, _ := s.suite.Position(ids[i])
		pj, _ := s.suite.Position(ids[j])
		return pi < pj
	})
	out := make([]runner.Outcome, len(ids))
	for i, id := range ids {
		out[i] = s.cache[id]
	}
	return out
}

func (s *Session) current(ctx context.Context) runner.Outcome {
	tc, _ := s.suite.At(s.pos)
	if o, ok := s.cache[tc.ID]; ok {
		return o
	}
	o := s.run(ctx, tc)
	s.cache[tc.ID] = o
	return o
}

func (s *Session) show(ctx context.Context) {
	o := s.current(ctx)
	cells := Row(o)

	fmt.Fprintf(s.out, "\n[%d/%d]\n", s.pos, s.suite.Len())
	for i, col := range ConsoleColumns {
		if col == "Notes" {
			continue
		}
		fmt.Fprintf(s.out, "  %-12s %s\n", col+":", cells[i])
	}
	switch issues := o.Issues(); {
	case o.Status() != runner.StatusFail:
		if o.Skipped != "" {
			fmt.Fprintf(s.out, "  %-12s %s\n", "Notes:", o.Notes())
		}
	case len(issues) == 0:
		fmt.Fprintf(s.out, "  %-12s %s\n", "Notes:", o.Notes())
	default:
		fmt.Fprintf(s.out, "  %-12s\n", "Issues:")
		for _, issue := range issues {
			fmt.Fprintf(s.out, "    - %s\n", issue)
		}
	}
}

func (s *Session) showData(ctx context.Context) {
	o := s.current(ctx)
	if o.Result == nil {
		fmt.Fprintln(s.out, "No result.")
		return
	}
	dump := map[string]any{
		"data":   o.Result.Data,
		"fields": o.Verification.Fields,
	}
	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "cannot render data: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(b))
}

func (s *Session) showNotifications(ctx context.Context) {
	o := s.current(ctx)
	if o.Result == nil {
		fmt.Fprintln(s.out, "No result.")
		return
	}
	fmt.Fprintf(s.out, "Warnings: %d  Request warnings: %d  Errors: %d\n",
		o.Result.Warnings, o.Result.RequestWarnings, o.Result.Errors)
	for _, key := range []string{"warnings", "requestWarnings", "errors"} {
		r := gjson.GetBytes(o.Result.RawResponseBody, key)
		if !r.IsArray() || len(r.Array()) == 0 {
			continue
		}
		fmt.Fprintf(s.out, "%s:\n", key)
		for _, item := range r.Array() {
			fmt.Fprintf(s.out, "  - %s\n", item.String())
		}
	}
}
