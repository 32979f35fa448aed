// qv is the query result verification CLI. It runs declarative test cases
// against API backends and checks that returned records honour the
// requested sort, filter, pagination and CRUD semantics.
//
// Usage:
//
//	qv run [--backend b]... [--report fmt[:path]]...   Run the suite in batch mode
//	qv interactive [--backend b]                       Step through cases one at a time
//	qv verify --case file:id --response file           Verify a saved response offline
//	qv list [--category c]                             List loaded cases
//	qv check [--seed file]                             Check backends implement the admin contract
//	qv fixture [--port n] [--seed file]                Serve the in-memory reference backend
//	qv mcp                                             Start MCP server over stdio
//	qv version                                         Print the qv version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/config"
	"github.com/wondertwin-ai/qverify/internal/manifest"
	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case err != nil:
		fmt.Fprintf(stderr, "qv: %v\n", err)
		return 1
	}
	return 0
}

// app holds what every subcommand shares once flags are parsed.
type app struct {
	manifestPath string
	verbose      bool

	cfg *config.Config
	log zerolog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qv",
		Short:         "Verify that API query results honour sort, filter, pagination and CRUD semantics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.manifestPath, "config", "", "path to manifest (default: ./qv.json or ./qv.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(a),
		newInteractiveCmd(a),
		newVerifyCmd(a),
		newListCmd(a),
		newCheckCmd(a),
		newFixtureCmd(a),
		newMCPCmd(a),
		newVersionCmd(a),
	)
	return root
}

// init loads user config and builds the logger.
func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if a.verbose {
		level = zerolog.DebugLevel
	}

	out := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = a.stderr
		w.TimeFormat = time.TimeOnly
	})
	a.log = zerolog.New(out).Level(level).With().Timestamp().Logger()

	if a.manifestPath == "" {
		a.manifestPath = resolveManifestPath(cfg.Manifest)
	}
	return nil
}

// resolveManifestPath prefers qv.json over the default qv.yaml when it
// exists alongside it.
func resolveManifestPath(path string) string {
	base := filepath.Base(path)
	if base == "qv.yaml" || base == "qv.yml" {
		jsonPath := filepath.Join(filepath.Dir(path), "qv.json")
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath
		}
	}
	return path
}

func (a *app) loadManifest() (*manifest.Manifest, error) {
	return manifest.Load(a.manifestPath)
}

// loadSuite loads the case corpus at path, or the manifest's cases
// directory when path is empty.
func (a *app) loadSuite(m *manifest.Manifest, path string) (*testcase.Suite, error) {
	if path == "" {
		path = m.CasesPath()
	}
	s, err := testcase.Load(path)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("suite", s.Name).Int("cases", s.Len()).Str("path", path).Msg("cases loaded")
	return s, nil
}

// targets builds one target per named backend, or per manifest backend
// when names is empty.
func (a *app) targets(m *manifest.Manifest, names []string) ([]runner.Target, error) {
	if len(names) == 0 {
		names = m.BackendNames()
	}
	targets := make([]runner.Target, 0, len(names))
	for _, name := range names {
		b, err := m.Backend(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, runner.Target{
			Name:    name,
			Backend: b,
			Executor: client.New(b.BaseURL, client.Options{
				Timeout:  a.cfg.TimeoutDuration(),
				Retries:  a.cfg.Retries,
				AdminURL: b.AdminURL,
				Logger:   a.log.With().Str("backend", name).Logger(),
			}),
		})
	}
	return targets, nil
}

func (a *app) newRunner(m *manifest.Manifest, concurrency int) *runner.Runner {
	if concurrency <= 0 {
		concurrency = a.cfg.Concurrency
	}
	return runner.New(runner.Options{
		Verify:      verifyOptions(m),
		Concurrency: concurrency,
		Logger:      a.log,
	})
}

func verifyOptions(m *manifest.Manifest) verify.Options {
	return verify.Options{
		APIRoot:             m.APIRoot,
		PageAwarePagination: m.Verify.PageAwarePagination,
	}
}

func (a *app) failed() error {
	return &exitError{code: a.cfg.FailExitCode}
}
