// Package runner drives a suite of test cases against one or more backends:
// it performs suite setup, executes each case, verifies the result, and
// collects ordered outcomes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wondertwin-ai/qverify/internal/manifest"
	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

// Executor performs requests against a backend. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, tc *testcase.TestCase) (*testcase.Result, error)
	Reset(ctx context.Context) error
	Seed(ctx context.Context, path string) error
}

// Target is a named backend under test.
type Target struct {
	Name     string
	Backend  manifest.Backend
	Executor Executor
}

// Options configure a Runner.
type Options struct {
	Verify verify.Options
	// Concurrency bounds how many cases run at once; 1 or less is sequential.
	Concurrency int
	Logger      zerolog.Logger
}

// Runner executes suites. It holds no per-run state and may be reused.
type Runner struct {
	verifier    *verify.Verifier
	concurrency int
	log         zerolog.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	return &Runner{
		verifier:    verify.New(opts.Verify),
		concurrency: max(opts.Concurrency, 1),
		log:         opts.Logger,
	}
}

// Verifier returns the engine the runner judges results with.
func (r *Runner) Verifier() *verify.Verifier { return r.verifier }

// Setup resets and seeds the target before its cases run.
func (r *Runner) Setup(ctx context.Context, t Target, setup testcase.Setup) error {
	if setup.Reset {
		if err := t.Executor.Reset(ctx); err != nil {
			return fmt.Errorf("reset %s: %w", t.Name, err)
		}
		r.log.Debug().Str("backend", t.Name).Msg("backend reset")
	}
	for _, path := range setup.Seed {
		if err := t.Executor.Seed(ctx, path); err != nil {
			return fmt.Errorf("seed %s: %w", t.Name, err)
		}
		r.log.Debug().Str("backend", t.Name).Str("file", path).Msg("backend seeded")
	}
	return nil
}

// Run executes every case of s against t. Setup failures abort the suite;
// per-case failures never do. The outcomes keep suite order even when cases
// run concurrently.
func (r *Runner) Run(ctx context.Context, t Target, s *testcase.Suite) (*SuiteResult, error) {
	start := time.Now()
	result := &SuiteResult{Suite: s.Name, Backend: t.Name}

	if err := r.Setup(ctx, t, s.Setup); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	outcomes := make([]Outcome, len(s.Cases))
	if r.concurrency == 1 {
		for i := range s.Cases {
			if err := ctx.Err(); err != nil {
				result.Outcomes = outcomes[:i]
				result.Duration = time.Since(start)
				return result, err
			}
			outcomes[i] = r.RunCase(ctx, t, &s.Cases[i])
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i := range s.Cases {
			i := i
			g.Go(func() error {
				outcomes[i] = r.RunCase(gctx, t, &s.Cases[i])
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			result.Outcomes = outcomes
			result.Duration = time.Since(start)
			return result, err
		}
	}

	result.Outcomes = outcomes
	result.Duration = time.Since(start)
	return result, nil
}

// RunAll runs s against each target in turn. A target whose setup fails
// is reported in the returned error and the remaining targets still run;
// cancellation of ctx stops the loop.
func (r *Runner) RunAll(ctx context.Context, targets []Target, s *testcase.Suite) ([]*SuiteResult, error) {
	results := make([]*SuiteResult, 0, len(targets))
	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := r.Run(ctx, t, s)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			r.log.Error().Err(err).Str("backend", t.Name).Msg("suite aborted")
			errs = append(errs, fmt.Errorf("backend %s: %w", t.Name, err))
		}
	}
	return results, errors.Join(errs...)
}

// RunCase executes and verifies a single case. A transport or decoding
// failure is recorded on the outcome rather than returned.
func (r *Runner) RunCase(ctx context.Context, t Target, tc *testcase.TestCase) Outcome {
	o := Outcome{Backend: t.Name, Case: tc}

	if !tc.RunsOn(t.Name) {
		o.Skipped = fmt.Sprintf("not applicable to backend %s", t.Name)
		return o
	}
	if !t.Backend.Supports(tc.Params.Match) {
		o.Skipped = fmt.Sprintf("match strategy %s not supported by backend %s", tc.Params.Match, t.Name)
		return o
	}

	res, err := t.Executor.Execute(ctx, tc)
	if err != nil {
		o.Err = err
		r.log.Warn().Err(err).
			Int("case_id", tc.ID).
			Str("backend", t.Name).
			Str("url", tc.URL).
			Msg("framework error")
		return o
	}

	o.Result = res
	o.Verification = r.verifier.Verify(tc, res)

	r.log.Debug().
		Int("case_id", tc.ID).
		Str("backend", t.Name).
		Str("method", tc.HTTPMethod()).
		Str("url", tc.URL).
		Int("status", res.StatusCode).
		Dur("duration", res.Duration).
		Bool("passed", o.Passed()).
		Msg("case verified")
	return o
}
