// Package conformance checks that a backend implements the admin and
// response envelope contract the runner relies on: health, reset, state
// load and snapshot, and paginated collection envelopes.
package conformance

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

// Backend is the surface the checks exercise. *client.Client implements it.
type Backend interface {
	Health(ctx context.Context) (bool, string)
	Reset(ctx context.Context) error
	Seed(ctx context.Context, path string) error
	State(ctx context.Context) ([]byte, error)
	Execute(ctx context.Context, tc *testcase.TestCase) (*testcase.Result, error)
}

// Result is one named check and whether the backend satisfied it.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Report collects every check run against one backend, in order.
type Report struct {
	Backend string
	Results []Result
	Passed  int
	Failed  int
}

// Options configure a run.
type Options struct {
	APIRoot string
	// Seed is a state file to load. Envelope checks run for each entity it
	// declares; without it only the admin checks run.
	Seed string
	// HealthTimeout bounds how long to wait for a healthy backend.
	HealthTimeout time.Duration
}

// Run executes the conformance checks against a backend.
func Run(ctx context.Context, name string, b Backend, opts Options) *Report {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	root := strings.Trim(opts.APIRoot, "/")
	if root == "" {
		root = verify.DefaultAPIRoot
	}

	report := &Report{Backend: name}
	report.add(checkHealth(ctx, b, opts.HealthTimeout))

	// Nothing else can pass against an unhealthy backend.
	if report.Results[0].Passed {
		report.add(checkReset(ctx, b))
		report.add(checkStateGet(ctx, b))

		if opts.Seed != "" {
			entities, err := seedEntities(opts.Seed)
			if err != nil {
				report.add(Result{Name: "Seed file declares entities", Detail: err.Error()})
			} else {
				baseline := make(map[string]int, len(entities))
				for _, e := range entities {
					baseline[e], _ = total(ctx, b, root, e)
				}

				report.add(checkSeed(ctx, b, opts.Seed))
				for _, e := range entities {
					report.add(checkEnvelope(ctx, b, root, e))
				}
				report.add(checkResetRestores(ctx, b, root, baseline))
			}
		}
	}

	for _, r := range report.Results {
		if r.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	return report
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

func checkHealth(ctx context.Context, b Backend, timeout time.Duration) Result {
	name := fmt.Sprintf("GET /admin/health returns 200 within %s", timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last string
	for {
		ok, detail := b.Health(ctx)
		if ok {
			return Result{Name: name, Passed: true, Detail: "backend healthy"}
		}
		last = detail
		select {
		case <-ctx.Done():
			return Result{Name: name, Detail: "not healthy: " + last}
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func checkReset(ctx context.Context, b Backend) Result {
	name := "POST /admin/reset returns 200"
	if err := b.Reset(ctx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "reset accepted"}
}

func checkStateGet(ctx context.Context, b Backend) Result {
	name := "GET /admin/state returns valid JSON"
	data, err := b.State(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !gjson.ValidBytes(data) {
		return Result{Name: name, Detail: "response body is not valid JSON"}
	}
	return Result{Name: name, Passed: true, Detail: "state snapshot is valid JSON"}
}

func checkSeed(ctx context.Context, b Backend, path string) Result {
	name := "POST /admin/state accepts the seed file"
	if err := b.Seed(ctx, path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "seed accepted"}
}

func checkEnvelope(ctx context.Context, b Backend, root, entity string) Result {
	tc := collection(root, entity)
	name := fmt.Sprintf("GET %s returns a paginated envelope", tc.URL)

	res, err := b.Execute(ctx, tc)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if res.StatusCode != 200 {
		return Result{Name: name, Detail: fmt.Sprintf("expected 200, got %d", res.StatusCode)}
	}
	if issues := verify.VerifyPagination(tc, res, root, false); len(issues) > 0 {
		return Result{Name: name, Detail: strings.Join(issues, "; ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d records on the first page", len(res.Data))}
}

func checkResetRestores(ctx context.Context, b Backend, root string, baseline map[string]int) Result {
	name := "POST /admin/reset restores the baseline state"
	if err := b.Reset(ctx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	for entity, want := range baseline {
		got, err := total(ctx, b, root, entity)
		if err != nil {
			return Result{Name: name, Detail: err.Error()}
		}
		if got != want {
			return Result{Name: name, Detail: fmt.Sprintf("%s: expected %d records after reset, got %d", entity, want, got)}
		}
	}
	return Result{Name: name, Passed: true, Detail: "record totals match the pre-seed baseline"}
}

// total returns the pagination total of an entity's collection. A missing
// collection counts as empty.
func total(ctx context.Context, b Backend, root, entity string) (int, error) {
	res, err := b.Execute(ctx, collection(root, entity))
	if err != nil {
		return 0, err
	}
	if res.StatusCode == 404 {
		return 0, nil
	}
	p, ok := verify.ParsePagination(res.RawResponseBody)
	if !ok {
		return len(res.Data), nil
	}
	return p.Total, nil
}

func collection(root, entity string) *testcase.TestCase {
	return &testcase.TestCase{URL: "/" + root + "/" + entity}
}

// seedEntities lists the entity names under "data" in a state file.
func seedEntities(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("seed file %s has no \"data\" object", path)
	}
	var names []string
	data.ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("seed file %s declares no entities", path)
	}
	return names, nil
}
