package runner

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/fixture"
	"github.com/wondertwin-ai/qverify/internal/manifest"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

const seedJSON = `{
  "schema": {"User": {"required": ["username"], "unique": ["email"]}},
  "data": {
    "User": [
      {"id": 1, "username": "carol", "gender": "female", "age": 41, "email": "c@x"},
      {"id": 2, "username": "alice", "gender": "female", "age": 29, "email": "a@x"},
      {"id": 3, "username": "bob", "gender": "male", "age": 35, "email": "b@x"}
    ]
  }
}`

func startFixture(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o644))

	db, err := fixture.NewDB(fixture.State{})
	require.NoError(t, err)
	srv := httptest.NewServer(fixture.NewServer(db, "api", zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, seed
}

func suite(t *testing.T, seed string) *testcase.Suite {
	t.Helper()
	s, err := testcase.NewSuite("users", []testcase.TestCase{
		{ID: 1, URL: "/api/User?sort=username", ExpectedStatus: 200, Category: "sort"},
		{ID: 2, URL: "/api/User?filter=gender:male", ExpectedStatus: 200, Category: "filter"},
		{ID: 3, URL: "/api/User?page=1&pageSize=2", ExpectedStatus: 200, Category: "pagination"},
		{ID: 4, URL: "/api/User/99", ExpectedStatus: 404, Category: "crud",
			ExpectedData: &testcase.ExpectedData{ExpectedErrorType: testcase.ErrorNotFound}},
		{ID: 5, URL: "/api/User", Method: "POST", ExpectedStatus: 201, Category: "crud",
			Body: map[string]any{"username": "dave", "email": "d@x", "age": 23},
			ExpectedData: &testcase.ExpectedData{
				ShouldContainFields: []string{"id"},
				ExpectedFields:      map[string]any{"username": "dave", "age": 23},
			}},
		{ID: 6, URL: "/api/User", Method: "POST", ExpectedStatus: 409, Category: "crud",
			Body:         map[string]any{"username": "again", "email": "a@x"},
			ExpectedData: &testcase.ExpectedData{ExpectedErrorType: testcase.ErrorConstraint}},
		{ID: 7, URL: "/api/User?filter=username:ali&match=fuzzy", Backends: []string{"fixture"}},
	})
	require.NoError(t, err)
	s.Setup = testcase.Setup{Reset: true, Seed: []string{seed}}
	return s
}

func target(srv *httptest.Server) Target {
	return Target{
		Name:     "fixture",
		Executor: client.New(srv.URL, client.Options{Logger: zerolog.Nop()}),
	}
}

func TestRunAgainstFixture(t *testing.T) {
	srv, seed := startFixture(t)
	r := New(Options{Logger: zerolog.Nop()})

	res, err := r.Run(context.Background(), target(srv), suite(t, seed))
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 7)

	for _, o := range res.Outcomes {
		assert.Equal(t, StatusPass, o.Status(), "case %d: %s", o.Case.ID, o.Notes())
	}
	assert.True(t, res.Passed())
	passed, failed, skipped := res.Counts()
	assert.Equal(t, [3]int{7, 0, 0}, [3]int{passed, failed, skipped})
}

func TestRunConcurrentKeepsOrder(t *testing.T) {
	srv, seed := startFixture(t)
	r := New(Options{Concurrency: 4, Logger: zerolog.Nop()})

	s := suite(t, seed)
	s = s.Select([]string{"sort", "filter", "pagination"}, nil)

	res, err := r.Run(context.Background(), target(srv), s)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	for i, o := range res.Outcomes {
		assert.Equal(t, i+1, o.Case.ID)
		assert.True(t, o.Passed(), o.Notes())
	}
}

func TestRunCaseSkips(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	exec := &fakeExecutor{}

	tc := &testcase.TestCase{ID: 1, URL: "/api/User", Backends: []string{"other"}}
	o := r.RunCase(context.Background(), Target{Name: "fixture", Executor: exec}, tc)
	assert.Equal(t, StatusSkip, o.Status())

	tc = &testcase.TestCase{ID: 2, URL: "/api/User", Params: testcase.Params{Match: testcase.MatchFuzzy}}
	t2 := Target{
		Name:     "strict",
		Backend:  manifest.Backend{Match: []testcase.MatchStrategy{testcase.MatchExact}},
		Executor: exec,
	}
	o = r.RunCase(context.Background(), t2, tc)
	assert.Equal(t, StatusSkip, o.Status())
	assert.Contains(t, o.Notes(), "fuzzy")
	assert.Zero(t, exec.calls.Load())
}

func TestRunCaseFrameworkError(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	exec := &fakeExecutor{err: errors.New("connection refused")}

	o := r.RunCase(context.Background(), Target{Name: "x", Executor: exec}, &testcase.TestCase{ID: 9, URL: "/api/User"})
	assert.Equal(t, StatusFail, o.Status())
	assert.Contains(t, o.Notes(), FrameworkErrorNote)
	assert.Zero(t, o.ActualStatus())
}

func TestRunStatusMismatch(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	exec := &fakeExecutor{res: &testcase.Result{StatusCode: 500}}

	o := r.RunCase(context.Background(), Target{Name: "x", Executor: exec},
		&testcase.TestCase{ID: 1, URL: "/api/User/1", ExpectedStatus: 200})
	assert.Equal(t, StatusFail, o.Status())
	assert.Equal(t, "Expected status 200 but got 500", o.Notes())
	assert.True(t, o.Verification.Passed)
}

func TestRunSetupFailureAborts(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	exec := &fakeExecutor{resetErr: errors.New("down")}
	s, err := testcase.NewSuite("s", []testcase.TestCase{{URL: "/api/User"}})
	require.NoError(t, err)
	s.Setup.Reset = true

	_, err = r.Run(context.Background(), Target{Name: "x", Executor: exec}, s)
	assert.ErrorContains(t, err, "setup failed")
	assert.Zero(t, exec.calls.Load())
}

func TestRunCancelled(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	exec := &fakeExecutor{res: &testcase.Result{StatusCode: 200}}
	s, err := testcase.NewSuite("s", []testcase.TestCase{{URL: "/api/User/1"}, {URL: "/api/User/2"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Run(ctx, Target{Name: "x", Executor: exec}, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Outcomes)
}

func TestRunAll(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	good := Target{Name: "good", Executor: &fakeExecutor{res: &testcase.Result{StatusCode: 200}}}
	bad := Target{Name: "bad", Executor: &fakeExecutor{res: &testcase.Result{StatusCode: 500}}}
	s, err := testcase.NewSuite("s", []testcase.TestCase{{URL: "/api/User/1", ExpectedStatus: 200}})
	require.NoError(t, err)

	results, err := r.RunAll(context.Background(), []Target{good, bad}, s)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed())
	assert.False(t, results[1].Passed())
	assert.False(t, AllPassed(results))
}

func TestRunAllContinuesAfterSetupFailure(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	down := Target{Name: "down", Executor: &fakeExecutor{resetErr: errors.New("refused")}}
	up := &fakeExecutor{res: &testcase.Result{StatusCode: 200}}
	s, err := testcase.NewSuite("s", []testcase.TestCase{{URL: "/api/User/1", ExpectedStatus: 200}})
	require.NoError(t, err)
	s.Setup = testcase.Setup{Reset: true}

	results, err := r.RunAll(context.Background(), []Target{down, {Name: "up", Executor: up}}, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	require.Len(t, results, 1)
	assert.Equal(t, "up", results[0].Backend)
	assert.True(t, results[0].Passed())
	assert.EqualValues(t, 1, up.calls.Load())
}

type fakeExecutor struct {
	res      *testcase.Result
	err      error
	resetErr error
	calls    atomic.Int32
}

func (f *fakeExecutor) Execute(ctx context.Context, tc *testcase.TestCase) (*testcase.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.res
	return &cp, nil
}

func (f *fakeExecutor) Reset(ctx context.Context) error             { return f.resetErr }
func (f *fakeExecutor) Seed(ctx context.Context, path string) error { return nil }
