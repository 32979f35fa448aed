package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/report"
	"github.com/wondertwin-ai/qverify/internal/runner"
)

type runOptions struct {
	backends    []string
	reports     []string
	categories  []string
	ids         []int
	cases       string
	showAll     bool
	concurrency int
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the suite against one or more backends",
		Long: `Run executes every case against each selected backend, verifies the
responses, and writes the configured reports. The exit status is the
configured fail_exit_code when any case fails on any backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSuite(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&o.backends, "backend", "b", nil, "backend to run against (repeatable; default all)")
	f.StringArrayVarP(&o.reports, "report", "r", nil, "report output as format[:path]; formats: console, json, junit, excel (repeatable)")
	f.StringSliceVar(&o.categories, "category", nil, "only run cases in these categories")
	f.IntSliceVar(&o.ids, "id", nil, "only run cases with these IDs")
	f.StringVar(&o.cases, "cases", "", "case file or directory (default: manifest cases dir)")
	f.BoolVar(&o.showAll, "show-all", false, "list passing and skipped cases in the console table")
	f.IntVar(&o.concurrency, "concurrency", 0, "cases run at once per backend (default from config)")
	return cmd
}

func runSuite(cmd *cobra.Command, a *app, o runOptions) error {
	specs, err := report.ParseReportSpecs(o.reports)
	if err != nil {
		return err
	}

	m, err := a.loadManifest()
	if err != nil {
		return err
	}
	suite, err := a.loadSuite(m, o.cases)
	if err != nil {
		return err
	}
	suite = suite.Select(o.categories, o.ids)

	targets, err := a.targets(m, o.backends)
	if err != nil {
		return err
	}

	group, err := report.NewReporterGroup(specs, report.Options{
		ShowAll: o.showAll || a.cfg.ShowAll,
		Out:     a.stdout,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	r := a.newRunner(m, o.concurrency)
	a.log.Info().Str("run_id", group.RunID()).Str("suite", suite.Name).Int("cases", suite.Len()).
		Int("backends", len(targets)).Msg("run started")

	results, runErr := r.RunAll(ctx, targets, suite)
	for _, res := range results {
		group.HandleSuiteResult(res)
		if !group.HasConsole() {
			passed, failed, skipped := res.Counts()
			fmt.Fprintf(a.stdout, "%s on %s: %d passed, %d failed, %d skipped\n",
				res.Suite, res.Backend, passed, failed, skipped)
		}
	}

	if err := group.Flush(); err != nil {
		return err
	}
	if runErr != nil || !runner.AllPassed(results) {
		return a.failed()
	}
	return nil
}
