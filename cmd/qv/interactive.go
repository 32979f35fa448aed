package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/report"
	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

func newInteractiveCmd(a *app) *cobra.Command {
	var backend, cases string
	cmd := &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Step through cases one at a time",
		Long: `Interactive shows one case at a time, executing each the first time it
is visited. Press enter for the next case, "-" for the previous one, a
case ID to jump, "data" or "notify" for details, and "q" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			suite, err := a.loadSuite(m, cases)
			if err != nil {
				return err
			}

			var names []string
			if backend != "" {
				names = []string{backend}
			}
			targets, err := a.targets(m, names)
			if err != nil {
				return err
			}
			t := targets[0]

			ctx := cmd.Context()
			r := a.newRunner(m, 1)
			if err := r.Setup(ctx, t, suite.Setup); err != nil {
				return err
			}

			start := time.Now()
			sess := report.NewSession(suite, func(ctx context.Context, tc *testcase.TestCase) runner.Outcome {
				return r.RunCase(ctx, t, tc)
			}, a.stdout)
			if err := sess.Run(ctx, a.stdin); err != nil && ctx.Err() == nil {
				return err
			}

			result := &runner.SuiteResult{
				Suite:    suite.Name,
				Backend:  t.Name,
				Outcomes: sess.Outcomes(),
				Duration: time.Since(start),
			}
			report.WriteTable(a.stdout, result, false)
			if !result.Passed() {
				return a.failed()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "backend to run against (default: first in the manifest)")
	cmd.Flags().StringVar(&cases, "cases", "", "case file or directory (default: manifest cases dir)")
	return cmd
}
