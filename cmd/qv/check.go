package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/client"
	"github.com/wondertwin-ai/qverify/internal/conformance"
)

func newCheckCmd(a *app) *cobra.Command {
	var backends []string
	var seed string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that backends implement the admin and envelope contract",
		Long: `Check confirms each backend answers /admin/health, /admin/reset and
/admin/state, and, given a seed file, that its collections return
paginated envelopes and that reset restores the pre-seed state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			targets, err := a.targets(m, backends)
			if err != nil {
				return err
			}

			failed := 0
			for _, t := range targets {
				c, ok := t.Executor.(*client.Client)
				if !ok {
					return fmt.Errorf("backend %s: no admin client", t.Name)
				}
				fmt.Fprintf(a.stdout, "Checking %s at %s...\n\n", t.Name, t.Backend.BaseURL)
				report := conformance.Run(cmd.Context(), t.Name, c, conformance.Options{
					APIRoot:       m.APIRoot,
					Seed:          seed,
					HealthTimeout: wait,
				})
				for _, r := range report.Results {
					if r.Passed {
						fmt.Fprintf(a.stdout, "  PASS  %s\n", r.Name)
					} else {
						fmt.Fprintf(a.stdout, "  FAIL  %s\n", r.Name)
						fmt.Fprintf(a.stdout, "        %s\n", r.Detail)
					}
				}
				fmt.Fprintf(a.stdout, "\n%d passed, %d failed\n\n", report.Passed, report.Failed)
				failed += report.Failed
			}
			if failed > 0 {
				return a.failed()
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&backends, "backend", "b", nil, "backend to check (repeatable; default all)")
	cmd.Flags().StringVar(&seed, "seed", "", "state file to load for the envelope checks")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for a healthy backend")
	return cmd
}
