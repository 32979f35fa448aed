package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var categories []string
	var cases string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded cases and configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.loadManifest()
			if err != nil {
				return err
			}
			suite, err := a.loadSuite(m, cases)
			if err != nil {
				return err
			}
			suite = suite.Select(categories, nil)

			fmt.Fprintf(a.stdout, "Suite %s (%d cases)\n\n", suite.Name, suite.Len())
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCategory\tMethod\tURL\tDescription")
			for i := range suite.Cases {
				tc := &suite.Cases[i]
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", tc.ID, orDash(tc.Category), tc.HTTPMethod(), tc.URL, orDash(tc.Description))
			}
			tw.Flush()

			fmt.Fprintln(a.stdout, "\nBackends:")
			for _, name := range m.BackendNames() {
				b := m.Backends[name]
				fmt.Fprintf(a.stdout, "  %-20s %s  (%s)\n", name, b.BaseURL, b.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "only list cases in these categories")
	cmd.Flags().StringVar(&cases, "cases", "", "case file or directory (default: manifest cases dir)")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
