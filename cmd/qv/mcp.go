package main

import (
	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var cases string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server over stdio for coding agents",
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
			targets, err := a.targets(m, nil)
			if err != nil {
				return err
			}

			mcp.Version = version
			srv := mcp.NewServer(suite, a.newRunner(m, 1), targets, a.log)
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cases, "cases", "", "case file or directory (default: manifest cases dir)")
	return cmd
}
