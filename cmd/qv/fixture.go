package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wondertwin-ai/qverify/internal/fixture"
	"github.com/wondertwin-ai/qverify/internal/manifest"
)

func newFixtureCmd(a *app) *cobra.Command {
	var port int
	var seed, apiRoot string
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve the in-memory reference backend",
		Long: `Fixture serves an in-memory backend that implements the query contract
(filter, sort, pagination, view, CRUD) plus /admin reset and state
endpoints. Use it to try a suite before pointing it at a real API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var initial fixture.State
			if seed != "" {
				st, err := fixture.LoadStateFile(seed)
				if err != nil {
					return fmt.Errorf("loading seed %s: %w", seed, err)
				}
				initial = st
			}
			db, err := fixture.NewDB(initial)
			if err != nil {
				return err
			}

			srv := fixture.NewServer(db, apiRoot, a.log)
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			return serveFixture(cmd.Context(), a, srv.Handler(), ln, db.Entities())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVar(&seed, "seed", "", "JSON state file to load at start and on every reset")
	cmd.Flags().StringVar(&apiRoot, "api-root", manifest.DefaultAPIRoot, "path segment collections are served under")
	return cmd
}

func serveFixture(ctx context.Context, a *app, h http.Handler, ln net.Listener, entities []string) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.log.Info().Str("addr", ln.Addr().String()).Strs("entities", entities).Msg("fixture listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.log.Info().Msg("fixture stopped")
	return nil
}
