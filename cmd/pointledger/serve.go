package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/pointledger/api"
	"github.com/yourusername/pointledger/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API over every ledger in the configuration. When the
configuration has a server.budget section every request is charged to
that ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler, err := a.handler()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, handler)
		},
	}
	cmd.Flags().String("addr", "", wrap("Address the API listens on; overrides server.addr (default :8080)"))
	return cmd
}

// handler builds the API router, with the budget middleware when configured
func (a *app) handler() (http.Handler, error) {
	config := api.RouterConfig{
		Registry: a.registry,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}

	if bc := a.config.Server.Budget; bc != nil {
		l, _ := a.registry.Ledger(bc.Ledger)
		keyFunc, err := middleware.ParseKeyExtractor(bc.KeyExtractor)
		if err != nil {
			return nil, err
		}
		budget, err := middleware.NewBudget(middleware.Config{
			Ledger:     l,
			Cost:       bc.Cost,
			Initial:    bc.Initial,
			KeyFunc:    keyFunc,
			AutoCreate: true,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, err
		}
		config.Charge = budget.Middleware
		a.logger.Info("request budget enabled", "ledger", bc.Ledger, "cost", bc.Cost, "initial", bc.Initial)
	}

	return api.NewRouter(config), nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
func (a *app) serve(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.config.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr, "ledgers", a.registry.Names())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
