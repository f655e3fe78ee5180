package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/recoverypulse/internal/server"
)

const (
	shutdownTimeout      = 5 * time.Second
	rateLimitCleanupTick = 5 * time.Minute
)

type ServeOptions struct {
	*RootOptions
	Port      string
	WSOrigins []string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the JSON API, the /ws live-update socket and /metrics.

Example:
  recoverypulse serve --port 8080
  PULSE_BILLING_PROVIDER=stripe recoverypulse serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, opts.RootOptions, func(a *app) error {
				return runServe(ctx, a, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port (overrides config)")
	cmd.Flags().StringSliceVar(&opts.WSOrigins, "ws-origin", nil, "extra origin patterns allowed to open /ws")

	return cmd
}

func runServe(ctx context.Context, a *app, opts *ServeOptions) error {
	if opts.Port != "" {
		a.cfg.Port = opts.Port
	}

	// Load prices and entitlement before the first request.
	if st := a.access.Subscription().Refresh(ctx); st.Error != "" {
		a.logger.Warn("initial subscription refresh failed", "error", st.Error)
	}

	srv := server.New(server.Deps{
		Recovery:       a.recovery,
		Access:         a.access,
		Onboarding:     a.onboarding,
		Settings:       a.settings,
		Snapshots:      a.snapshots,
		Metrics:        a.metrics,
		Logger:         a.logger,
		Now:            a.now,
		AdminRateLimit: a.cfg.AdminRateLimit,
		WSOrigins:      opts.WSOrigins,
	})
	go srv.RateLimiter().Run(ctx, rateLimitCleanupTick)

	httpServer := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", httpServer.Addr, "billing", a.cfg.Billing.Provider, "snapshots", a.snapshots.Enabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	srv.Hub().Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	return nil
}
