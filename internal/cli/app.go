package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/recoverypulse/internal/access"
	"github.com/dukerupert/recoverypulse/internal/billing"
	billingstripe "github.com/dukerupert/recoverypulse/internal/billing/stripe"
	"github.com/dukerupert/recoverypulse/internal/config"
	"github.com/dukerupert/recoverypulse/internal/database"
	"github.com/dukerupert/recoverypulse/internal/logging"
	"github.com/dukerupert/recoverypulse/internal/metrics"
	"github.com/dukerupert/recoverypulse/internal/recovery"
	"github.com/dukerupert/recoverypulse/internal/snapshot"
	"github.com/dukerupert/recoverypulse/internal/store"
)

// app holds the collaborators every command works through.
type app struct {
	cfg     config.Config
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	out     printer

	settings   *store.SettingsStore
	recovery   *recovery.Service
	access     *access.Controller
	onboarding *access.Onboarding
	snapshots  *snapshot.Manager
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "load config", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitUsage, "load config", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "open database", err)
	}

	provider, err := newProvider(cfg.Billing)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitUsage, "billing provider", err)
	}

	m := metrics.New()
	settings := store.NewSettingsStore(db)
	snapshots := snapshot.NewManager(cfg.Snapshot, db, store.NewSnapshotStore(db), logger.With("component", "snapshot")).
		OnResult(m.SnapshotTaken)

	svc := recovery.NewService(store.NewCheckInStore(db), loc, logger.With("component", "recovery"))
	if snapshots.Enabled() {
		svc.WithSnapshotter(snapshots)
	}

	grace := access.NewGracePeriod(settings, logger.With("component", "grace"))
	sub := access.NewSubscription(provider, logger.With("component", "subscription"))

	return &app{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		out:        printer{format: opts.Format, w: cmd.OutOrStdout()},
		settings:   settings,
		recovery:   svc,
		access:     access.NewController(grace, sub),
		onboarding: access.NewOnboarding(settings, logger.With("component", "onboarding")),
		snapshots:  snapshots,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func newProvider(cfg config.BillingConfig) (billing.Provider, error) {
	switch cfg.Provider {
	case config.ProviderFixture:
		return billing.NewFixture(), nil
	case config.ProviderStripe:
		s := cfg.Stripe
		return billingstripe.NewProvider(billingstripe.Config{
			SecretKey:      s.SecretKey,
			CustomerID:     s.CustomerID,
			AnnualPriceID:  s.AnnualPriceID,
			MonthlyPriceID: s.MonthlyPriceID,
			TrialDays:      s.TrialDays,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
