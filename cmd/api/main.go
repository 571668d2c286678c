package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"vempraca_backend/internal/controller"
	"vempraca_backend/internal/model"
	"vempraca_backend/internal/server"
	"vempraca_backend/pkg/billing"
	"vempraca_backend/pkg/config"
	"vempraca_backend/pkg/cron"
	"vempraca_backend/pkg/database"
	"vempraca_backend/pkg/logger"
	"vempraca_backend/pkg/seed"
	"vempraca_backend/pkg/utils/jwt"
	"vempraca_backend/pkg/visibility"
)

// app holds everything built from the configuration.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	store      *database.ListingStore
	provider   *billing.Stripe
	classifier *visibility.Classifier
	reconciler *visibility.Reconciler
	backfill   *cron.VisibilityBackfill
}

func bootstrap(validate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := database.InitDB(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	timeouts := cfg.Timeouts()
	store := database.NewListingStore(db)
	provider := billing.NewStripe(billing.StripeConfig{
		SecretKey: cfg.Billing.SecretKey,
		Timeout:   cfg.Billing.Timeout,
		BaseURL:   cfg.Billing.APIBaseURL,
	})
	classifier := visibility.NewClassifier(provider, cfg.Visibility.PaymentFailurePolicy, timeouts)
	reconciler := visibility.NewReconciler(store,
		visibility.WithTimeouts(timeouts),
		visibility.WithEventOrdering(cfg.Visibility.EnforceEventOrdering),
		visibility.WithLogger(log.With().Str("component", "reconciler").Logger()),
	)

	return &app{
		cfg:        cfg,
		db:         db,
		store:      store,
		provider:   provider,
		classifier: classifier,
		reconciler: reconciler,
		backfill:   cron.NewVisibilityBackfill(store, provider, classifier, reconciler, timeouts, cfg.Backfill.PageSize),
	}, nil
}

func migrate(db *gorm.DB) error {
	return database.MigrateDatabase(db,
		&model.Listing{},
		&model.BillingWebhookEvent{},
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the visibility backfill cron",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			if err := migrate(a.db); err != nil {
				log.Warn().Err(err).Msg("Migration warning")
			}

			timeouts := a.cfg.Timeouts()
			srv := server.New(server.Deps{
				Tokens:       jwt.NewManager(a.cfg.JWT.Secret),
				Store:        a.store,
				StoreTimeout: timeouts.StoreTimeout(),
				Webhooks: controller.NewWebhookController(
					a.cfg.Billing.WebhookSigningSecret,
					a.cfg.Billing.SandboxMode,
					a.classifier,
					a.reconciler,
					database.NewWebhookLog(a.db),
					timeouts,
				),
				Subscriptions: controller.NewSubscriptionController(
					visibility.NewCanceller(a.provider, a.reconciler, timeouts),
				),
				RequestLog: true,
			})

			backfillCron, err := cron.InitVisibilityBackfillCron(a.backfill, a.cfg.Backfill.Schedule, a.cfg.Backfill.Timeout)
			if err != nil {
				return fmt.Errorf("schedule visibility backfill: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", a.cfg.Server.Port).Msg("Server is running")
				errCh <- srv.Listen(":" + a.cfg.Server.Port)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			if backfillCron != nil {
				<-backfillCron.Stop().Done()
			}
			return srv.ShutdownWithTimeout(10 * time.Second)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			return migrate(a.db)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one visibility backfill pass against the billing provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backfill.Timeout)
			defer cancel()

			summary, err := a.backfill.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "visited=%d reconciled=%d skipped=%d failed=%d\n",
				summary.Visited, summary.Reconciled, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d listings could not be reconciled", summary.Failed)
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo listings for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			if err := migrate(a.db); err != nil {
				return err
			}
			_, err = seed.SeedDemoListings(a.db, ownerID)
			return err
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner user id (uuid)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:          "vempraca-api",
		Short:        "VemPraCá listing visibility backend",
		SilenceUsage: true,
	}
	serve := serveCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, migrateCmd(), reconcileCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
