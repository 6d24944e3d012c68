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

	"github.com/nimbuslab/crewbase/internal/apiserver"
	"github.com/nimbuslab/crewbase/internal/apiserver/cache"
	"github.com/nimbuslab/crewbase/internal/apiserver/database"
	"github.com/nimbuslab/crewbase/internal/apiserver/handler"
	"github.com/nimbuslab/crewbase/internal/auth/jwt"
	"github.com/nimbuslab/crewbase/internal/billing"
	"github.com/nimbuslab/crewbase/internal/common/config"
	"github.com/nimbuslab/crewbase/internal/notify"
	"github.com/nimbuslab/crewbase/internal/rbac"
	"github.com/nimbuslab/crewbase/pkg/logger"
	"github.com/nimbuslab/crewbase/pkg/metrics"
	"github.com/nimbuslab/crewbase/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of apiserver",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("apiserver version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "apiserver",
		Short: "Crewbase API Server",
		Long:  `Crewbase API Server provides account, team and billing endpoints`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "apiserver.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting apiserver",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rbac.Seed(ctx, db, log); err != nil {
		log.Fatal("failed to seed roles and permissions", zap.Error(err))
	}

	permCache, err := cache.NewPermissionCache(&cfg.Cache)
	if err != nil {
		log.Fatal("failed to initialize permission cache", zap.Error(err))
	}
	defer permCache.Close()

	jwtService, err := jwt.NewService(cfg.JWT)
	if err != nil {
		log.Fatal("failed to initialize token service", zap.Error(err))
	}

	gateway, err := billing.NewGateway(&cfg.Stripe)
	if err != nil {
		log.Fatal("failed to initialize billing gateway", zap.Error(err))
	}

	m := metrics.New(cfg.Metrics)
	resolver := rbac.NewResolver(db, permCache, log)
	billingSvc := billing.NewService(db, gateway, log)

	notifier := notify.NewWorker(notify.NewMailer(&cfg.SMTP, log), m, log)
	notifier.Start(ctx)
	defer notifier.Stop()

	reconciler := billing.NewReconciler(db, gateway, cfg.Stripe.WebhookSecret, notifier, m, log)

	h := handler.New(db, jwtService, resolver, billingSvc, reconciler, notifier, cfg.BaseURL, log)
	router := apiserver.NewRouter(h, jwtService, m, cfg.Metrics.Enabled)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down cleanly", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
