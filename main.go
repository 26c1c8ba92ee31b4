package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"switchboard/config"
	"switchboard/controllers"
	"switchboard/db"
	"switchboard/delivery"
	"switchboard/events"
	"switchboard/messaging"
	"switchboard/ratelimit"
	"switchboard/router"
	"switchboard/security"
	"switchboard/workers"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard - multi-channel customer message routing",
	Long:  `Switchboard threads SMS, email and in-app customer messages into one conversation per customer and lets agents reply from a dashboard.`,
	// sem subcomando, sobe o servidor
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and background workers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Issue a dashboard token for an agent identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to the TOML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	var store messaging.Store
	switch cfg.Messaging.Store {
	case "memory":
		logger.Warn("conversations are kept in memory and will be lost on restart")
		store = messaging.NewMemoryStore()
	default:
		store = messaging.NewGormStore(database)
	}

	scanner, err := security.NewScanner(cfg.Security.Signatures, cfg.Security.FloodRunLength)
	if err != nil {
		return fmt.Errorf("security.signatures: %w", err)
	}
	auditor := security.NewAuditor(logger, cfg.Security.AuditQueueSize,
		security.LogSink{Logger: logger},
		security.GormSink{DB: database},
	)
	// drena até o Close explícito, depois do shutdown do servidor
	auditor.Start(context.Background())
	defer auditor.Close()

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	limiter := ratelimit.NewFromConfig(cfg.RateLimits)
	err = workers.StartMaintenance(ctx, []workers.Job{
		workers.RateLimitSweepJob(limiter, config.DefaultSweepInterval, logger),
		workers.DeliveryPurgeJob(database, cfg.Delivery.Retention, logger),
	}, logger.With(slog.String("component", "maintenance")))
	if err != nil {
		return err
	}

	dispatcherDone := workers.StartDeliveryDispatcher(ctx, &workers.DeliveryDispatcher{
		DB:          database,
		Senders:     delivery.NewRegistry(cfg.Delivery, logger),
		Publisher:   publisher,
		Logger:      logger.With(slog.String("component", "delivery")),
		Interval:    cfg.Delivery.PollInterval,
		BatchSize:   cfg.Delivery.BatchSize,
		MaxAttempts: cfg.Delivery.MaxAttempts,
		Lease:       cfg.Delivery.Lease,
	})

	svc := &controllers.Services{
		Config:    cfg,
		Router:    messaging.NewRouter(store, logger, cfg.Messaging.DefaultBusinessID),
		Limiter:   limiter,
		Scanner:   scanner,
		Auditor:   auditor,
		Outbox:    delivery.NewOutbox(database),
		Publisher: publisher,
		Logger:    logger,
	}

	gin.SetMode(cfg.Server.GinMode)
	engine := gin.New()
	router.Initialize(engine, svc, database.DB().Ping)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("switchboard listening", slog.String("addr", cfg.Server.Addr), slog.String("store", cfg.Messaging.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		serveErr = srv.Shutdown(shutdownCtx)
		cancel()
	}

	// o banco só fecha depois que os envios em andamento gravaram o resultado
	stop()
	<-dispatcherDone

	auditor.Close()
	if n := auditor.Dropped(); n > 0 {
		logger.Warn("security events dropped", slog.Int64("count", n))
	}
	return serveErr
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	cfg.Database.AutoMigrate = false
	database, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info("migrations applied", slog.String("driver", cfg.Database.Driver))
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	token, expiresAt, err := controllers.IssueAgentToken(args[0], cfg.Security.JWTSecret, cfg.Security.JWTExpiresIn)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.LogPublisher{Logger: logger}, nil
	}
	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return pub, nil
}
