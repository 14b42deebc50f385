package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskhub/api/internal/app"
	"taskhub/api/internal/config"
	"taskhub/api/internal/drive"
	"taskhub/api/internal/email"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/realtime"
	"taskhub/api/internal/search"
	"taskhub/api/internal/session"
	"taskhub/api/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskhub-api",
		Short:         "TaskHub API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Apply migrations and serve the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "reindex",
			Short: "Push every project and task from PostgreSQL into Meilisearch",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReindex(cmd.Context())
			},
		},
	)
	return root
}

// bootstrap loads config, configures logging and opens the migrated database.
func bootstrap(ctx context.Context) (config.Config, *sql.DB, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	flush, err := logging.Setup(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		SentryDSN:   cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		logrus.WithError(err).Warn("sentry disabled")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		flush()
		return cfg, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		_ = db.Close()
		flush()
		return cfg, nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logrus.WithField("versions", applied).Info("migrations applied")
	}
	cleanup := func() {
		_ = db.Close()
		flush()
	}
	return cfg, db, cleanup, nil
}

func runMigrate(ctx context.Context) error {
	_, _, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	cleanup()
	return nil
}

func runReindex(ctx context.Context) error {
	cfg, db, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return errors.New("MEILI_URL is not set")
	}
	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	defer meiliClient.Close()
	if !meiliClient.Healthy() {
		return errors.New("meilisearch is not reachable")
	}
	return search.NewService(meiliClient, search.NewPgFTS(db)).ReindexAllFromPG(context.Background())
}

func runServe(ctx context.Context) error {
	cfg, db, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		logrus.Info("using redis for refresh sessions and realtime fan-out")
		deps.Sessions = session.NewRedisStoreWithClient(client)
		deps.Hub = realtime.NewRedisHub(client)
	} else {
		logrus.Info("using postgres for refresh sessions, realtime stays in-process")
		deps.Hub = realtime.NewLocalHub()
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, pgfts)
	reindexCtx, stopReindex := context.WithCancel(context.Background())
	defer stopReindex()
	go func() {
		if err := deps.Search.ReindexAllFromPG(reindexCtx); err != nil {
			logrus.WithError(err).Warn("initial search reindex failed")
		}
		deps.Search.ReindexEvery(reindexCtx, cfg.SearchReindexInterval)
	}()

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		AppURL:   cfg.AppURL,
	})
	if !mail.IsConfigured() {
		logrus.Info("smtp not configured, notification emails disabled")
	}
	deps.Mail = mail

	deps.Drive = newDriveProxy(cfg)

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.DriveUploadTimeout + 15*time.Second,
		// SSE responses stay open, so no WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Addr).Info("TaskHub API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("shutdown error")
	}
	return nil
}

func newDriveProxy(cfg config.Config) *drive.Proxy {
	opts := drive.Options{MaxUploadBytes: cfg.DriveMaxUploadBytes, UploadTimeout: cfg.DriveUploadTimeout}
	creds, err := drive.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		if !errors.Is(err, drive.ErrNotConfigured) {
			logging.LogError("drive_credentials", err, nil)
		}
		logrus.Info("google drive not configured")
		return drive.NewProxy(nil, opts)
	}
	api, err := drive.NewGoogleAPI(context.Background(), creds)
	if err != nil {
		logging.LogError("drive_client", err, nil)
		return drive.NewProxy(nil, opts)
	}
	return drive.NewProxy(api, opts)
}
