package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/app"
	"lampiran/api/internal/archive"
	"lampiran/api/internal/auth"
	"lampiran/api/internal/blob"
	"lampiran/api/internal/cache"
	"lampiran/api/internal/config"
	"lampiran/api/internal/email"
	"lampiran/api/internal/export"
	"lampiran/api/internal/logging"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/search"
	"lampiran/api/internal/store"
	"lampiran/api/internal/vocab"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	v, err := vocab.Load(cfg.VocabFile)
	if err != nil {
		return err
	}
	accounts, err := auth.ParseAccounts(cfg.Users)
	if err != nil {
		return fmt.Errorf("LAMPIRAN_USERS: %w", err)
	}
	if len(accounts.Names()) == 0 {
		logger.Warn("no operator accounts configured; every login will fail")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	for _, version := range applied {
		logger.Info("migration applied", zap.String("version", version))
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:    dataStore,
		Archive:  archive.New(cfg.ArchiveDir),
		Export:   export.NewService(dataStore),
		OCR:      agenda.Tesseract{Binary: cfg.OCRBinary, Lang: cfg.OCRLang},
		Accounts: accounts,
		Logger:   logger,
	}

	var index search.Indexer
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, search.NewPgFTS(db), logger)
	deps.Search = searchService
	if rows, err := dataStore.AllRecords(ctx); err != nil {
		logger.Warn("load rows for reindex", zap.Error(err))
	} else if err := searchService.Reindex(search.DocsFromRows(rows)); err != nil {
		logger.Warn("reindex search", zap.Error(err))
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		agendaCache, err := cache.NewAgendaCache(cfg.RedisURL, cfg.AgendaCacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer agendaCache.Close()
		deps.Cache = agendaCache
		logger.Info("agenda cache enabled")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := blob.NewMinioStore(ctx, blob.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio connection failed: %w", err)
		}
		deps.Blobs = blobs
		logger.Info("artifact storage enabled", zap.String("bucket", cfg.MinioBucket))
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mail = mailer
	}

	service := app.New(cfg, ref.New(v), deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Lampiran API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
