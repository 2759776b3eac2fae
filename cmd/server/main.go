package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/formulations/internal/attachment"
	"github.com/JonMunkholm/formulations/internal/config"
	"github.com/JonMunkholm/formulations/internal/core"
	"github.com/JonMunkholm/formulations/internal/logging"
	"github.com/JonMunkholm/formulations/internal/metrics"
	"github.com/JonMunkholm/formulations/internal/notify"
	"github.com/JonMunkholm/formulations/internal/store/memstore"
	"github.com/JonMunkholm/formulations/internal/store/mongostore"
	"github.com/JonMunkholm/formulations/internal/store/pgstore"
	"github.com/JonMunkholm/formulations/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"attachments", cfg.Cloudinary.Enabled(),
		"mail", cfg.Mail.SendGridKey != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open record store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []core.Option{
		core.WithBatchSize(cfg.Upload.BatchSize),
		core.WithImportLimiter(core.NewImportLimiter(cfg.Upload.MaxConcurrentImports, cfg.Upload.ImportWait)),
		core.WithRecorder(m),
		core.WithNotifier(newNotifier(cfg.Mail)),
	}
	if cfg.Cloudinary.Enabled() {
		cld := attachment.NewCloudinary(attachment.CloudinaryOptions{
			CloudName:        cfg.Cloudinary.CloudName,
			APIKey:           cfg.Cloudinary.APIKey,
			APISecret:        cfg.Cloudinary.APISecret,
			BaseURL:          cfg.Cloudinary.BaseURL,
			Folder:           cfg.Cloudinary.Folder,
			BootstrapFolders: cfg.Cloudinary.BootstrapFolders,
			Timeout:          cfg.Cloudinary.Timeout,
		})
		if err := cld.Bootstrap(ctx); err != nil {
			slog.Warn("cloudinary bootstrap incomplete", "error", err)
		}
		opts = append(opts, core.WithUploader(cld))
	} else {
		slog.Warn("cloudinary not configured, submissions with attachments will fail")
	}

	service := core.NewService(store, opts...)
	server := web.NewServer(service, cfg, web.WithMetrics(m))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := service.WaitForImports(shutdownCtx); err != nil {
			slog.Warn("imports did not finish in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		closeStore()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore connects the configured backend and prepares its indexes.
func openStore(ctx context.Context, cfg config.StoreConfig) (core.RecordStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMongo:
		s, err := mongostore.Connect(ctx, mongostore.Options{
			URI:             cfg.URL,
			Database:        cfg.Database,
			Collection:      cfg.Collection,
			ConnectTimeout:  cfg.ConnectTimeout,
			MaxPoolSize:     uint64(cfg.MaxConns),
			MinPoolSize:     uint64(cfg.MinConns),
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		// The unique curp index backs insert-if-absent.
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		slog.Info("connected to mongodb", "database", cfg.Database, "collection", cfg.Collection)
		return s, func() { _ = s.Close(context.Background()) }, nil

	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, pgstore.Options{
			URL:             cfg.URL,
			Table:           cfg.Collection,
			MaxConns:        int32(cfg.MaxConns),
			MinConns:        int32(cfg.MinConns),
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgres", "table", cfg.Collection)
		return s, s.Close, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store, records are lost on restart")
		return memstore.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newNotifier(cfg config.MailConfig) core.Notifier {
	if cfg.SendGridKey == "" {
		return notify.Log{}
	}
	return notify.NewSendGrid(notify.SendGridOptions{
		APIKey:      cfg.SendGridKey,
		FromAddress: cfg.FromAddress,
		AppName:     cfg.AppName,
		Timeout:     cfg.Timeout,
	})
}
