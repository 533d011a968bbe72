package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/voyagen/channelvault/internal/auditlog"
	"github.com/voyagen/channelvault/internal/cache"
	"github.com/voyagen/channelvault/internal/config"
	"github.com/voyagen/channelvault/internal/logging"
	"github.com/voyagen/channelvault/internal/models"
	"github.com/voyagen/channelvault/internal/server"
	"github.com/voyagen/channelvault/internal/service"
	"github.com/voyagen/channelvault/internal/store"
	"github.com/voyagen/channelvault/internal/watcher"
)

// errImportAborted marks a one-shot import whose run ended with a fatal error.
var errImportAborted = errors.New("import aborted")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errImportAborted) {
			os.Exit(2)
		}
		slog.Error("channelvault exited", "error", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until it stops. Deferred cleanup always
// runs before main exits.
func run() error {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	importSrc := flag.String("import", "", "Import one playlist (file path or http(s) URL), print the run and exit")
	userID := flag.Int64("user", 1, "Acting user id for -import")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations.
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+absMigrations); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pg.Close()

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	var appStore store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		appStore = store.NewCachedStore(pg, rds, logger)
		logger.Info("redis connected (caching enabled)")
	} else {
		logger.Info("redis disabled (REDIS_URL not set)")
	}

	logs, err := auditlog.NewDir(cfg.AuditLogDir, logger)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}

	var opts []service.Option
	if cfg.ArchiveBucket != "" {
		archiver, err := auditlog.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveRegion)
		if err != nil {
			return fmt.Errorf("s3 archiver: %w", err)
		}
		opts = append(opts, service.WithArchiver(archiver))
		logger.Info("audit log archival enabled", "bucket", cfg.ArchiveBucket)
	}
	importer := service.NewImporter(appStore, appStore, logs, logger, opts...)

	if *importSrc != "" {
		run, err := importOnce(ctx, importer, cfg, *importSrc, *userID)
		if run != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(run)
		}
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if run.FatalError != nil {
			return fmt.Errorf("%w: %s", errImportAborted, *run.FatalError)
		}
		return nil
	}

	if cfg.WatchDir != "" {
		var wopts []watcher.Option
		if rds != nil {
			wopts = append(wopts, watcher.WithLock(rds))
		}
		w, err := watcher.New(cfg.WatchDir, cfg.WatchUserID, importer, logger, wopts...)
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.New(importer, appStore, cfg, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// importOnce imports a local file or a remote playlist.
func importOnce(ctx context.Context, importer *service.Importer, cfg *config.Config, src string, userID int64) (*models.ImportRun, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return importer.ImportURL(ctx, src, cfg.UserAgent, cfg.Timeout, userID)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return importer.Run(ctx, f, filepath.Base(src), info.Size(), userID)
}
