package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/alerthub-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/alerthub-service/internal/adapter/kafka"
	"github.com/couchcryptid/alerthub-service/internal/adapter/nominatim"
	"github.com/couchcryptid/alerthub-service/internal/adapter/postgres"
	"github.com/couchcryptid/alerthub-service/internal/adapter/storage"
	"github.com/couchcryptid/alerthub-service/internal/config"
	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/enrichment"
	"github.com/couchcryptid/alerthub-service/internal/lifecycle"
	"github.com/couchcryptid/alerthub-service/internal/locale"
	"github.com/couchcryptid/alerthub-service/internal/observability"
	"github.com/couchcryptid/alerthub-service/internal/pipeline"
	"github.com/couchcryptid/alerthub-service/internal/query"
)

const usage = "usage: alerthub [serve | migrate up|down | reenrich [limit]]"

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "migrate":
		err = runMigrate(cfg, args)
	case "reenrich":
		err = reenrich(cfg, logger, args)
	default:
		err = errors.New(usage)
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func runMigrate(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	switch args[0] {
	case "up":
		return postgres.MigrateUp(cfg.DatabaseURL)
	case "down":
		return postgres.MigrateDown(cfg.DatabaseURL)
	default:
		return errors.New(usage)
	}
}

// reenrich schedules enrichment once for reports missing a place name.
func reenrich(cfg *config.Config, logger *slog.Logger, args []string) error {
	limit := 1000
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	store := postgres.New(db, logger)
	defer store.Close()

	coord := lifecycle.New(store, store, nil, cfg.EnrichmentLocales, cfg.ReenrichMaxEnqueues, observability.NewMetrics(), logger)
	n, err := coord.RequeueIncomplete(ctx, limit)
	if err != nil {
		return err
	}
	logger.Info("re-enrichment scheduled", "reports", n)
	return nil
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.MigrateUp(cfg.DatabaseURL); err != nil {
		return err
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	store := postgres.New(db, logger)
	defer store.Close()

	geocoder, closeGeocoder, err := newGeocoder(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeGeocoder()

	images, imageDir, err := newImageStore(cfg)
	if err != nil {
		return err
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	job := enrichment.NewJob(geocoder, store, cfg.EnrichmentLocales, cfg.EnrichmentMaxAttempts, metrics, logger)
	coord := lifecycle.New(store, store, images, cfg.EnrichmentLocales, cfg.ReenrichMaxEnqueues, metrics, logger)
	queries := query.NewService(store, locale.Default(), storage.NewURLBuilder(cfg.PublicBaseURL), cfg.MaxPageSize)

	relay := pipeline.NewRelay(store, writer, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval)
	worker := pipeline.NewWorker(reader, job, logger, metrics, cfg.BatchSize, cfg.EnrichmentConcurrency)

	api := httpadapter.NewAPI(coord, queries, httpadapter.APIConfig{
		OperatorRole: cfg.OperatorRole,
		RoleHeader:   cfg.RoleHeader,
		ImageDir:     imageDir,
	}, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{worker, store}, api, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	var wg sync.WaitGroup
	runners := []interface{ Run(context.Context) error }{relay, worker}
	if cfg.ReenrichInterval > 0 {
		runners = append(runners, pipeline.NewScheduler(coord, domain.Clock(), cfg.ReenrichInterval, cfg.BatchSize, logger, metrics))
	}
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				logger.Error("background loop error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newGeocoder wraps the Nominatim client in the in-process cache and, when
// REDIS_URL is set, the shared Redis cache.
func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, func(), error) {
	client := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimTimeout, metrics, logger)
	var g domain.Geocoder = nominatim.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
	if cfg.RedisURL == "" {
		return g, func() {}, nil
	}

	rdb, err := nominatim.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info("redis geocode cache enabled", "ttl", cfg.GeocodeCacheTTL)
	return nominatim.NewRedisCache(g, rdb, cfg.GeocodeCacheTTL, metrics, logger), func() { rdb.Close() }, nil
}

// newImageStore returns the configured image store and, for the disk backend,
// the directory served to clients.
func newImageStore(cfg *config.Config) (lifecycle.ImageStore, string, error) {
	if cfg.StorageBackend == config.StorageFTP {
		return storage.NewFTPStore(cfg.FTPAddr, cfg.FTPUser, cfg.FTPPassword), "", nil
	}
	disk, err := storage.NewDiskStore(cfg.StorageDir)
	if err != nil {
		return nil, "", err
	}
	return disk, disk.Dir(), nil
}

// readiness is ready when every checker is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
