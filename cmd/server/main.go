package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/ride-sharing/internal/config"
	"github.com/example/ride-sharing/internal/dispatch"
	"github.com/example/ride-sharing/internal/events"
	"github.com/example/ride-sharing/internal/geo"
	httpapi "github.com/example/ride-sharing/internal/http"
	"github.com/example/ride-sharing/internal/logging"
	"github.com/example/ride-sharing/internal/storage"
	"github.com/example/ride-sharing/internal/world"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.ServerConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws := dispatch.NewWSRegistry(logger.Named("ws"))
	opts := []world.Option{
		world.WithLogger(logger),
		world.WithMaxRequests(cfg.MaxRequests),
		world.WithMaxPathLength(cfg.MaxPathLength),
		world.WithNotifier(ws),
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		opts = append(opts, world.WithNotifier(kp))
		logger.Info("publishing matches to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.MatchWebhookURL != "" {
		opts = append(opts, world.WithNotifier(dispatch.NewHTTPDispatcher(cfg.MatchWebhookURL)))
	}
	w := world.New(opts...)

	loadRoads(w, cfg.RoadsFile, logger)
	places := geo.NewIndex()
	loadPlaces(places, cfg.PlacesFile, logger)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var finder geo.Finder = places
	if cfg.RedisAddr != "" {
		rc, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory nearby search", zap.Error(err))
		} else {
			defer rc.Close()
			finder = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
		}
	}

	srv := httpapi.NewServer(httpapi.Options{
		World:           w,
		Store:           store,
		Places:          places,
		Finder:          finder,
		WS:              ws,
		Logger:          logger.Named("http"),
		DefaultTopK:     cfg.DefaultTopK,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-sharing listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageBackend))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func loadRoads(w *world.World, path string, logger *zap.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Info("no road file loaded", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	loaded, skipped, err := w.LoadRoads(f)
	if err != nil {
		logger.Warn("road file read error", zap.String("path", path), zap.Error(err))
	}
	logger.Info("roads loaded", zap.String("path", path), zap.Int("loaded", loaded), zap.Int("skipped", skipped))
}

func loadPlaces(idx *geo.Index, path string, logger *zap.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Info("no place coordinates loaded", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	loaded, skipped, err := idx.LoadCSV(f, logger.Named("places"))
	if err != nil {
		logger.Warn("place file read error", zap.String("path", path), zap.Error(err))
	}
	logger.Info("place coordinates loaded", zap.Int("loaded", loaded), zap.Int("skipped", skipped))
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (storage.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if cfg.RunMigrations {
			if err := storage.Migrate(cfg.PGDSN); err != nil {
				return nil, nil, err
			}
			logger.Info("migrations applied")
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return ps, func() { _ = ps.Close() }, nil
	case config.BackendRedis:
		rc, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(rc, cfg.RedisSnapshotKey), func() { _ = rc.Close() }, nil
	default:
		return storage.NewFileStore(filepath.Clean(cfg.DataDir)), func() {}, nil
	}
}
