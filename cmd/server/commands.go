package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dnspotify/server/internal/cron"
	"github.com/dnspotify/server/internal/handler"
	"github.com/dnspotify/server/internal/middleware"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/migrations"
	"github.com/dnspotify/server/pkg/config"
	"github.com/dnspotify/server/pkg/db"
	"github.com/dnspotify/server/pkg/logger"
	"github.com/dnspotify/server/pkg/telemetry"
)

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	log.Info("starting server", logger.String("version", version))

	tel, shutdownTelemetry, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry shutdown", logger.Error(err))
		}
	}()

	if cfg.Postgres.AutoMigrate {
		if err := runMigrations(cfg, log); err != nil {
			return err
		}
	}
	pool, err := connectPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	svc, err := buildServices(ctx, cfg, newRepos(pool), rdb, tel, log)
	if err != nil {
		return err
	}

	checker := db.NewHealthChecker()
	checker.Register("postgres", pool.Ping)
	checker.Register("redis", rdb.Ping)

	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(handler.RouterConfig{
		Authenticator: svc.auth,
		RateLimiter: middleware.NewRateLimiter(
			cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst,
			cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst,
		),
		Metrics:        tel.Metrics(),
		Tracer:         tel.Tracer(),
		MetricsHandler: tel.MetricsHandler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         log,
	}, handler.Handlers{
		Auth:          handler.NewAuthHandler(svc.auth, svc.players),
		Relations:     handler.NewRelationHandler(svc.relations),
		Catalog:       handler.NewCatalogHandler(svc.catalog, svc.comments),
		Player:        handler.NewPlayerHandler(svc.players),
		Playlists:     handler.NewPlaylistHandler(svc.playlists),
		Notifications: handler.NewNotificationHandler(svc.notifications),
		Publish:       handler.NewPublishHandler(svc.publish, svc.analytics),
		WS:            handler.NewWSHandler(svc.streams, svc.wsManager, cfg.Server.AllowedOrigins, log),
		Health:        handler.NewHealthHandler(checker, svc.wsManager),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Server.GRPCPort > 0 {
		g.Go(func() error {
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			log.Info("grpc health server listening", logger.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	if cfg.Cron.Enabled {
		manager := cron.NewCronManager(svc.maintenance, cron.Config{
			ReconcileSpec: cfg.Cron.ReconcileSpec,
			CleanupSpec:   cfg.Cron.CleanupSpec,
			SweepSpec:     cfg.Cron.SweepSpec,
		}, log)
		g.Go(func() error { return manager.Run(gctx) })
	}

	g.Go(func() error { return svc.subscriber.Run(gctx) })
	g.Go(func() error { return svc.wsManager.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server forced to shut down", logger.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

func runMigrations(cfg *config.Config, log logger.Logger) error {
	m, err := db.NewMigrator(cfg.Postgres.DSN(), migrations.FS, ".")
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return err
	}
	v, dirty, _ := m.Version()
	log.Info("migrations applied", logger.Int("version", int(v)), logger.Bool("dirty", dirty))
	return nil
}

func migrateUp(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	return runMigrations(cfg, log)
}

func migrateDown(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	m, err := db.NewMigrator(cfg.Postgres.DSN(), migrations.FS, ".")
	if err != nil {
		return err
	}
	defer m.Close()

	if steps := c.Int("steps"); steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil {
		return err
	}
	log.Info("migrations rolled back", logger.Int("steps", c.Int("steps")))
	return nil
}

func migrateVersion(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	m, err := db.NewMigrator(cfg.Postgres.DSN(), migrations.FS, ".")
	if err != nil {
		return err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "version %d dirty=%t\n", v, dirty)
	return nil
}

func reconcile(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	pool, err := connectPostgres(c.Context, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	r := newRepos(pool)
	maintenance := service.NewMaintenanceService(r.songs, r.notifications, cfg.Cron.NotificationRetention, nil, nil, log)
	stats, err := cron.NewCronManager(maintenance, cron.Config{}, log).RunNow(c.Context)
	if stats != nil {
		_ = json.NewEncoder(c.App.Writer).Encode(stats)
	}
	return err
}

func importLegacy(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	f, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()

	pool, err := connectPostgres(c.Context, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	imp := service.NewImportService(
		repository.NewProfileRepository(pool),
		repository.NewAlbumRepository(pool),
		repository.NewSongRepository(pool),
		repository.NewFavouriteRepository(pool),
		log,
	)
	stats, err := imp.ImportJSON(c.Context, f)
	if stats != nil {
		_ = json.NewEncoder(c.App.Writer).Encode(stats)
	}
	return err
}
