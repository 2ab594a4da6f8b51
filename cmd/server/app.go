package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/dnspotify/server/internal/identity"
	"github.com/dnspotify/server/internal/localstore"
	"github.com/dnspotify/server/internal/pubsub"
	"github.com/dnspotify/server/internal/repository"
	"github.com/dnspotify/server/internal/service"
	"github.com/dnspotify/server/internal/session"
	"github.com/dnspotify/server/internal/storage"
	"github.com/dnspotify/server/internal/ws"
	"github.com/dnspotify/server/pkg/config"
	"github.com/dnspotify/server/pkg/db"
	"github.com/dnspotify/server/pkg/jwt"
	"github.com/dnspotify/server/pkg/limiter"
	"github.com/dnspotify/server/pkg/logger"
	redispkg "github.com/dnspotify/server/pkg/redis"
	"github.com/dnspotify/server/pkg/telemetry"
)

// loadConfig reads --config, or defaults plus environment when unset.
func loadConfig(c *cli.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewFileLoader(c.String("config")).Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}
	logger.SetGlobalLogger(log.WithFields(logger.String("instance_id", cfg.Server.InstanceID)))
	return cfg, logger.L(), nil
}

func connectPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	return db.Connect(ctx, db.PoolConfig{
		DSN:             cfg.DSN(),
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redispkg.Client, error) {
	return redispkg.NewClient(ctx, &redispkg.Config{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})
}

// repos holds one repository per table.
type repos struct {
	credentials   repository.CredentialRepository
	profiles      repository.ProfileRepository
	songs         repository.SongRepository
	albums        repository.AlbumRepository
	likes         repository.LikeRepository
	favourites    repository.FavouriteRepository
	follows       repository.FollowRepository
	comments      repository.CommentRepository
	notifications repository.NotificationRepository
}

func newRepos(pool db.DB) *repos {
	return &repos{
		credentials:   repository.NewCredentialRepository(pool),
		profiles:      repository.NewProfileRepository(pool),
		songs:         repository.NewSongRepository(pool),
		albums:        repository.NewAlbumRepository(pool),
		likes:         repository.NewLikeRepository(pool),
		favourites:    repository.NewFavouriteRepository(pool),
		follows:       repository.NewFollowRepository(pool),
		comments:      repository.NewCommentRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
	}
}

// services is the fully wired application.
type services struct {
	hub        *pubsub.Hub
	subscriber *pubsub.Subscriber
	wsManager  *ws.Manager

	auth          *service.AuthService
	relations     *service.RelationService
	catalog       *service.CatalogService
	comments      *service.CommentService
	notifications *service.NotificationService
	players       *service.PlayerService
	playlists     *service.PlaylistService
	publish       *service.PublishService
	analytics     *service.AnalyticsService
	maintenance   *service.MaintenanceService
	streams       *service.StreamService
}

func buildServices(ctx context.Context, cfg *config.Config, r *repos, rdb *redispkg.Client,
	tel *telemetry.Provider, log logger.Logger) (*services, error) {
	metrics := tel.Metrics()

	hub := pubsub.NewHub()
	publisher := pubsub.NewPublisher(rdb, hub, cfg.Server.InstanceID, log)
	subscriber := pubsub.NewSubscriber(rdb, hub, pubsub.DefaultSubscriberConfig(cfg.Server.InstanceID), log)
	wsManager := ws.NewManager(ws.Config{
		MaxConnections: cfg.Server.WSMaxConnections,
		MaxPerUser:     cfg.Server.WSMaxPerUser,
	}, metrics, log)

	sessionStore := session.NewStore(rdb, cfg.Auth.SessionTTL)
	views := session.NewViews(service.NewViewLoader(r.likes, r.favourites, r.follows))
	hub.Observe(views.Observe)
	sessions := session.NewManager(sessionStore, views)
	devices := localstore.New(rdb)

	objects, err := storage.NewMinioStore(ctx, storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	s := &services{hub: hub, subscriber: subscriber, wsManager: wsManager}

	s.auth = service.NewAuthService(service.AuthDeps{
		Credentials: identity.NewProvider(r.credentials),
		Profiles:    r.profiles,
		Sessions:    sessions,
		Tokens: jwt.NewManager(&jwt.Config{
			Secret:      cfg.Auth.JWTSecret,
			Issuer:      cfg.Auth.Issuer,
			TokenExpiry: cfg.Auth.TokenExpiry,
		}),
		Limiter:   limiter.NewSignInLimiter(rdb, int64(cfg.Auth.SignInLimit), cfg.Auth.SignInWindow),
		Closer:    wsManager,
		Publisher: publisher,
		Logger:    log,
	})
	s.relations = service.NewRelationService(service.RelationDeps{
		Views:      sessions,
		Songs:      r.songs,
		Profiles:   r.profiles,
		Likes:      r.likes,
		Favourites: r.favourites,
		Follows:    r.follows,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     log,
	})
	s.playlists = service.NewPlaylistService(devices, r.songs, log)
	s.catalog = service.NewCatalogService(r.songs, s.relations, s.playlists)
	s.comments = service.NewCommentService(r.comments, r.songs, r.profiles, publisher, log)
	s.notifications = service.NewNotificationService(r.notifications, publisher, log)
	s.players = service.NewPlayerService(service.PlayerDeps{
		Songs:     r.songs,
		Catalog:   s.catalog,
		History:   devices,
		Plays:     r.songs,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    log,

		IdleTimeout: cfg.Auth.SessionTTL,
	})
	s.publish = service.NewPublishService(service.PublishDeps{
		Objects:       objects,
		Songs:         r.songs,
		Albums:        r.albums,
		Profiles:      r.profiles,
		Follows:       r.follows,
		Notifications: r.notifications,
		Publisher:     publisher,
		Metrics:       metrics,
		Logger:        log,
	})
	s.analytics = service.NewAnalyticsService(r.songs, r.follows)
	s.maintenance = service.NewMaintenanceService(r.songs, r.notifications, cfg.Cron.NotificationRetention, publisher, metrics, log).
		AddPruners(sessions, s.players)
	s.streams = service.NewStreamService(service.StreamDeps{
		Source:        hub,
		Catalog:       s.catalog,
		Relations:     s.relations,
		Notifications: s.notifications,
		Comments:      s.comments,
		Sessions:      sessionStore,
	})
	return s, nil
}
