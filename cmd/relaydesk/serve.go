package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/facebook"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/line"
	"github.com/relaydesk/relaydesk/internal/channel/adapters/widget"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/dedup"
	"github.com/relaydesk/relaydesk/internal/dispatch"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/ingest"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/metrics"
	"github.com/relaydesk/relaydesk/internal/platformaccount"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/server"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// bootTenant carries the resolved tenant id through the dependency graph.
type bootTenant struct {
	ID string
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideRedis,
			provideDeduper,
			provideHub,
			provideBootTenant,
			provideTenantService,
			provideAdminService,
			provideAccountService,
			provideConversationService,
			provideMessageService,
			provideChannelRegistry,
			provideLineAdapter,
			provideFacebookAdapter,
			provideIngestPipeline,
			provideDispatchService,
			provideMetricsService,
			providePingHandler,
			provideAuthHandler,
			provideLineWebhookHandler,
			provideFacebookWebhookHandler,
			provideWidgetHandler,
			provideConversationHandler,
			provideAdminHandler,
			provideAccountHandler,
			provideRealtimeHandler,
			provideMetricsHandler,
			provideServer,
		),
		fx.Invoke(
			bootstrapAdmin,
			startMetrics,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func runMigrate() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err := db.Migrate(cfg.Postgres); err != nil {
		return err
	}
	logger.L.Info("migrations applied")
	return nil
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideRedis(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, webhook dedup degrades to the database index",
					slog.String("error", err.Error()))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error { return client.Close() },
	})
	return client
}

func provideDeduper(client *redis.Client, cfg config.Config, log *slog.Logger) dedup.Deduper {
	if client == nil {
		return dedup.Noop{}
	}
	ttl, err := time.ParseDuration(cfg.Redis.DedupTTL)
	if err != nil {
		ttl = 0
	}
	return dedup.NewRedisDeduper(client, ttl, log)
}

func provideHub(log *slog.Logger) *realtime.Hub {
	return realtime.NewHub(128, log)
}

func provideBootTenant(tenants *tenant.Service, cfg config.Config) (bootTenant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resolved, err := tenants.EnsureDefault(ctx, cfg.Tenant.Name)
	if err != nil {
		return bootTenant{}, err
	}
	return bootTenant{ID: resolved.ID}, nil
}

func provideTenantService(conn *pgxpool.Pool, log *slog.Logger) *tenant.Service {
	return tenant.NewService(conn, log)
}

func provideAdminService(conn *pgxpool.Pool, log *slog.Logger) *admin.Service {
	return admin.NewService(conn, log)
}

func provideAccountService(conn *pgxpool.Pool, log *slog.Logger) *platformaccount.Service {
	return platformaccount.NewService(conn, log)
}

func provideConversationService(conn *pgxpool.Pool, log *slog.Logger) *conversation.Service {
	return conversation.NewService(conn, log)
}

func provideMessageService(conn *pgxpool.Pool, log *slog.Logger) *message.Service {
	return message.NewService(conn, log)
}

func provideLineAdapter(log *slog.Logger) *line.Adapter {
	return line.NewAdapter(log)
}

func provideFacebookAdapter(cfg config.Config, log *slog.Logger) *facebook.Adapter {
	return facebook.NewAdapter(cfg.Facebook.GraphURL, log)
}

func provideChannelRegistry(lineAdapter *line.Adapter, facebookAdapter *facebook.Adapter) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if err := registry.Register(lineAdapter); err != nil {
		return nil, err
	}
	if err := registry.Register(facebookAdapter); err != nil {
		return nil, err
	}
	if err := registry.Register(widget.NewAdapter()); err != nil {
		return nil, err
	}
	return registry, nil
}

func provideIngestPipeline(boot bootTenant, conversations *conversation.Service, messages *message.Service, hub *realtime.Hub, deduper dedup.Deduper, log *slog.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(boot.ID, conversations, messages, hub, deduper, log)
}

// accountCredentials adapts the platform account service to the dispatch
// resolver contract, refusing deactivated accounts.
type accountCredentials struct {
	accounts *platformaccount.Service
}

func (r *accountCredentials) Credentials(ctx context.Context, accountID string) (channel.AccountRef, error) {
	account, err := r.accounts.GetActive(ctx, accountID)
	if err != nil {
		return channel.AccountRef{}, err
	}
	return account.Credentials(), nil
}

func provideDispatchService(cfg config.Config, conversations *conversation.Service, messages *message.Service, accounts *platformaccount.Service, registry *channel.Registry, hub *realtime.Hub, log *slog.Logger) *dispatch.Service {
	timeout, err := time.ParseDuration(cfg.Dispatch.SendTimeout)
	if err != nil {
		timeout = 0
	}
	return dispatch.NewService(conversations, messages, &accountCredentials{accounts: accounts}, registry, hub, timeout, log)
}

func provideMetricsService(cfg config.Config, boot bootTenant, conn *pgxpool.Pool, hub *realtime.Hub, log *slog.Logger) *metrics.Service {
	return metrics.NewService(conn, boot.ID, cfg.Metrics.BroadcastCron, hub, log)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideAuthHandler(cfg config.Config, boot bootTenant, admins *admin.Service, log *slog.Logger) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(admins, boot.ID, cfg.Auth.JWTSecret, expiresIn, log), nil
}

func provideLineWebhookHandler(adapter *line.Adapter, accounts *platformaccount.Service, pipeline *ingest.Pipeline, log *slog.Logger) *handlers.LineWebhookHandler {
	return handlers.NewLineWebhookHandler(adapter, accounts, pipeline, log)
}

func provideFacebookWebhookHandler(cfg config.Config, adapter *facebook.Adapter, accounts *platformaccount.Service, pipeline *ingest.Pipeline, log *slog.Logger) *handlers.FacebookWebhookHandler {
	return handlers.NewFacebookWebhookHandler(adapter, accounts, pipeline, cfg.Facebook.VerifyToken, log)
}

func provideWidgetHandler(pipeline *ingest.Pipeline, conversations *conversation.Service, messages *message.Service, hub *realtime.Hub, log *slog.Logger) *handlers.WidgetHandler {
	return handlers.NewWidgetHandler(pipeline, conversations, messages, hub, log)
}

func provideConversationHandler(boot bootTenant, conversations *conversation.Service, messages *message.Service, admins *admin.Service, dispatcher *dispatch.Service, hub *realtime.Hub, log *slog.Logger) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(conversations, messages, admins, dispatcher, hub, boot.ID, log)
}

func provideAdminHandler(boot bootTenant, admins *admin.Service, log *slog.Logger) *handlers.AdminHandler {
	return handlers.NewAdminHandler(admins, boot.ID, log)
}

func provideAccountHandler(boot bootTenant, accounts *platformaccount.Service, registry *channel.Registry, log *slog.Logger) *handlers.AccountHandler {
	return handlers.NewAccountHandler(accounts, registry, boot.ID, log)
}

func provideRealtimeHandler(hub *realtime.Hub, admins *admin.Service, log *slog.Logger) *handlers.RealtimeHandler {
	return handlers.NewRealtimeHandler(hub, admins, log)
}

func provideMetricsHandler(service *metrics.Service, log *slog.Logger) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(service, log)
}

func provideServer(cfg config.Config, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, lineWebhookHandler *handlers.LineWebhookHandler, facebookWebhookHandler *handlers.FacebookWebhookHandler, widgetHandler *handlers.WidgetHandler, conversationHandler *handlers.ConversationHandler, adminHandler *handlers.AdminHandler, accountHandler *handlers.AccountHandler, realtimeHandler *handlers.RealtimeHandler, metricsHandler *handlers.MetricsHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, authHandler, lineWebhookHandler, facebookWebhookHandler, widgetHandler, conversationHandler, adminHandler, accountHandler, realtimeHandler, metricsHandler)
}

func bootstrapAdmin(lc fx.Lifecycle, boot bootTenant, admins *admin.Service, cfg config.Config) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		return admins.EnsureBootstrap(ctx, boot.ID, cfg.Admin.Username, cfg.Admin.Password)
	}})
}

func startMetrics(lc fx.Lifecycle, service *metrics.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return service.Start() },
		OnStop:  func(ctx context.Context) error { service.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
