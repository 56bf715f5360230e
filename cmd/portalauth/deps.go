package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/identity"
	"github.com/premproperties/portalauth/internal/appconfig"
	"github.com/premproperties/portalauth/internal/logging"
	"github.com/premproperties/portalauth/notify"
)

// runtime holds the engine and the clients it was built from.
type runtime struct {
	cfg     *appconfig.Config
	logger  *zap.Logger
	engine  *portalauth.Engine
	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func loadRuntime(ctx context.Context, flags *globalFlags) (*runtime, error) {
	cfg, err := appconfig.Load(flags.configFile, flags.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, Service: "portalauth"})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })
	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) build(ctx context.Context) error {
	cfg := rt.cfg
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	b := portalauth.New().
		WithConfig(engineCfg).
		WithLogger(rt.logger).
		WithLatencyHistograms(true)

	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		b = b.WithRedis(client)
	}

	directory := &identity.Directory{
		Admins: identity.NewFileStore(cfg.AdminFile, cfg.MasterAdminConfig(), rt.logger),
	}
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
		b = b.WithPostgres(pool)
		directory.Members = identity.NewMemberStore(pool)
	} else {
		rt.logger.Warn("no postgres dsn configured; member accounts are unavailable")
	}
	b = b.WithIdentityProvider(directory)

	notifier, err := buildNotifier(cfg, rt.logger)
	if err != nil {
		return err
	}
	b = b.WithNotifier(notifier)

	if cfg.Auth.Audit {
		b = b.WithAuditSink(portalauth.NewZapSink(rt.logger.Named("audit")))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	rt.closers = append(rt.closers, engine.Close)

	if err := engine.EnsureTokenSchema(ctx); err != nil {
		return fmt.Errorf("token schema: %w", err)
	}
	return nil
}

// buildNotifier falls back to logging codes when SMTP is not configured,
// which is only acceptable outside production.
func buildNotifier(cfg *appconfig.Config, logger *zap.Logger) (portalauth.Notifier, error) {
	smtpCfg, ok := cfg.SMTPConfig()
	if !ok {
		if cfg.Production() {
			return nil, fmt.Errorf("smtp host is required in production")
		}
		logger.Warn("smtp not configured; codes and reset links are written to the log")
		return notify.NewLogNotifier(logger), nil
	}
	mailer, err := notify.NewMailer(smtpCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return mailer, nil
}
