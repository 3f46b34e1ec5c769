// Package main - точка входа StudyQuest Core.
//
// Один процесс поднимает HTTP API над движком прогресса и рейтингами,
// а также планировщик фоновых задач (истечение серий, сброс отложенных записей).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/studyquest/studyquest-core/config"
	"github.com/studyquest/studyquest-core/internal/application/command"
	"github.com/studyquest/studyquest-core/internal/application/query"
	"github.com/studyquest/studyquest-core/internal/application/tracker"
	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/internal/infrastructure/messaging"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/memory"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/postgres"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/redis"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/sqlite"
	"github.com/studyquest/studyquest-core/internal/infrastructure/scheduler"
	"github.com/studyquest/studyquest-core/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/studyquest/studyquest-core/internal/interface/http"
	"github.com/studyquest/studyquest-core/pkg/circuitbreaker"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/retry"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// profileBackend - удалённое хранилище профилей во всех ролях, которые ему
// отводит процесс.
type profileBackend interface {
	profile.Store
	leaderboard.RankingSource
	jobs.StreakExpirer
}

// closers закрываются в обратном порядке при остановке.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.IsDevelopment(),
	}).With(logger.String("app", cfg.App.Name), logger.String("env", string(cfg.App.Environment)))

	log.Info("starting",
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("local_cache", cfg.LocalCache.Driver),
	)

	var cleanup closers
	defer cleanup.closeAll()

	health := httpapi.NewHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. УДАЛЁННОЕ ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	var (
		profiles profileBackend
		boards   leaderboard.PrivateLeaderboardStore
	)

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		cleanup.add(conn.Close)
		health.AddCheck("postgres", httpapi.PingCheck(conn))

		profiles = postgres.NewProfileRepository(conn)
		boards = postgres.NewPrivateLeaderboardRepository(conn)
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		profiles = memory.NewProfileStore()
		boards = memory.NewPrivateLeaderboardStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		redisCache, err = connectRedis(ctx, cfg.Redis)
		switch {
		case err == nil:
			cleanup.add(func() { _ = redisCache.Close() })
			health.AddCheck("redis", httpapi.PingCheck(redisCache))
			log.Info("redis connection established")
		case cfg.LocalCache.Driver == config.DriverRedis:
			return fmt.Errorf("failed to connect to redis: %w", err)
		default:
			log.Warn("redis unavailable, caching disabled", logger.Err(err))
			redisCache = nil
		}
	}

	var (
		ranking leaderboard.RankingSource = profiles
		hidden  command.HiddenSetInvalidator
	)
	if redisCache != nil && cfg.Leaderboard.HiddenSetTTL > 0 {
		hs := redis.NewHiddenSetCache(profiles, redisCache, cfg.Leaderboard.HiddenSetTTL, log)
		ranking = hs
		hidden = hs
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЛОКАЛЬНЫЙ КЕШ ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	var localCache progress.LocalCache
	switch cfg.LocalCache.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.LocalCache.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open progress cache: %w", err)
		}
		cleanup.add(func() { _ = db.Close() })
		localCache = sqlite.NewProgressCache(db)
	case config.DriverRedis:
		localCache = redis.NewProgressCache(redisCache, 0)
	default:
		localCache = memory.NewProgressCache()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. СОБЫТИЯ И ОТЛОЖЕННАЯ ЗАПИСЬ
	// ─────────────────────────────────────────────────────────────────────────
	eventBus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
	})
	cleanup.add(func() { _ = eventBus.Close() })
	if err := eventBus.SubscribeAll(messaging.LogEvents(log)); err != nil {
		return fmt.Errorf("failed to subscribe event log: %w", err)
	}

	writer := messaging.NewDebouncedWriter(profiles, messaging.DebouncedWriterConfig{
		Delay:        cfg.Progress.RemoteWriteDebounce,
		WriteTimeout: cfg.Database.QueryTimeout,
		Retrier:      retry.ProfileWriteRetrier(retry.WithRetryIf(messaging.IsTransientWriteError)),
		Breaker: circuitbreaker.ProfileStoreBreaker(
			circuitbreaker.WithIsFailure(messaging.IsTransientWriteError),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		),
		Logger: log,
	})

	clock := timeutil.NewSystemClock(cfg.App.Location)

	registry := tracker.NewRegistry(func(userID string) *tracker.Engine {
		return tracker.NewEngine(tracker.Config{
			UserID:    userID,
			DailyGoal: cfg.Progress.DailyQuestionGoal,
			Cache:     localCache,
			Remote:    profiles,
			Writer:    writer,
			Events:    eventBus,
			Clock:     clock,
			Logger:    log,
		})
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Store:    boards,
		Profiles: profiles,
		Events:   eventBus,
		Clock:    clock,
		Logger:   log,
	}
	pages := query.PageOptions{
		DefaultPageSize: cfg.Leaderboard.DefaultPageSize,
		MaxPageSize:     cfg.Leaderboard.MaxPageSize,
	}

	server := httpapi.NewServer(httpapi.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, httpapi.Dependencies{
		Progress:           registry,
		GlobalLeaderboard:  query.NewGetGlobalLeaderboardHandler(ranking, pages),
		UserRank:           query.NewGetUserRankHandler(ranking),
		PrivateMembers:     query.NewGetPrivateLeaderboardMembersHandler(boards, profiles),
		PrivateLeaderboard: query.NewGetPrivateLeaderboardHandler(boards),
		ListLeaderboards:   query.NewListUserLeaderboardsHandler(boards),
		CreateLeaderboard:  command.NewCreatePrivateLeaderboardHandler(deps, cfg.Leaderboard.MaxMembers),
		AddMember:          command.NewAddMemberHandler(deps),
		RemoveMember:       command.NewRemoveMemberHandler(deps),
		TransferOwnership:  command.NewTransferOwnershipHandler(deps),
		DeleteLeaderboard:  command.NewDeletePrivateLeaderboardHandler(deps),
		LeaveLeaderboard:   command.NewLeaveLeaderboardHandler(deps),
		UpdatePreferences:  command.NewUpdatePreferencesHandler(profiles, hidden, log),
		Health:             health,
		Logger:             log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			Location:   cfg.App.Location,
			JobTimeout: cfg.Scheduler.JobTimeout,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Register(jobs.NewExpireDayStreaksJob(profiles, clock, log),
			scheduler.Every(cfg.Scheduler.StreakExpiryInterval)); err != nil {
			return err
		}
		if err := sched.Register(jobs.NewFlushProgressJob(writer),
			scheduler.Every(time.Minute)); err != nil {
			return err
		}
		if err := sched.Register(jobs.NewEvictIdleEnginesJob(registry, cfg.Progress.EngineIdleTimeout, log),
			scheduler.Every(cfg.Progress.EngineIdleTimeout/2)); err != nil {
			return err
		}
		sched.Start()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	serverErr := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server stopped", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	// Pending profile writes go out before the stores close
	registry.FlushAll(shutdownCtx)
	writer.Close(shutdownCtx)

	log.Info("shutdown completed")
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig(cfg.Database.URL)
	if cfg.Database.MaxOpenConns > 0 {
		pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		pgCfg.MinConns = int32(min(cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns))
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime > 0 {
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	}

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")
	return conn, nil
}

// connectRedis prefers REDIS_URL over the discrete host settings.
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Cache, error) {
	if cfg.URL == "" {
		return redis.NewCache(redis.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	c := redis.NewCacheFromClient(goredis.NewClient(opts))
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
