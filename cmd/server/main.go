package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/kommyut/internal/config"
	"github.com/example/kommyut/internal/database"
	"github.com/example/kommyut/internal/events"
	"github.com/example/kommyut/internal/handlers"
	"github.com/example/kommyut/internal/logger"
	"github.com/example/kommyut/internal/middleware"
	"github.com/example/kommyut/internal/routes"
	"github.com/example/kommyut/internal/services"
	"github.com/example/kommyut/internal/store"
)

func main() {
	cfg := config.Load()

	sugar, err := logger.New(cfg.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.Connect(cfg.DatabaseURL, cfg.DBLogLevel, sugar)
	st := store.New(db)

	telegram := services.NewTelegramService(cfg.TelegramAPIBase, cfg.TelegramBotToken, cfg.TelegramAdminChat, sugar)
	if !telegram.Enabled() {
		sugar.Warn("telegram alerts disabled: TELEGRAM_BOT_TOKEN or TELEGRAM_ADMIN_CHAT_ID not set")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, sugar)
		sugar.Infow("publishing domain events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	var limiter middleware.Limiter
	switch {
	case cfg.RateLimitPerMinute <= 0:
		sugar.Warn("rate limiting disabled: RATE_LIMIT_PER_MINUTE <= 0")
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		})
		defer rdb.Close()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			sugar.Warnw("redis ping failed, rate limiter will fail open until it recovers", "error", err)
		}
		limiter = middleware.NewRedisLimiter(rdb, "kommyut:ratelimit", cfg.RateLimitPerMinute, time.Minute)
	default:
		local := middleware.NewLocalLimiter(cfg.RateLimitPerMinute)
		go local.RunSweeper(ctx)
		limiter = local
	}

	verification := services.NewVerificationService(st, publisher, telegram, sugar, services.VerificationOptions{
		Atomic:          cfg.VerificationAtomic,
		StrictReapprove: cfg.StrictReapprove,
	})
	trips := services.NewTripService(st, publisher, sugar)

	app := fiber.New(fiber.Config{
		AppName:      "Kommyut Admin",
		ErrorHandler: handlers.ErrorHandler(sugar),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, routes.Deps{
		Config:  cfg,
		Users:   handlers.NewUserHandler(st, verification, cfg.RequestTimeout, sugar),
		Trips:   handlers.NewTripHandler(st, trips, cfg.RequestTimeout),
		Limiter: middleware.RateLimit(limiter, sugar),
	})

	go func() {
		<-ctx.Done()
		sugar.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			sugar.Errorw("shutdown", "error", err)
		}
	}()

	sugar.Infow("starting server", "port", cfg.AppPort, "verification_atomic", cfg.VerificationAtomic)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		sugar.Fatalf("fiber.Listen error: %v", err)
	}
}
