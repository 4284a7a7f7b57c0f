// Package main запускает HTTP-сервер фотомагазина.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/photostore/internal/config"
	"github.com/mmeshcher/photostore/internal/handler"
	"github.com/mmeshcher/photostore/internal/identity"
	"github.com/mmeshcher/photostore/internal/middleware"
	"github.com/mmeshcher/photostore/internal/payment"
	"github.com/mmeshcher/photostore/internal/recorder"
	"github.com/mmeshcher/photostore/internal/repository"
	"github.com/mmeshcher/photostore/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		sugar.Warnw("cannot load .env file", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	slot := &identity.Slot{}

	svc := service.NewService(repo, payment.CheckoutConfig{
		PublicKey:  cfg.LiqPayPublicKey,
		PrivateKey: cfg.LiqPayPrivateKey,
		Currency:   cfg.LiqPayCurrency,
		ServerURL:  cfg.LiqPayServerURL,
		ResultURL:  cfg.LiqPayResultURL,
	}, slot, cfg.AdminEmail)
	defer svc.Close()

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	created, err := svc.SeedAdmin(seedCtx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
	seedCancel()
	if err != nil {
		sugar.Errorw("admin seeding error", "error", err.Error())
	} else if created {
		sugar.Infow("default admin created", "email", cfg.AdminEmail)
	}

	writer := recorder.NewSync(repo, recorder.RealClock{}, logger)

	var (
		orders payment.Recorder = writer
		queue  *recorder.Queue
	)
	if cfg.OrderQueueSize > 0 {
		queue = recorder.NewQueue(writer, cfg.OrderQueueSize, logger)
		orders = queue
	}

	processor, err := payment.NewProcessor(
		cfg.LiqPayPrivateKey,
		identity.NewResolver(repo, slot, logger),
		orders,
		logger,
	)
	if err != nil {
		sugar.Fatalw("payment processor initialization error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret, svc, logger)
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRPS, cfg.LoginBurst)
	if err := loginLimiter.TrustProxies(cfg.TrustedProxies); err != nil {
		sugar.Fatalw("trusted proxies configuration error", "error", err.Error())
	}

	h := handler.NewHandler(svc, processor, logger, authMiddleware)
	r := h.SetupRouter(cfg.CORSOrigins, loginLimiter)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запись заказов в фоне
	if queue != nil {
		g.Go(func() error {
			queue.Run()
			return nil
		})
	}

	g.Go(func() error {
		loginLimiter.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting photostore server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине).
	// Очередь закрывается только после остановки сервера.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if queue != nil {
			queue.Close()
		}
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
