package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/referralpay/ledger/internal/commission"
	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/level"
	"github.com/referralpay/ledger/internal/logger"
	"github.com/referralpay/ledger/internal/member"
	"github.com/referralpay/ledger/internal/policy"
	"github.com/referralpay/ledger/internal/router"
	storage "github.com/referralpay/ledger/internal/storage/postgres"
	"github.com/referralpay/ledger/internal/withdrawal"
)

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	cfg, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := storage.NewPostgresStorage(cfg.DatabaseConnection)
	if err != nil {
		log.Fatalf("Failed to initialize Postgres storage: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close storage: %v", err)
		}
	}()

	memberSvc := member.NewService(store, []byte(cfg.JWTSecret), cfg.JWTTTL)
	memberHandler := member.NewHandler(memberSvc)

	ledgerSvc := ledger.NewService(store, store)
	ledgerHandler := ledger.NewHandler(ledgerSvc)

	policySvc := policy.NewService(store, store, store, store, store)
	policyHandler := policy.NewHandler(policySvc)

	withdrawalSvc := withdrawal.NewService(store, store, policySvc)
	withdrawalHandler := withdrawal.NewHandler(withdrawalSvc)

	levelSvc := level.NewService(store, store, ledgerSvc, cfg.SalaryWorkers)

	commissionSvc := commission.NewService(store, policySvc, ledgerSvc, levelSvc)
	commissionHandler := commission.NewHandler(commissionSvc)

	r := router.NewRouter(
		memberHandler,
		ledgerHandler,
		withdrawalHandler,
		commissionHandler,
		policyHandler,
		[]byte(cfg.JWTSecret),
		cfg.HashKey,
		store,
	)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Salary passes run daily; each pass decides internally whether
	// today is a payout day and the entry keys keep reruns harmless.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("5 0 * * *", func() {
		jobCtx, jobCancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer jobCancel()
		if err := levelSvc.RunWeeklyPass(jobCtx, time.Now().UTC()); err != nil {
			logger.Log.Error("weekly salary pass failed", zap.Error(err))
		}
		if err := levelSvc.RunMonthlyPass(jobCtx, time.Now().UTC()); err != nil {
			logger.Log.Error("monthly salary pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("30 3 * * *", func() {
		jobCtx, jobCancel := context.WithTimeout(context.Background(), time.Minute)
		defer jobCancel()
		n, err := withdrawalSvc.PurgeRejected(jobCtx, cfg.RejectedRetention)
		if err != nil {
			logger.Log.Error("rejected request purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Log.Info("purged rejected withdrawal requests", zap.Int64("count", n))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}
