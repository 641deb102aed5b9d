package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/handler"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/service"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/Dan9191/card-service/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// store is what the services and the health check need from a backend
type store interface {
	repository.CardStore
	repository.UserStore
	handler.Pinger
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize storage
	var st store
	switch cfg.DBDriver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage, data will be lost on exit")
		st = repository.NewMemory()
	default:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db, logger)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("Failed to apply schema: %v", err)
		}
		st = repo
	}

	cipher, err := utils.NewCardCipher(cfg.EncryptionKey, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize card cipher: %v", err)
	}

	var notifier service.Notifier
	if cfg.NotificationsEnabled() {
		notifier = email.NewSender(cfg, logger)
	} else {
		logger.Info("SMTP_HOST not set, email notifications disabled")
	}

	// Initialize layers
	authSvc := service.NewAuthService(st, logger, cfg)
	cardSvc := service.NewCardService(st, st, cipher, logger, cfg)
	transferSvc := service.NewTransferService(st, cipher, notifier, logger)
	sweeper := service.NewExpirySweeper(st, st, cipher, notifier, logger, cfg.ExpirySweepCron)
	if err := sweeper.Start(); err != nil {
		logger.Fatalf("Failed to start expiry sweeper: %v", err)
	}

	h := handler.NewHandler(authSvc, cardSvc, transferSvc, st, logger)
	r := handler.NewRouter(h, authSvc)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	select {
	case <-sweeper.Stop().Done():
	case <-ctx.Done():
		logger.Warn("Expiry sweep still running at shutdown")
	}
	logger.Info("Server stopped")
}
