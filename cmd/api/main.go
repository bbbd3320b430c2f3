package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"stock-assistant/internal/backend"
	"stock-assistant/internal/config"
	apihttp "stock-assistant/internal/http"
	"stock-assistant/internal/logging"
	"stock-assistant/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	policy, err := service.ParseQueuePolicy(cfg.ChatQueuePolicy)
	if err != nil {
		logger.Fatal("invalid queue policy", zap.Error(err))
	}

	backendClient := backend.NewHTTPClient(cfg.APIURL, cfg.RequestTimeout(), logger)
	sessions := service.NewSessionRegistry(backendClient, logger, policy)

	eventsH := apihttp.NewEventsHandler(logger, sessions)
	sessions.OnCreate = eventsH.Forward
	sessions.OnClose = eventsH.Closed

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if idle := cfg.SessionIdleTimeout(); idle > 0 {
		go sessions.RunJanitor(janitorCtx, time.Minute, idle)
	}

	sessionH := apihttp.NewSessionHandler(logger, sessions)
	chatH := apihttp.NewChatHandler(logger, sessions)
	dashboardH := apihttp.NewDashboardHandler(logger, sessions)
	router := apihttp.NewRouter(logger, cfg.CORSAllowOrigins, sessionH, chatH, dashboardH, eventsH)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("api_url", cfg.APIURL),
			zap.String("queue_policy", string(policy)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopJanitor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := eventsH.Shutdown(ctx); err != nil {
		logger.Warn("sse shutdown", zap.Error(err))
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sessions.CloseAll()
}
