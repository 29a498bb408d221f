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

	"github.com/linesmerrill/planner-alerts/api/handlers"
	"github.com/linesmerrill/planner-alerts/api/scheduler"
	"github.com/linesmerrill/planner-alerts/config"
)

func main() {
	envErr := godotenv.Load()

	a := handlers.App{}
	a.Config = *config.New()
	if envErr != nil {
		zap.S().Debugw("no .env file found, using system environment variables")
	}

	// initialize database and router
	if err := a.Initialize(); err != nil {
		zap.S().Fatalw("failed to initialize", "error", err)
	}

	s := scheduler.NewScheduler(a.Tokens)
	if err := s.Start(); err != nil {
		zap.S().Fatalw("failed to start scheduler", "error", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zap.S().Infow("planner-alerts is up and running",
			"port", a.Config.Port,
			"url", a.Config.BaseURL,
			"feed", a.Config.FeedBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	zap.S().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("graceful shutdown failed", "error", err)
	}
	s.Stop()
	a.Close(ctx)
	_ = zap.L().Sync()
}
