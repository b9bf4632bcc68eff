package main

import (
	"PicStore/config"
	"PicStore/internal/app"
	"PicStore/internal/handler"
	"PicStore/internal/mq"
	"PicStore/router"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// main wires the store and serves the HTTP API until interrupted.
func main() {
	cfg := config.Load()
	config.SetupLogger(cfg)
	if !cfg.LogPretty {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start picture store")
	}
	defer a.Close()

	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()

	h := handler.New(a.Pictures, a.Products, publisher, cfg.MaxUploadBytes)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.InitRouter(h, cfg.JWTSecret, cfg.MaxUploadBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
}
