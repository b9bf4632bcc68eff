package main

import (
	"PicStore/config"
	"PicStore/internal/app"
	"PicStore/internal/mq"
	"PicStore/internal/worker"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	once := pflag.Bool("once", false, "run a single orphan sweep and exit")
	envFile := pflag.String("env", ".env", "optional dotenv file")
	pflag.Parse()

	cfg := config.Load(*envFile)
	config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep worker: build")
	}
	defer a.Close()

	if *once {
		deleted, err := a.Pictures.SweepOrphans(ctx)
		if err != nil {
			log.Error().Err(err).Int("deleted", deleted).Msg("sweep failed")
			a.Close()
			os.Exit(1)
		}
		log.Info().Int("deleted", deleted).Msg("sweep done")
		return
	}

	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep worker: dial rabbitmq")
	}
	defer client.Close()

	log.Info().Msg("sweep worker started")
	limiter := worker.NewLimiter(cfg.SweepRate, cfg.SweepBurst)
	if err := worker.RunSweepWorker(ctx, client, a.Pictures, limiter, cfg.RabbitPrefetch); err != nil {
		log.Fatal().Err(err).Msg("sweep worker stopped")
	}
}
