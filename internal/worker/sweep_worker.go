package worker

import (
	"PicStore/internal/dto"
	"PicStore/internal/mq"
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Sweeper is the picture service operation the worker drives.
type Sweeper interface {
	SweepOrphans(ctx context.Context) (int, error)
}

type deadLetters interface {
	PublishDLQ(ctx context.Context, body []byte) error
}

type dlqMessage struct {
	Request  dto.SweepMessage `json:"request"`
	Error    string           `json:"error"`
	FailedAt time.Time        `json:"failed_at"`
}

// NewLimiter allows one sweep per every, with burst sweeps back to back.
func NewLimiter(every time.Duration, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(every), burst)
}

// RunSweepWorker consumes sweep requests until ctx is done.
func RunSweepWorker(ctx context.Context, client *mq.Client, sweeper Sweeper, limiter *rate.Limiter, prefetch int) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueSweep,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	// sweeps are handled one at a time, two concurrent sweeps would only
	// fight over the same rows
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("sweep worker: delivery channel closed")
			}
			handleSweepMessage(ctx, client, sweeper, limiter, delivery)
		}
	}
}

func handleSweepMessage(ctx context.Context, dlq deadLetters, sweeper Sweeper, limiter *rate.Limiter, delivery amqp.Delivery) {
	var msg dto.SweepMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Warn().Err(err).Msg("sweep worker: invalid message")
		_ = delivery.Ack(false)
		return
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			_ = delivery.Nack(false, true)
			return
		}
	}

	deleted, err := sweeper.SweepOrphans(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = delivery.Nack(false, true)
			return
		}
		log.Error().Err(err).Int("deleted", deleted).Msg("sweep worker: sweep failed")
		body, _ := json.Marshal(dlqMessage{Request: msg, Error: err.Error(), FailedAt: time.Now()})
		if err := dlq.PublishDLQ(ctx, body); err != nil {
			log.Error().Err(err).Msg("sweep worker: publish to dlq failed")
			_ = delivery.Nack(false, true)
			return
		}
		_ = delivery.Ack(false)
		return
	}

	log.Info().Int("deleted", deleted).Str("requested_by", msg.RequestedBy).Msg("sweep worker: sweep done")
	_ = delivery.Ack(false)
}
