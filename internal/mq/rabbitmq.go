package mq

import (
	"PicStore/internal/dto"
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeSweep = "picture.sweep.exchange"
	ExchangeDLQ   = "picture.sweep.dlq.exchange"

	QueueSweep = "picture.sweep.queue"
	QueueDLQ   = "picture.sweep.dlq.queue"

	RoutingSweep = "sweep"
	RoutingDLQ   = "sweep.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn.IsClosed() || c.Channel.IsClosed()
}

// DeclareTopology declares the sweep queue and the dead letter queue failed
// sweeps are parked in.
func (c *Client) DeclareTopology() error {
	for _, exchange := range []string{ExchangeSweep, ExchangeDLQ} {
		if err := c.Channel.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			return err
		}
	}
	bindings := []struct {
		queue, key, exchange string
	}{
		{QueueSweep, RoutingSweep, ExchangeSweep},
		{QueueDLQ, RoutingDLQ, ExchangeDLQ},
	}
	for _, b := range bindings {
		if _, err := c.Channel.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := c.Channel.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body)
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.Channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Publisher publishes sweep requests over a connection it re-dials when
// the broker dropped it.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return client, nil
}

// PublishSweep queues a sweep request.
func (p *Publisher) PublishSweep(ctx context.Context, msg dto.SweepMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.publish(ctx, ExchangeSweep, RoutingSweep, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
