package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream and subject layout. The routing key becomes the final subject token,
// so events sharing a key are delivered in publish order.
const (
	StreamName = "DELIVERY_EVENTS"

	SubjectMain    = "notify.email"
	SubjectRetry   = "notify.retry"
	SubjectDLQ     = "notify.dlq"
	SubjectSuccess = "notify.success"
	SubjectFailed  = "notify.failed"
	SubjectAudit   = "notify.audit"
)

// Config holds JetStream connection and stream settings.
type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Client wraps a NATS connection with the JetStream stream used by the
// notification pipeline.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
	logger *slog.Logger
}

// Connect establishes the NATS connection and ensures the delivery stream
// exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", "error", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Client{nc: nc, js: js, config: cfg, logger: logger}

	if err := c.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return c, nil
}

func (c *Client) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Delivery event stream for the notification pipeline",
		Subjects:    []string{"notify.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      c.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  c.config.DuplicateWindow,
	}

	if _, err := c.js.Stream(ctx, StreamName); err != nil {
		if _, err := c.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		c.logger.Info("created JetStream stream", "stream", StreamName)
	}
	return nil
}

// Publish writes data to subjectPrefix.<key> with the given message id for
// stream-level duplicate detection, and returns the server acknowledgement.
func (c *Client) Publish(ctx context.Context, subjectPrefix, key, msgID string, data []byte) (*jetstream.PubAck, error) {
	subject := SubjectFor(subjectPrefix, key)

	ack, err := c.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-ID": []string{msgID},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(StreamName),
	)
	if err != nil {
		return nil, fmt.Errorf("publish to %s: %w", subject, err)
	}

	c.logger.Debug("published event",
		"subject", subject,
		"event_id", msgID,
		"sequence", ack.Sequence,
	)
	return ack, nil
}

// EnsureConsumer creates or reuses a durable consumer filtered to one subject
// prefix, with explicit acknowledgement.
func (c *Client) EnsureConsumer(ctx context.Context, name, subjectPrefix string) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: subjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	}

	consumer, err := stream.Consumer(ctx, name)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create consumer %s: %w", name, err)
		}
		c.logger.Info("created JetStream consumer", "consumer", name, "filter", cfg.FilterSubject)
	}
	return consumer, nil
}

// Close closes the underlying NATS connection.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// SubjectFor joins a subject prefix with a sanitized routing key.
func SubjectFor(prefix, key string) string {
	if key == "" {
		key = "none"
	}
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return prefix + "." + b.String()
}
