// Package events announces finished training runs over NATS so running
// services can load the new snapshot.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const SubjectRunPublished = "resalegeo.runs.published"

// RunPublished is sent once a run's files are saved.
type RunPublished struct {
	RunID      string         `json:"runId"`
	Timestamp  time.Time      `json:"timestamp"`
	Entities   []string       `json:"entities"`
	Clusters   map[string]int `json:"clusters"`
	Rows       int            `json:"rows"`
	ObjectKeys []string       `json:"objectKeys,omitempty"`
}

// Publisher is the side the training pipeline needs.
type Publisher interface {
	PublishRun(ctx context.Context, ev RunPublished) error
}

type Config struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	Subject        string        `yaml:"subject"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Bus publishes and subscribes to run events.
type Bus struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func Connect(cfg Config, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = SubjectRunPublished
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Bus{conn: conn, subject: cfg.Subject, logger: logger}, nil
}

// Encode and Decode are the JSON codec for event payloads.
func Encode[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return v, nil
}

func (b *Bus) PublishRun(ctx context.Context, ev RunPublished) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("failed to publish run %s: %w", ev.RunID, err)
	}
	return b.conn.FlushWithContext(ctx)
}

// SubscribeRuns calls handle for every run event. Undecodable messages are
// logged and dropped.
func (b *Bus) SubscribeRuns(handle func(RunPublished)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		ev, err := Decode[RunPublished](msg.Data)
		if err != nil {
			b.logger.Warn("dropping run event", "subject", msg.Subject, "error", err)
			return
		}
		handle(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	return b.conn.Drain()
}
