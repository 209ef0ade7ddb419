// Package messaging publishes domain events to the message bus.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher is the pluggable event publishing abstraction.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte) error
	Topic() string
	Close() error
}

// Config selects and configures the publisher.
type Config struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// noopPublisher is used when messaging is disabled.
type noopPublisher struct {
	topic string
}

func (n noopPublisher) Publish(context.Context, []byte, []byte) error { return nil }
func (n noopPublisher) Topic() string                                 { return n.topic }
func (n noopPublisher) Close() error                                  { return nil }

// kafkaPublisher implements Publisher via kafka-go.
type kafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

func (k *kafkaPublisher) Publish(ctx context.Context, key []byte, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (k *kafkaPublisher) Topic() string { return k.topic }

func (k *kafkaPublisher) Close() error { return k.writer.Close() }

// NewPublisher builds a publisher based on configuration.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("messaging disabled; using noop publisher")
		}
		return noopPublisher{topic: cfg.Topic}, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("messaging: at least one kafka broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("messaging: kafka topic required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	if logger != nil {
		writer.Logger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), slog.String("component", "kafka"))
		})
		writer.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), slog.String("component", "kafka"))
		})
	}
	return &kafkaPublisher{writer: writer, topic: cfg.Topic}, nil
}
