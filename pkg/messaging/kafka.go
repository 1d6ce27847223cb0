// Package messaging publishes domain events to Kafka.
package messaging

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/pkg/config"
)

const publishTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON encoded messages to a single topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewProducer returns nil when Kafka is not configured; a nil producer skips publishing.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
		WriteTimeout: 10 * time.Second,
	}
	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(w messageWriter, topic string, logger *zap.Logger) *Producer {
	return &Producer{writer: w, topic: topic, logger: logger}
}

// Publish encodes payload as JSON and writes it keyed by key. Messages with
// the same key land on the same partition.
func (p *Producer) Publish(ctx context.Context, key string, payload interface{}) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Time: time.Now().UTC()}); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("kafka message published", zap.String("topic", p.topic), zap.String("key", key))
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
