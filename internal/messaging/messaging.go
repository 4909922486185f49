// Package messaging carries order lifecycle events over Kafka.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/config"
)

const fetchBackoff = time.Second

// Message represents a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient returns the kafka client, or a noop client when messaging is off.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	msg := cfg.Messaging
	switch {
	case !msg.Enabled, msg.Driver == "noop":
		logger.Info("messaging disabled, using noop client")
		return NewNoopClient(msg.Kafka.Topic), nil
	case msg.Driver == "kafka":
		client := newKafkaClient(msg, logger)
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", msg.Driver)
	}
}

// NewNoopClient returns a client that drops published messages and blocks
// consumers until their context ends.
func NewNoopClient(topic string) Client {
	return noopClient{topic: topic}
}

type noopClient struct {
	topic string
}

func (noopClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

func (noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

// groupReader is the slice of *kafka.Reader the consumer loop needs.
type groupReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaClient struct {
	writer   *kafka.Writer
	reader   groupReader
	topic    string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

func newKafkaClient(cfg config.Messaging, logger *zap.Logger) *kafkaClient {
	k := cfg.Kafka
	log := kafkaLogger{sugar: logger.Sugar()}
	return &kafkaClient{
		writer: &kafka.Writer{
			Addr:  kafka.TCP(k.Brokers...),
			Topic: k.Topic,
			// Hashing the key (the order id) keeps one order's events on one
			// partition, in publish order.
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Logger:       log,
			ErrorLogger:  log,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        k.Brokers,
			GroupID:        cfg.ConsumerGroup,
			Topic:          k.Topic,
			MinBytes:       k.MinBytes,
			MaxBytes:       k.MaxBytes,
			CommitInterval: k.CommitInterval,
			Dialer: &kafka.Dialer{
				Timeout:  k.ConnectTimeout,
				ClientID: k.ClientID,
			},
		}),
		topic:    k.Topic,
		attempts: k.MaxAttempts,
		backoff:  k.RetryBackoff,
		logger:   logger,
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	msg := kafka.Message{Key: key, Value: value}
	for name, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Consume feeds every fetched message to handler. A message whose handler
// keeps failing after the configured attempts is logged and committed so the
// partition is not blocked behind it.
func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		raw, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			if err := sleep(ctx, fetchBackoff); err != nil {
				return err
			}
			continue
		}

		if err := k.deliver(ctx, handler, fromKafka(raw)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("dropping message after retries",
				zap.Int64("offset", raw.Offset),
				zap.ByteString("key", raw.Key),
				zap.Error(err),
			)
		}

		if err := k.reader.CommitMessages(ctx, raw); err != nil {
			k.logger.Warn("commit failed", zap.Int64("offset", raw.Offset), zap.Error(err))
		}
	}
}

func (k *kafkaClient) deliver(ctx context.Context, handler Handler, msg Message) error {
	attempts := max(k.attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		k.logger.Warn("message handler failed",
			zap.Int("attempt", i),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		if i < attempts {
			if serr := sleep(ctx, k.backoff*time.Duration(i)); serr != nil {
				return serr
			}
		}
	}
	return err
}

// Close flushes the writer and leaves the consumer group.
func (k *kafkaClient) Close() error {
	k.logger.Info("closing kafka client")
	return errors.Join(k.writer.Close(), k.reader.Close())
}

func fromKafka(m kafka.Message) Message {
	out := Message{
		Topic:  m.Topic,
		Key:    append([]byte(nil), m.Key...),
		Value:  append([]byte(nil), m.Value...),
		Offset: m.Offset,
		Time:   m.Time,
	}
	if len(m.Headers) > 0 {
		out.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type kafkaLogger struct {
	sugar *zap.SugaredLogger
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	k.sugar.Debugf(msg, args...)
}
