// Package bus consumes enveloped controller operations from Kafka. It is
// the store-and-forward path for controllers behind a broker: each message
// carries the sealed body, the nonce in the x-iv header and the operation
// name in x-operation. Replies are published to an optional reply topic.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
)

const (
	HeaderNonce         = "x-iv"
	HeaderOperation     = "x-operation"
	HeaderCorrelationID = "x-correlation-id"
	HeaderError         = "x-error"
)

type Config struct {
	Brokers    []string
	Topic      string
	GroupID    string
	ReplyTopic string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	writer  messageWriter
	gateway *gateway.Gateway
	logger  *zap.Logger
}

func NewConsumer(cfg Config, gw *gateway.Gateway, logger *zap.Logger) (*Consumer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		}),
		gateway: gw,
		logger:  logger,
	}
	if topic := strings.TrimSpace(cfg.ReplyTopic); topic != "" {
		c.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return c, nil
}

// Run fetches and handles messages until ctx is cancelled or the reader is
// closed. Each message is committed after it is handled, whatever the
// outcome; failed operations are reported on the reply topic, not retried.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.HandleMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// HandleMessage runs one enveloped operation and publishes the reply when
// a reply topic is configured.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) {
	iv := header(msg, HeaderNonce)
	correlationID := header(msg, HeaderCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	reply := kafka.Message{
		Key: msg.Key,
		Headers: []kafka.Header{
			{Key: HeaderNonce, Value: []byte(iv)},
			{Key: HeaderCorrelationID, Value: []byte(correlationID)},
		},
	}

	op, err := gateway.ParseOperation(header(msg, HeaderOperation))
	if err == nil {
		reply.Headers = append(reply.Headers, kafka.Header{Key: HeaderOperation, Value: []byte(op)})
		reply.Value, err = c.gateway.Handle(ctx, op, iv, msg.Value)
	}
	if err != nil {
		code := gateway.Classify(err)
		c.logger.Warn("bus message rejected",
			zap.String("correlation_id", correlationID),
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.String("code", string(code)),
		)
		reply.Value = nil
		reply.Headers = append(reply.Headers, kafka.Header{Key: HeaderError, Value: []byte(code)})
	}

	if c.writer == nil {
		return
	}
	if err := c.writer.WriteMessages(ctx, reply); err != nil {
		c.logger.Error("publish reply failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}

func (c *Consumer) Close() error {
	var errs []error
	if c.reader != nil {
		errs = append(errs, c.reader.Close())
	}
	if c.writer != nil {
		errs = append(errs, c.writer.Close())
	}
	return errors.Join(errs...)
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}
