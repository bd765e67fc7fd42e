package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

type Config struct {
	Brokers []string
	Topic   string
}

// ParseConfig parses a comma-separated broker string.
func ParseConfig(brokers string, topic string) Config {
	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}

	return Config{
		Brokers: brokerList,
		Topic:   topic,
	}
}

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events to a single topic.
type Producer struct {
	writer Writer
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

func NewProducerWithWriter(writer Writer, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// MessageKey partitions events by template so that consumers see the events of
// one template in publish order. Space-level events are keyed by space.
func MessageKey(event events.Event) string {
	if event.TemplateID == 0 {
		return fmt.Sprintf("%d", event.SpaceID)
	}
	return fmt.Sprintf("%d:%d", event.SpaceID, event.TemplateID)
}

// Publish writes event to the topic. It has the events.Handler signature so it
// can be subscribed to the bus directly.
func (p *Producer) Publish(ctx context.Context, event events.Event) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event_type", string(event.Kind)),
		attribute.Int64("space_id", event.SpaceID),
		attribute.Int64("template_id", event.TemplateID),
	)

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.Kind)},
	}
	if event.RequestID != "" {
		headers = append(headers, kafka.Header{Key: "request_id", Value: []byte(event.RequestID)})
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(MessageKey(event)),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s to Kafka topic %s", event.Kind, p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published %s to Kafka: space=%d template=%d", event.Kind, event.SpaceID, event.TemplateID)

	return nil
}
