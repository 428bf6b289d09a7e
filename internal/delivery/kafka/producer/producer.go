package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	kafka "github.com/pitchside/tacticsroom/internal/delivery/kafka"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

type Producer interface {
	PublishSessionStarted(ctx context.Context, event kafka.SessionStartedEvent) error
	PublishSessionEnded(ctx context.Context, event kafka.SessionEndedEvent) error
	PublishConflictResolved(ctx context.Context, event kafka.ConflictResolvedEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishSessionStarted(ctx context.Context, event kafka.SessionStartedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicSessionStarted, event.FormationID, event, "PublishSessionStarted")
}

func (p *implProducer) PublishSessionEnded(ctx context.Context, event kafka.SessionEndedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicSessionEnded, event.FormationID, event, "PublishSessionEnded")
}

func (p *implProducer) PublishConflictResolved(ctx context.Context, event kafka.ConflictResolvedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicConflictResolved, event.FormationID, event, "PublishConflictResolved")
}

func (p *implProducer) send(ctx context.Context, topic, key string, event any, op string) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.%s: %v", op, err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by formation_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	return p.prod.Close()
}

// noopProducer stands in when Kafka is disabled; publishes vanish.
type noopProducer struct{}

func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) PublishSessionStarted(context.Context, kafka.SessionStartedEvent) error {
	return nil
}

func (noopProducer) PublishSessionEnded(context.Context, kafka.SessionEndedEvent) error {
	return nil
}

func (noopProducer) PublishConflictResolved(context.Context, kafka.ConflictResolvedEvent) error {
	return nil
}

func (noopProducer) Close() error { return nil }
