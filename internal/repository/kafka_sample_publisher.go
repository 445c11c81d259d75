package repository

import (
	"context"

	"EnergyDash/internal/domain/models"
	"EnergyDash/internal/domain/repository"
	pkgkafka "EnergyDash/pkg/kafka"
)

// BatchPublisher is the part of pkg/kafka.Producer the publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSamplePublisher republishes samples as JSON keyed by feed datetime.
type KafkaSamplePublisher struct {
	producer BatchPublisher
	topic    string
}

// NewKafkaSamplePublisher creates Kafka publisher.
func NewKafkaSamplePublisher(producer BatchPublisher, topic string) *KafkaSamplePublisher {
	return &KafkaSamplePublisher{producer: producer, topic: topic}
}

func (p *KafkaSamplePublisher) Publish(ctx context.Context, s models.Sample) error {
	return p.PublishBatch(ctx, []models.Sample{s})
}

func (p *KafkaSamplePublisher) PublishBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(samples))
	for i, s := range samples {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Datetime), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSamplePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.SamplePublisher = (*KafkaSamplePublisher)(nil)
