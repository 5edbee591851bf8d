package repository

import (
	"context"

	"Fractal/internal/domain/models"
	"Fractal/pkg/kafka"
)

// KafkaSnapshotPublisher emits one message per snapshot, keyed by symbol so an asset's
// snapshots stay on one partition.
type KafkaSnapshotPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSnapshotPublisher(producer *kafka.Producer, topic string) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, snaps []models.KernelSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(snaps))
	for _, s := range snaps {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s.Symbol),
			Value: s,
			Headers: map[string]string{
				"event":  "kernel.snapshot",
				"focus":  string(s.Focus),
				"preset": string(s.Preset),
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	return p.producer.Close()
}

// NopSnapshotPublisher is used when Kafka is disabled.
type NopSnapshotPublisher struct{}

func (NopSnapshotPublisher) Publish(context.Context, []models.KernelSnapshot) error { return nil }
func (NopSnapshotPublisher) Close() error                                           { return nil }
