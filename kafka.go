package ankylogate

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// KafkaPublisher produces every event as a JSON record, keyed by identity so
// one identity's decisions stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(client *kgo.Client, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}
}

func (k *KafkaPublisher) Publish(event RateLimitEvent) {
	record, err := k.record(event)
	if err != nil {
		k.logger.Warn("encode rate limit event", zap.String("identity", event.Identity), zap.Error(err))
		return
	}

	// asynchronous, the callback only reports failures
	k.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("produce rate limit event", zap.String("topic", r.Topic), zap.Error(err))
		}
	})
}

func (k *KafkaPublisher) record(event RateLimitEvent) (*kgo.Record, error) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.Identity),
		Value: eventBytes,
	}, nil
}
