package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"defter-backend/internal/events"
	"defter-backend/internal/logger"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Publisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewPublisher writes asynchronously to topic. Messages are keyed by user so
// one user's events stay ordered within a partition.
func NewPublisher(brokers []string, topic string) *Publisher {
	p := &Publisher{log: logger.WithComponent("kafka")}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion:   p.completion,
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Error().Err(err).Str("type", e.Type).Msg("marshal event")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(e.UserID), 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		p.log.Warn().Err(err).Str("type", e.Type).Msg("publish event")
	}
}

func (p *Publisher) completion(messages []kafka.Message, err error) {
	if err != nil {
		p.log.Warn().Err(err).Int("messages", len(messages)).Msg("event delivery failed")
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
