package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-sharing/internal/models"
)

const TypeRideMatched = "ride.matched"

// MatchEvent is the message value published for every successful match.
type MatchEvent struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	OccurredAt time.Time          `json:"occurredAt"`
	Match      models.MatchResult `json:"match"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes match events keyed by driver id, so one driver's
// matches stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second, now: time.Now}
}

func (k *KafkaPublisher) Notify(ctx context.Context, res models.MatchResult) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(MatchEvent{
		ID:         uuid.NewString(),
		Type:       TypeRideMatched,
		OccurredAt: k.now().UTC(),
		Match:      res,
	})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(strconv.Itoa(res.DriverID)), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
