// Package kafka forwards audit events to a Kafka topic so they can be
// retained and consumed outside the API process.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "accolade/pkg/platform/audit"
	"accolade/pkg/platform/sentinel"
)

const (
	headerEventID  = "event_id"
	headerCategory = "category"
)

// Store appends audit events as JSON records keyed by actor address, which
// keeps each actor's events ordered within a partition.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers and verifies at least one is reachable.
func New(ctx context.Context, brokers []string, topic string) (*Store, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("audit topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w: %w", sentinel.ErrUnavailable, err)
	}
	return &Store{client: client, topic: topic}, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func (s *Store) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, s.topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	return nil
}

// Append blocks until the broker acknowledges the record.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Key:       []byte(event.ActorID),
		Value:     payload,
		Timestamp: event.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: headerEventID, Value: []byte(event.ID)},
			{Key: headerCategory, Value: []byte(event.Category)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
