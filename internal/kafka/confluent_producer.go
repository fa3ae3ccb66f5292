package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-stage/internal/metrics"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

const (
	headerType    = "asrun-type"
	headerVersion = "asrun-version"

	queueFullRetries = 3
)

// ConfluentProducer writes the as-run log to a Kafka topic. Delivery is
// asynchronous; failures are logged and counted, never surfaced to the
// operator.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

var _ AsRunProducer = (*ConfluentProducer)(nil)

// NewConfluentProducer creates the producer and the topic if it is missing.
func NewConfluentProducer(brokers, topic string, partitions int) (*ConfluentProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          20,
		"compression.type":   "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	if err := createTopic(p, topic, partitions); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure as-run topic, may already exist")
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}
	go cp.watchDeliveries()
	return cp, nil
}

func createTopic(p *kafka.Producer, topic string, partitions int) error {
	admin, err := kafka.NewAdminClientFromProducer(p)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	if partitions <= 0 {
		partitions = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{Topic: topic, NumPartitions: partitions, ReplicationFactor: 1},
	}, kafka.SetAdminOperationTimeout(5*time.Second))
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

func (cp *ConfluentProducer) watchDeliveries() {
	defer close(cp.doneCh)
	l := log.L()
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				metrics.AsRunDeliveryFailures.Inc()
				l.Error().
					Err(ev.TopicPartition.Error).
					Str("session", string(ev.Key)).
					Str(log.FieldLogType, log.LogTypeAsRun).
					Msg("as-run delivery failed")
			}
		case kafka.Error:
			l.Warn().Err(ev).Bool("fatal", ev.IsFatal()).Msg("as-run producer error")
		}
	}
}

// ProduceAsRun queues one record keyed by session, so a session's records
// keep their order. The record's own timestamp becomes the Kafka timestamp.
// A full local queue is retried briefly before giving up.
func (cp *ConfluentProducer) ProduceAsRun(ctx context.Context, event *AsRunEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal as-run event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &cp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Session),
		Value:          value,
		Timestamp:      time.UnixMilli(event.Timestamp),
		Headers: []kafka.Header{
			{Key: headerType, Value: []byte(event.Type)},
			{Key: headerVersion, Value: []byte(strconv.FormatUint(event.Version, 10))},
		},
	}

	for attempt := 0; ; attempt++ {
		err = cp.producer.Produce(msg, nil)
		if err == nil {
			return nil
		}
		if kerr, ok := err.(kafka.Error); !ok || kerr.Code() != kafka.ErrQueueFull || attempt == queueFullRetries {
			return fmt.Errorf("failed to produce as-run event: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Close flushes pending records and closes the producer.
func (cp *ConfluentProducer) Close() error {
	if left := cp.producer.Flush(5000); left > 0 {
		l := log.L()
		l.Warn().Int("pending", left).Msg("as-run records lost on shutdown")
	}
	cp.producer.Close()
	<-cp.doneCh
	return nil
}
