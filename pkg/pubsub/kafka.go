package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	pkglog "github.com/weiawesome/wes-io-stage/pkg/log"
)

// Session channels map onto one topic per stream, keyed by session so every
// event of a session lands on the same partition and keeps its order.
//
//	"stage:session:S1:program" → topic "stage-program", key "S1"
//	"stage:session:*:control"  → topic "stage-control", every key
func splitChannel(channel string) (topic, session string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "session" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	topic = parts[0] + "-" + strings.ReplaceAll(parts[3], "_", "-")
	session = parts[2]
	if session == "*" {
		session = ""
	}
	return topic, session, nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type kafkaSubscription struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// KafkaPubSub implements PubSub on Kafka. Every subscription is its own
// consumer group so each window sees every event, like Redis pub/sub.
type KafkaPubSub struct {
	producer *kafka.Producer
	config   KafkaConfig

	mu            sync.Mutex
	subscriptions map[string][]*kafkaSubscription
	closed        bool
	eventsDone    chan struct{}
}

// NewKafkaPubSub creates the producer and makes sure the session topics exist.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:      p,
		config:        cfg,
		subscriptions: make(map[string][]*kafkaSubscription),
		eventsDone:    make(chan struct{}),
	}
	go k.drainEvents()

	if err := k.ensureTopics(); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics, may already exist")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var specs []kafka.TopicSpecification
	for _, stream := range []string{"program", "control"} {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             "stage-" + stream,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := pkglog.L()
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

// drainEvents logs producer-level errors. Delivery reports go to the
// per-message channel passed by Publish.
func (k *KafkaPubSub) drainEvents() {
	defer close(k.eventsDone)
	l := pkglog.L()
	for e := range k.producer.Events() {
		if ev, ok := e.(kafka.Error); ok {
			l.Error().Err(ev).Bool("fatal", ev.IsFatal()).Msg("kafka pubsub producer error")
		}
	}
}

// Publish produces the event and waits for the broker to acknowledge it, so
// callers learn about a lost delta.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, session, err := splitChannel(channel)
	if err != nil {
		return err
	}
	if session == "" {
		return fmt.Errorf("cannot publish to pattern %s", channel)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return ErrClosed
	}

	delivery := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(session),
		Value:          data,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe follows one session's channel.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return k.subscribe(ctx, channel)
}

// SubscribePattern follows a stream across sessions. Only a "*" session
// segment is supported.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return k.subscribe(ctx, pattern)
}

func (k *KafkaPubSub) subscribe(ctx context.Context, key string) (<-chan *Event, error) {
	topic, session, err := splitChannel(key)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}

	group := k.config.GroupID
	if group == "" {
		group = "stage"
	}
	group = groupIDRegexp.ReplaceAllString(fmt.Sprintf("%s-%s-%s", group, key, uuid.NewString()), "-")

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           group,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{key: key, cancel: cancel, done: make(chan struct{})}
	k.subscriptions[key] = append(k.subscriptions[key], sub)

	out := make(chan *Event, 100)
	go k.consume(subCtx, c, sub, out, session)
	return out, nil
}

// consume owns the consumer; it is the only goroutine that polls or closes it.
func (k *KafkaPubSub) consume(ctx context.Context, c *kafka.Consumer, sub *kafkaSubscription, out chan<- *Event, session string) {
	l := pkglog.L()
	defer func() {
		c.Close()
		close(out)
		k.forget(sub)
		close(sub.done)
	}()

	for ctx.Err() == nil {
		switch e := c.Poll(250).(type) {
		case *kafka.Message:
			if session != "" && string(e.Key) != session {
				continue
			}
			var event Event
			if err := json.Unmarshal(e.Value, &event); err != nil {
				l.Warn().Err(err).Str("topic", *e.TopicPartition.Topic).Msg("kafka pubsub: dropping undecodable event")
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Str("subscription", sub.key).Msg("kafka pubsub consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) forget(sub *kafkaSubscription) {
	k.mu.Lock()
	defer k.mu.Unlock()
	subs := k.subscriptions[sub.key]
	for i, s := range subs {
		if s == sub {
			k.subscriptions[sub.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(k.subscriptions[sub.key]) == 0 {
		delete(k.subscriptions, sub.key)
	}
}

// Unsubscribe ends every subscription registered under channel and waits
// for their consumers to close.
func (k *KafkaPubSub) Unsubscribe(_ context.Context, channel string) error {
	k.mu.Lock()
	subs := append([]*kafkaSubscription(nil), k.subscriptions[channel]...)
	k.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// Close ends all subscriptions, flushes pending events and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	var all []*kafkaSubscription
	for _, subs := range k.subscriptions {
		all = append(all, subs...)
	}
	k.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
		<-sub.done
	}

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.eventsDone
	return nil
}
