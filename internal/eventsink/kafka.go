package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hsichihchen-design/cpdoldsim/pkg/cloudevents"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
	"github.com/hsichihchen-design/cpdoldsim/pkg/resilience"
)

// DefaultTopic carries every simulator lifecycle event.
const DefaultTopic = "cpdold.sim.events"

// KafkaConfig holds producer settings for the Kafka sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        DefaultTopic,
		ClientID:     "cpdold-simulator",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1,
	}
}

// Kafka publishes simulation CloudEvents to a single Kafka topic. Writes go
// through a circuit breaker so a dead broker degrades a run to warnings
// instead of stalling the event loop.
type Kafka struct {
	writer  *kafka.Writer
	breaker *resilience.CircuitBreaker
	mon     *metrics.Metrics
	logger  *slog.Logger
	topic   string
}

// NewKafka builds a Kafka sink. Metrics are optional; a nil logger falls
// back to the process default.
func NewKafka(cfg *KafkaConfig, mon *metrics.Metrics, logger *slog.Logger) *Kafka {
	if cfg == nil {
		cfg = DefaultKafkaConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  kafka.Snappy,
		Async:        false,
	}

	breaker := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:                  "kafka-sink",
		MaxRequests:           5,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}, logger)

	return &Kafka{
		writer:  writer,
		breaker: breaker,
		mon:     mon,
		logger:  logger.With("component", "kafka-sink"),
		topic:   cfg.Topic,
	}
}

// Publish sends one CloudEvent, keyed by subject so all events of a run
// land on the same partition in order.
func (k *Kafka) Publish(ctx context.Context, event *cloudevents.SimCloudEvent) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = k.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, k.writer.WriteMessages(ctx, msg)
	})
	if k.mon != nil {
		k.mon.RecordKafkaPublish(k.topic, event.Type, err == nil, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish event %s to topic %s: %w", event.Type, k.topic, err)
	}
	return nil
}

// Close flushes pending batches and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// BreakerStatus reports the circuit breaker snapshot for health endpoints.
func (k *Kafka) BreakerStatus() resilience.Status {
	return k.breaker.Status()
}

// kafkaMessage renders a CloudEvent as a Kafka message: JSON body plus ce-*
// headers so consumers can route without decoding the payload.
func kafkaMessage(event *cloudevents.SimCloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
		Time: event.Time,
	}

	if event.RunID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-simrunid", Value: []byte(event.RunID)})
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-simcorrelationid", Value: []byte(event.CorrelationID)})
	}

	return msg, nil
}
