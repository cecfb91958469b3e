// Package events fans ledger and workflow changes out to Kafka and to the
// admin live feed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"propvest/pkg/config"
	"propvest/pkg/logger"
)

const (
	TypeWalletMutated      = "wallet.mutated"
	TypeTransactionChanged = "transaction.status_changed"
	TypeProfitCalculated   = "profit.calculated"
	TypeProfitDistributed  = "profit.distributed"
	TypeInvestmentChanged  = "investment.status_changed"
)

var kafkaPublishErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_publish_errors_total",
		Help: "Total number of Kafka publish errors",
	},
	[]string{"type"},
)

// Event is the envelope written to every sink. Key selects the Kafka
// partition, so all events of one wallet stay ordered.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// New stamps an event for the given wallet.
func New(eventType string, walletID int64, payload interface{}) Event {
	return Event{
		Type:       eventType,
		Key:        strconv.FormatInt(walletID, 10),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultPublishTimeout = 2 * time.Second

// NewKafkaWriter builds a synchronous writer whose retries fit inside the
// publish timeout, so a broker outage costs a request at most that long.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: publishTimeout(cfg.PublishTimeout),
	}
}

type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  logger.Logger
}

func NewKafkaPublisher(writer MessageWriter, timeout time.Duration, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, timeout: publishTimeout(timeout), logger: log}
}

func publishTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPublishTimeout
	}
	return d
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		kafkaPublishErrors.WithLabelValues(evt.Type).Inc()
		p.logger.Error("Failed to publish event", map[string]interface{}{
			"type":  evt.Type,
			"key":   evt.Key,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
