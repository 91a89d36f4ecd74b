// Package kafka publishes conversion outcomes as JSON events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/config"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/couchcryptid/argo-profile-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	maxAttempts    = 5
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Event is the message body published for one outcome.
type Event struct {
	RunID      string        `json:"run_id"`
	AttemptID  string        `json:"attempt_id"`
	File       string        `json:"file"`
	Source     string        `json:"source"`
	Status     domain.Status `json:"status"`
	Rows       int           `json:"rows"`
	Skipped    bool          `json:"skipped"`
	Missing    []string      `json:"missing,omitempty"`
	Error      string        `json:"error,omitempty"`
	Outputs    []string      `json:"outputs,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	FinishedAt time.Time     `json:"finished_at"`
}

// NewEvent builds the event for o.
func NewEvent(runID string, o domain.Outcome) Event {
	return Event{
		RunID:      runID,
		AttemptID:  o.AttemptID,
		File:       filepath.Base(o.Source),
		Source:     o.Source,
		Status:     o.Status,
		Rows:       o.Rows,
		Skipped:    o.Skipped,
		Missing:    o.Missing,
		Error:      o.ErrorText(),
		Outputs:    o.Outputs,
		DurationMS: o.Duration.Milliseconds(),
		FinishedAt: o.FinishedAt.UTC(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces outcome events to a Kafka topic.
type Publisher struct {
	writer    messageWriter
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
}

// NewPublisher creates a Kafka producer for the configured outcome topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, logger, metrics, cfg.BatchSize)
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Publisher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics, batchSize: batchSize}
}

// Publish writes one event per outcome in chunks of the configured batch
// size. Each chunk is retried with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, runID string, outcomes []domain.Outcome) error {
	msgs := make([]kafkago.Message, 0, len(outcomes))
	for _, o := range outcomes {
		msg, err := serializeToMessage(NewEvent(runID, o))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	for start := 0; start < len(msgs); start += p.batchSize {
		end := min(start+p.batchSize, len(msgs))
		if err := p.writeWithRetry(ctx, msgs[start:end]); err != nil {
			return fmt.Errorf("publish outcomes %d-%d: %w", start, end-1, err)
		}
		p.metrics.EventsPublished.Add(float64(end - start))
	}
	p.logger.Info("outcomes published", "run_id", runID, "events", len(msgs))
	return nil
}

func (p *Publisher) writeWithRetry(ctx context.Context, msgs []kafkago.Message) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("publish batch failed", "attempt", attempt, "batch_size", len(msgs), "error", err)
		if attempt == maxAttempts || !sharedretry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message keyed by file name.
func serializeToMessage(e Event) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(e.File),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "status", Value: []byte(e.Status.String())},
			{Key: "run_id", Value: []byte(e.RunID)},
			{Key: "finished_at", Value: []byte(e.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
