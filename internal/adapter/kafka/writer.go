package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	defaultBatchSize   = 1000
	defaultMaxAttempts = 5
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes daily rows to a Kafka topic, one JSON message per row.
// It implements pipeline.DailySink.
type Writer struct {
	writer      messageWriter
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewWriter creates a Kafka producer for the configured daily topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, logger)
}

func newWriter(w messageWriter, logger *slog.Logger) *Writer {
	return &Writer{
		writer:      w,
		logger:      logger,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		backoff:     200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
	}
}

// WriteDaily publishes rows in batches. A failed batch is retried with exponential
// backoff before the error is returned.
func (w *Writer) WriteDaily(ctx context.Context, source domain.Source, metric domain.Metric, rows []domain.DailyRow) error {
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, r := range rows[start:end] {
			msg, err := serializeToMessage(r)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writeWithRetry(ctx, msgs); err != nil {
			return fmt.Errorf("publish %s %s daily rows: %w", source, metric, err)
		}
	}
	return nil
}

func (w *Writer) writeWithRetry(ctx context.Context, msgs []kafkago.Message) error {
	backoff := w.backoff
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == w.maxAttempts {
			break
		}
		w.logger.Warn("kafka write failed, retrying", "error", err, "attempt", attempt, "batch_size", len(msgs))
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, w.maxBackoff)
	}
	return err
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

type dailyMessage struct {
	Source     string `json:"source"`
	Metric     string `json:"metric"`
	Date       string `json:"date"`
	FIPS       string `json:"fips"`
	Cumulative int64  `json:"cum"`
	Daily      *int64 `json:"daily"`
}

// serializeToMessage marshals a daily row into a Kafka message keyed by
// source, metric, unit, and date.
func serializeToMessage(r domain.DailyRow) (kafkago.Message, error) {
	m := dailyMessage{
		Source:     string(r.Source),
		Metric:     string(r.Metric),
		Date:       r.Date.Format(time.DateOnly),
		FIPS:       r.ID.String(),
		Cumulative: r.Cumulative,
	}
	if r.HasDaily {
		d := r.Daily
		m.Daily = &d
	}
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize daily row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.Source + "|" + m.Metric + "|" + m.FIPS + "|" + m.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(m.Source)},
			{Key: "metric", Value: []byte(m.Metric)},
		},
	}, nil
}
