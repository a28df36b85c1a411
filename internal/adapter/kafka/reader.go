package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/alerthub-service/internal/config"
	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// Reader consumes enrichment tasks as part of a consumer group.
// It implements pipeline.TaskFetcher.
type Reader struct {
	reader      *kafkago.Reader
	logger      *slog.Logger
	fillTimeout time.Duration
}

// NewReader creates a consumer group reader for the enrichment topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaEnrichmentTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger, fillTimeout: cfg.BatchFlushInterval}
}

// FetchBatch blocks until one message is available, then keeps reading until
// batchSize messages are buffered or no further message arrives within the
// flush interval. Offsets are committed per message through TaskMessage.Commit.
func (r *Reader) FetchBatch(ctx context.Context, batchSize int) ([]domain.TaskMessage, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	batch := make([]domain.TaskMessage, 0, batchSize)
	batch = append(batch, r.toTaskMessage(first))

	for len(batch) < batchSize {
		fillCtx, cancel := context.WithTimeout(ctx, r.fillTimeout)
		msg, err := r.reader.FetchMessage(fillCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				// Hand back what was fetched; uncommitted messages are redelivered.
				return batch, nil
			}
			return batch, fmt.Errorf("fetch message: %w", err)
		}
		batch = append(batch, r.toTaskMessage(msg))
	}
	return batch, nil
}

func (r *Reader) toTaskMessage(msg kafkago.Message) domain.TaskMessage {
	tm := mapMessageToTaskMessage(msg)
	tm.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return tm
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToTaskMessage copies the transport fields of a Kafka message.
func mapMessageToTaskMessage(msg kafkago.Message) domain.TaskMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.TaskMessage{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
