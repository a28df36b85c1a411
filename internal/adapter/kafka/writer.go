package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/alerthub-service/internal/config"
	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// Header keys set on every enrichment task message.
const (
	HeaderReportID = "report_id"
	HeaderOutboxID = "outbox_id"
)

// Writer publishes enrichment tasks to the work queue topic.
// It implements pipeline.TaskPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured enrichment topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaEnrichmentTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes outbox entries in a single WriteMessages call. Messages are
// keyed by report id so tasks for one report stay on one partition.
func (w *Writer) Publish(ctx context.Context, entries []domain.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(entries))
	for i, e := range entries {
		msgs[i] = entryToMessage(e)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d enrichment tasks: %w", len(msgs), err)
	}
	w.logger.Debug("enrichment tasks published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// entryToMessage maps an outbox entry to a Kafka message.
func entryToMessage(e domain.OutboxEntry) kafkago.Message {
	reportID := e.Key()
	return kafkago.Message{
		Key:   []byte(reportID),
		Value: e.Payload,
		Headers: []kafkago.Header{
			{Key: HeaderReportID, Value: []byte(reportID)},
			{Key: HeaderOutboxID, Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	}
}
