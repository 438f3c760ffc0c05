package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const EventTypeReportWritten = "report.written"

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// ParseBrokers trims a comma-separated or pre-split broker list
func ParseBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes stage report events
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) (*Producer, error) {
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(ParseBrokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported kafka compression: %s", name)
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ReportEventMessage announces a written stage report
type ReportEventMessage struct {
	Type        string         `json:"type"`
	RunID       string         `json:"run_id"`
	Stage       string         `json:"stage"`
	Environment string         `json:"environment"`
	Outcome     string         `json:"outcome"`
	Pass        *bool          `json:"pass,omitempty"`
	ReportURL   string         `json:"report_url"`
	Counts      map[string]int `json:"counts,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishReport publishes a report event keyed by stage and environment
func (p *Producer) PublishReport(ctx context.Context, msg *ReportEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishReport")
	defer span.End()

	if msg == nil {
		return fmt.Errorf("report event is nil")
	}
	if msg.Type == "" {
		msg.Type = EventTypeReportWritten
	}

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("stage", msg.Stage),
		attribute.String("run_id", msg.RunID),
	)

	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal report event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "type", Value: []byte(msg.Type)},
		{Key: "stage", Value: []byte(msg.Stage)},
		{Key: "environment", Value: []byte(msg.Environment)},
		{Key: "run_id", Value: []byte(msg.RunID)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(fmt.Sprintf("%s:%s", msg.Stage, msg.Environment)),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish report event to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}
