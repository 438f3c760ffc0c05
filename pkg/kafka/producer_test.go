package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return &Producer{
		writer: w,
		logger: ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}),
		topic:  "city-reconciliation-reports",
	}
}

func TestPublishReport(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)
	pass := true

	err := p.PublishReport(context.Background(), &ReportEventMessage{
		RunID:       "run-1",
		Stage:       "gate",
		Environment: "production",
		Outcome:     "success",
		Pass:        &pass,
		ReportURL:   "reports/gate-production-20260301T120000.000Z.json",
		Counts:      map[string]int{"missingInPostgres": 0},
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "gate:production", string(msg.Key))

	var decoded ReportEventMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, EventTypeReportWritten, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)
	require.NotNil(t, decoded.Pass)
	assert.True(t, *decoded.Pass)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "gate", headers["stage"])
	assert.Equal(t, "run-1", headers["run_id"])
}

func TestPublishReport_WriteError(t *testing.T) {
	p := newTestProducer(&fakeWriter{err: errors.New("leader not available")})
	err := p.PublishReport(context.Background(), &ReportEventMessage{RunID: "run-1", Stage: "audit"})
	assert.Error(t, err)
}

func TestPublishReport_Nil(t *testing.T) {
	p := newTestProducer(&fakeWriter{})
	assert.Error(t, p.PublishReport(context.Background(), nil))
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092", "c:9092"}, ParseBrokers([]string{"a:9092, b:9092", " c:9092 ", ""}))
}

func TestParseCompression(t *testing.T) {
	c, err := parseCompression("snappy")
	require.NoError(t, err)
	assert.Equal(t, kafka.Snappy, c)

	c, err = parseCompression("")
	require.NoError(t, err)
	assert.Equal(t, kafka.Compression(0), c)

	_, err = parseCompression("brotli")
	assert.Error(t, err)
}

func TestNewProducer(t *testing.T) {
	p, err := NewProducer(Config{Brokers: []string{"localhost:9092"}, Topic: "reports", RequiredAcks: 1, Compression: "gzip"}, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
