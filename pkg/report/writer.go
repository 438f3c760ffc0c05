package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Writer stores reports under a base URL: a local directory or any afs-supported storage URL.
type Writer struct {
	fs      afs.Service
	baseURL string
	logger  ectologger.Logger
}

func NewWriter(baseURL string, logger ectologger.Logger) *Writer {
	return &Writer{
		fs:      afs.New(),
		baseURL: resolveBaseURL(baseURL),
		logger:  logger,
	}
}

func resolveBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "reports"
	}
	if strings.Contains(baseURL, "://") {
		return baseURL
	}
	abs, err := filepath.Abs(baseURL)
	if err != nil {
		return baseURL
	}
	return abs
}

// Write stores doc as indented JSON and returns its URL. Existing reports are never overwritten.
func (w *Writer) Write(ctx context.Context, doc Document) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "report.Writer.Write")
	defer span.End()

	meta := doc.ReportMeta()
	URL := url.Join(w.baseURL, meta.FileName())

	exists, err := w.fs.Exists(ctx, URL)
	if err != nil {
		return "", fmt.Errorf("failed to check report %s: %w", URL, err)
	}
	if exists {
		return "", fmt.Errorf("report %s already exists", URL)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s report: %w", meta.Stage, err)
	}

	if err := w.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		tracing.RecordError(span, err)
		w.logger.WithContext(ctx).WithError(err).WithField("url", URL).Error("Failed to write report")
		return "", fmt.Errorf("failed to write report %s: %w", URL, err)
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"url":    URL,
		"stage":  meta.Stage,
		"run_id": meta.RunID,
	}).Info("Wrote stage report")
	return URL, nil
}

// Read loads a stored report into out.
func (w *Writer) Read(ctx context.Context, URL string, out any) error {
	data, err := w.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to read report %s: %w", URL, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode report %s: %w", URL, err)
	}
	return nil
}
