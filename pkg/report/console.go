package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// PrintSummary writes the human-readable summary of doc to out.
func PrintSummary(out io.Writer, doc Document, reportURL string) {
	meta := doc.ReportMeta()
	fmt.Fprintf(out, "== %s (%s) run %s ==\n", meta.Stage, meta.Environment, meta.RunID)
	fmt.Fprintf(out, "duration: %s\n", meta.FinishedAt.Sub(meta.StartedAt).Round(1e6))

	counts := doc.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%d\n", k, counts[k])
	}
	_ = tw.Flush()

	for _, line := range doc.SummaryLines() {
		fmt.Fprintln(out, line)
	}
	if reportURL != "" {
		fmt.Fprintf(out, "report: %s\n", reportURL)
	}
}

// Truncate returns at most limit items and how many were left out.
func Truncate[T any](items []T, limit int) ([]T, int) {
	if limit < 0 || len(items) <= limit {
		return items, 0
	}
	return items[:limit], len(items) - limit
}
