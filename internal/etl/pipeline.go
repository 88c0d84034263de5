package etl

// pipeline.go sequences Extract -> Transform -> Load for one batch run.
//
// Each run is an independent job: no state crosses runs, and a run either
// completes with a summary or fails with a run-level error. Row-level
// problems never fail a run; they show up in the summary counts.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline wires the extractor, transformer and loader together.
type Pipeline struct {
	rawDataDir  string
	transformer *Transformer
	loader      RecordLoader
}

// NewPipeline creates a pipeline reading from rawDataDir and persisting
// through loader.
func NewPipeline(rawDataDir string, transformer *Transformer, loader RecordLoader) *Pipeline {
	return &Pipeline{
		rawDataDir:  rawDataDir,
		transformer: transformer,
		loader:      loader,
	}
}

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Extracted int
	Rejected  int
	Load      LoadReport
	TotalRows int64 // rows in the store after the run
}

// Run executes one full batch. Run-level failures (no input, store
// unreachable) return an error; per-row rejections and persist failures are
// reported in the summary.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	logger := slog.Default().With("run_id", summary.RunID)
	logger.Info("pipeline run started", "raw_data_dir", p.rawDataDir)

	rows, err := ExtractAll(ctx, p.rawDataDir)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	summary.Extracted = len(rows)

	records, rejections := p.transformer.Transform(rows)
	summary.Rejected = rejections.Count()
	logger.Info("transform complete",
		"input_rows", len(rows),
		"valid_records", len(records),
		"rejected", rejections.Count(),
		"rejected_schema", rejections.CountByKind(KindSchema),
		"rejected_parse", rejections.CountByKind(KindParse),
		"rejected_validation", rejections.CountByKind(KindValidation),
	)

	report, err := p.loader.Load(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	summary.Load = report

	status, err := p.loader.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("status after load: %w", err)
	}
	summary.TotalRows = status.RowCount
	summary.Duration = time.Since(summary.StartedAt)

	logger.Info("pipeline run complete",
		"inserted", report.Inserted,
		"updated", report.Updated,
		"failed", report.Failed,
		"total_rows", status.RowCount,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}
