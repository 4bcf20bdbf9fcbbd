// Package pipeline is the extraction orchestrator. It sequences the
// per-record fetch/resolve/merge steps and drives the two discovery modes:
// a checkpointed bulk scan over an id range and an incremental scan over
// fixed time windows. All resumability state lives in the injected stores;
// the pipeline itself is stateless and restartable.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mesflow/mesflow/internal/extract"
	"github.com/mesflow/mesflow/internal/sink"
	"github.com/mesflow/mesflow/internal/state"
	"github.com/mesflow/mesflow/internal/table"
)

const defaultBatchSize = 100

// Fixed ledger reasons for the expected per-record failure modes. Operators
// grep for these.
const (
	reasonEmptyDetail = "production record data returned empty"
	reasonNoLot       = "no lot number found"
	reasonBothEmpty   = "Both API calls returned empty"
)

// Source supplies the per-record extraction operations.
type Source interface {
	Detail(ctx context.Context, recordID int64) (string, table.Table, error)
	ResolveMetadata(ctx context.Context, lotNumber string) (extract.Metadata, bool, error)
	Structure(ctx context.Context, recordID int64) (extract.Structure, error)
	ModifiedRecordIDs(ctx context.Context, startEpoch, endEpoch int64) ([]int64, error)
}

// Ledger records terminal per-record outcomes.
type Ledger interface {
	AlreadySucceeded(recordID int64) (bool, error)
	LogStatus(e state.StatusEntry) error
}

// Checkpointer persists the bulk-scan frontier.
type Checkpointer interface {
	Load() (state.Checkpoint, bool)
	Save(lastProcessedID int64) error
}

// Windows hands out and records incremental scan windows.
type Windows interface {
	Next() (state.Window, bool, error)
	MarkProcessed(w state.Window) error
}

// Pipeline processes production records one at a time. Errors local to one
// record never abort a run; only state-store write failures do.
type Pipeline struct {
	source     Source
	ledger     Ledger
	checkpoint Checkpointer
	windows    Windows
	out        sink.Sink
	batchSize  int64
	runID      string
	logger     *slog.Logger
}

// New creates a Pipeline. batchSize bounds how often the checkpoint
// advances; it defaults to 100 when <= 0.
func New(source Source, ledger Ledger, checkpoint Checkpointer, windows Windows, out sink.Sink, batchSize int64) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		source:     source,
		ledger:     ledger,
		checkpoint: checkpoint,
		windows:    windows,
		out:        out,
		batchSize:  batchSize,
		runID:      uuid.New().String(),
		logger:     slog.Default(),
	}
}

// RunID identifies this pipeline invocation in ledger rows and logs.
func (p *Pipeline) RunID() string { return p.runID }

// RunBulk scans record ids from max(checkpoint+1, start) through end in
// batches, skipping records with a Success ledger entry and advancing the
// checkpoint only at batch boundaries.
func (p *Pipeline) RunBulk(ctx context.Context, start, end int64) error {
	if cp, ok := p.checkpoint.Load(); ok && cp.LastProcessedID+1 > start {
		start = cp.LastProcessedID + 1
	}
	if start < 0 {
		start = 0
	}

	p.logger.Info("bulk scan starting", "run_id", p.runID, "start", start, "end", end, "batch_size", p.batchSize)

	for batchStart := start; batchStart <= end; {
		batchEnd := min(batchStart+p.batchSize-1, end)

		for id := batchStart; id <= batchEnd; id++ {
			if err := p.processRecord(ctx, id); err != nil {
				return err
			}
		}

		if err := p.checkpoint.Save(batchEnd); err != nil {
			return err
		}
		batchStart = batchEnd + 1
	}

	p.logger.Info("bulk scan complete", "run_id", p.runID)
	return nil
}

// RunIncremental processes at most one eligible scan window: discover the
// record ids modified inside it, run each through the per-record pipeline,
// and mark the window processed only once every id has a terminal outcome.
// The returned bool reports whether a window was processed; false means the
// next window has not cleared the lag gate yet.
func (p *Pipeline) RunIncremental(ctx context.Context) (bool, error) {
	w, ok, err := p.windows.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		p.logger.Info("next scan window is not ready yet", "run_id", p.runID)
		return false, nil
	}

	p.logger.Info("incremental scan starting",
		"run_id", p.runID, "window_start", w.Start, "window_end", w.End)

	ids, err := p.source.ModifiedRecordIDs(ctx, w.Start.Unix(), w.End.Unix())
	if err != nil {
		// Discovery failed; the window stays unrecorded and is retried on
		// the next invocation.
		return false, err
	}

	if len(ids) == 0 {
		p.logger.Info("no modified records in window", "run_id", p.runID)
		return true, p.windows.MarkProcessed(w)
	}

	p.logger.Info("found modified records", "run_id", p.runID, "count", len(ids))

	for i := int64(0); i < int64(len(ids)); i += p.batchSize {
		j := min(i+p.batchSize, int64(len(ids)))
		for _, id := range ids[i:j] {
			if err := p.processRecord(ctx, id); err != nil {
				return false, err
			}
		}
		if err := p.checkpoint.Save(ids[j-1]); err != nil {
			return false, err
		}
	}

	return true, p.windows.MarkProcessed(w)
}

// processRecord takes one production record to a terminal outcome. The
// returned error is fatal to the run (cancellation or a state-store
// failure); everything else ends up in the ledger.
func (p *Pipeline) processRecord(ctx context.Context, recordID int64) error {
	done, err := p.ledger.AlreadySucceeded(recordID)
	if err != nil {
		return err
	}
	if done {
		p.logger.Debug("record already processed", "record_id", recordID)
		return nil
	}

	p.logger.Info("processing record", "run_id", p.runID, "record_id", recordID)

	lot, detail, err := p.source.Detail(ctx, recordID)
	if err != nil {
		return p.failRecord(ctx, recordID, "", err)
	}
	if detail.Empty() {
		return p.logFail(recordID, "", reasonEmptyDetail)
	}
	if lot == "" {
		return p.logFail(recordID, "", reasonNoLot)
	}

	meta, resolved, err := p.source.ResolveMetadata(ctx, lot)
	if err != nil {
		return p.failRecord(ctx, recordID, lot, err)
	}
	if !resolved {
		return p.logFail(recordID, lot, reasonBothEmpty)
	}

	structure, err := p.source.Structure(ctx, recordID)
	if err != nil {
		return p.failRecord(ctx, recordID, lot, err)
	}

	merged := merge(detail, meta, structure)
	if err := p.out.Write(ctx, lot, merged); err != nil {
		return p.failRecord(ctx, recordID, lot, err)
	}

	if err := p.ledger.LogStatus(state.StatusEntry{
		RecordID:  recordID,
		LotNumber: lot,
		Outcome:   state.OutcomeSuccess,
		RunID:     p.runID,
	}); err != nil {
		return err
	}

	p.logger.Info("record processed", "run_id", p.runID, "record_id", recordID, "lot", lot, "rows", merged.Len())
	return nil
}

// failRecord records a per-record failure unless the run itself is being
// cancelled, in which case the cancellation wins.
func (p *Pipeline) failRecord(ctx context.Context, recordID int64, lot string, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return p.logFail(recordID, lot, cause.Error())
}

func (p *Pipeline) logFail(recordID int64, lot, reason string) error {
	p.logger.Warn("record failed", "run_id", p.runID, "record_id", recordID, "lot", lot, "reason", reason)
	return p.ledger.LogStatus(state.StatusEntry{
		RecordID:  recordID,
		LotNumber: lot,
		Outcome:   state.OutcomeFail,
		Reason:    reason,
		RunID:     p.runID,
	})
}
