package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// DefaultBatchSize is the number of elements per raw storage write
const DefaultBatchSize = 500

// scanBufferSize bounds a single snapshot element (one JSON line)
const scanBufferSize = 4 << 20

// BatchKey tags every raw row with the identifiers needed for idempotent
// re-materialization and recovery
type BatchKey struct {
	RequestID   uuid.UUID
	SnapshotID  uuid.UUID
	AccountID   uuid.UUID
	Marketplace source.Marketplace
}

// RawSink is the raw storage boundary. SaveBatch must be duplicate-safe when
// retried with the same key and records.
type RawSink interface {
	SaveBatch(ctx context.Context, records []json.RawMessage, rawTable string, key BatchKey) error
}

// Result is the outcome of ingesting one snapshot
type Result struct {
	Rows    int64
	Batches int
	NoData  bool
}

// Pipeline streams snapshot files into batched RawSink writes under the
// commit barrier's protection. Batch writes run concurrently with the
// element stream; the barrier serializes file disposal behind the last
// durable write.
type Pipeline struct {
	barrier    *CommitBarrier
	sink       RawSink
	batchSize  int
	maxPersist int
	logger     *zap.Logger
}

// NewPipeline creates an ingestion pipeline. batchSize <= 0 selects
// DefaultBatchSize; maxPersist bounds concurrent batch writes per snapshot.
func NewPipeline(barrier *CommitBarrier, sink RawSink, batchSize, maxPersist int, logger *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxPersist <= 0 {
		maxPersist = 4
	}
	return &Pipeline{
		barrier:    barrier,
		sink:       sink,
		batchSize:  batchSize,
		maxPersist: maxPersist,
		logger:     logger,
	}
}

// Ingest persists one snapshot into the raw table. An empty snapshot
// short-circuits to a NO_DATA result without touching the barrier. A
// snapshot whose file yields zero elements is discarded silently (file
// deleted, no rows). Any fetch or persistence error discards the barrier
// registration so no temp file leaks.
func (p *Pipeline) Ingest(ctx context.Context, snap source.Snapshot, rawTable string, key BatchKey) (Result, error) {
	if snap.IsEmpty() {
		return Result{NoData: true}, nil
	}

	id := p.barrier.Register(snap.FilePath)
	key.SnapshotID = id

	rows, batches, err := p.stream(ctx, snap, rawTable, key, id)
	if err != nil {
		if discardErr := p.barrier.Discard(id); discardErr != nil && discardErr != ErrSnapshotNotRegistered {
			p.logger.Warn("failed to discard snapshot after ingest error",
				zap.String("snapshot_id", id.String()),
				zap.Error(discardErr),
			)
		}
		return Result{}, err
	}

	if rows == 0 {
		// nothing persisted: the barrier already deleted the file on
		// SnapshotCompleted, report NO_DATA without audit noise
		return Result{NoData: true}, nil
	}

	p.logger.Debug("snapshot ingested",
		zap.String("snapshot_id", id.String()),
		zap.String("raw_table", rawTable),
		zap.Int64("rows", rows),
		zap.Int("batches", batches),
	)
	return Result{Rows: rows, Batches: batches}, nil
}

// stream reads the backing file element-by-element and dispatches full
// batches to concurrent sink writes. The end-of-stream signal may arrive at
// the barrier while writes are still in flight; the barrier invariant keeps
// the file alive until the last one commits.
func (p *Pipeline) stream(ctx context.Context, snap source.Snapshot, rawTable string, key BatchKey, id uuid.UUID) (int64, int, error) {
	file, err := os.Open(snap.FilePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxPersist)

	var rows atomic.Int64
	batches := 0

	persist := func(batch []json.RawMessage) error {
		// announce before persistence begins so the barrier never sees the
		// stream end with this write unaccounted for
		if err := p.barrier.RegisterBatch(id); err != nil {
			return fmt.Errorf("failed to register batch: %w", err)
		}
		batches++
		g.Go(func() error {
			if err := p.sink.SaveBatch(gctx, batch, rawTable, key); err != nil {
				return fmt.Errorf("failed to persist batch to %s: %w", rawTable, err)
			}
			rows.Add(int64(len(batch)))
			return p.barrier.BatchCompleted(id)
		})
		return nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	batch := make([]json.RawMessage, 0, p.batchSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		element := make(json.RawMessage, len(line))
		copy(element, line)
		batch = append(batch, element)

		if len(batch) == p.batchSize {
			if err := persist(batch); err != nil {
				_ = g.Wait()
				return 0, 0, err
			}
			batch = make([]json.RawMessage, 0, p.batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = g.Wait()
		return 0, 0, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	if len(batch) > 0 {
		if err := persist(batch); err != nil {
			_ = g.Wait()
			return 0, 0, err
		}
	}

	// end of stream: may race with in-flight batch completions
	if err := p.barrier.SnapshotCompleted(id); err != nil {
		_ = g.Wait()
		return 0, 0, err
	}

	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return rows.Load(), batches, nil
}
