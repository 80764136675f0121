package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// recordingSink captures SaveBatch calls
type recordingSink struct {
	mu      sync.Mutex
	batches [][]json.RawMessage
	failOn  int // 1-based batch index to fail on, 0 = never
}

func (s *recordingSink) SaveBatch(ctx context.Context, records []json.RawMessage, rawTable string, key BatchKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return fmt.Errorf("simulated persistence failure")
	}
	return nil
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func writeSnapshotFile(t *testing.T, elements int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < elements; i++ {
		_, err = fmt.Fprintf(f, "{\"n\":%d}\n", i)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func testKey() BatchKey {
	return BatchKey{
		RequestID:   uuid.New(),
		AccountID:   uuid.New(),
		Marketplace: source.MarketplaceWildberries,
	}
}

func snapFor(t *testing.T, path string) source.Snapshot {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return source.Snapshot{ElementType: "order", FilePath: path, SizeBytes: info.Size()}
}

func TestPipeline_BatchesOf500(t *testing.T) {
	path := writeSnapshotFile(t, 1200)
	sink := &recordingSink{}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 4, zap.NewNop())

	result, err := p.Ingest(context.Background(), snapFor(t, path), "raw_orders", testKey())
	require.NoError(t, err)

	assert.Equal(t, int64(1200), result.Rows)
	assert.Equal(t, 3, result.Batches)
	assert.False(t, result.NoData)

	sizes := sink.batchSizes()
	require.Len(t, sizes, 3)
	total := 0
	for _, n := range sizes {
		assert.Contains(t, []int{500, 200}, n)
		total += n
	}
	assert.Equal(t, 1200, total)

	// file released exactly once, after the last durable write
	assert.Equal(t, 1, fin.count())
}

func TestPipeline_EmptySnapshotNeverTouchesSink(t *testing.T) {
	sink := &recordingSink{}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 4, zap.NewNop())

	result, err := p.Ingest(context.Background(), source.Snapshot{FilePath: "/nowhere", SizeBytes: 0}, "raw_orders", testKey())
	require.NoError(t, err)

	assert.True(t, result.NoData)
	assert.Empty(t, sink.batchSizes())
	assert.Equal(t, 0, fin.count())
}

func TestPipeline_FileWithZeroElementsDiscardedOnce(t *testing.T) {
	path := writeSnapshotFile(t, 0)
	// the file is non-empty on disk only when it has lines; force a non-zero
	// size with blank lines that parse to zero elements
	require.NoError(t, os.WriteFile(path, []byte("\n\n\n"), 0o644))

	sink := &recordingSink{}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 4, zap.NewNop())

	result, err := p.Ingest(context.Background(), snapFor(t, path), "raw_orders", testKey())
	require.NoError(t, err)

	assert.True(t, result.NoData)
	assert.Empty(t, sink.batchSizes())
	assert.Equal(t, 1, fin.count())
}

func TestPipeline_PersistenceFailureDiscardsBarrier(t *testing.T) {
	path := writeSnapshotFile(t, 700)
	sink := &recordingSink{failOn: 1}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 1, zap.NewNop())

	_, err := p.Ingest(context.Background(), snapFor(t, path), "raw_orders", testKey())
	require.Error(t, err)

	// registration released so no temp file leaks
	assert.GreaterOrEqual(t, fin.count(), 1)
}

func TestStream_BatchRegistrationFailureSurfaces(t *testing.T) {
	path := writeSnapshotFile(t, 3)
	sink := &recordingSink{}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 4, zap.NewNop())

	// the snapshot was never registered, so the batch announcement must fail
	// loudly instead of dropping rows
	rows, batches, err := p.stream(context.Background(), snapFor(t, path), "raw_orders", testKey(), uuid.New())

	require.ErrorIs(t, err, ErrSnapshotNotRegistered)
	assert.Zero(t, rows)
	assert.Zero(t, batches)
	assert.Empty(t, sink.batchSizes())
}

func TestPipeline_SmallSnapshotSingleBatch(t *testing.T) {
	path := writeSnapshotFile(t, 42)
	sink := &recordingSink{}
	fin := &recordingFinalizer{}
	p := NewPipeline(NewCommitBarrier(fin), sink, 500, 4, zap.NewNop())

	result, err := p.Ingest(context.Background(), snapFor(t, path), "raw_stocks", testKey())
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.Rows)
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, []int{42}, sink.batchSizes())
	assert.Equal(t, 1, fin.count())
}
