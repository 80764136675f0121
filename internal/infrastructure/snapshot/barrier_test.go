package snapshot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFinalizer counts finalizations per file path
type recordingFinalizer struct {
	mu    sync.Mutex
	calls []string
}

func (f *recordingFinalizer) Finalize(filePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filePath)
	return nil
}

func (f *recordingFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestCommitBarrier_FileKeptWhileBatchesOutstanding(t *testing.T) {
	fin := &recordingFinalizer{}
	b := NewCommitBarrier(fin)

	id := b.Register("/tmp/snap-1.jsonl")
	require.NoError(t, b.RegisterBatch(id))
	require.NoError(t, b.RegisterBatch(id))
	require.NoError(t, b.RegisterBatch(id))

	// end of stream arrives before the writes commit
	require.NoError(t, b.SnapshotCompleted(id))
	assert.Equal(t, 0, fin.count())

	require.NoError(t, b.BatchCompleted(id))
	require.NoError(t, b.BatchCompleted(id))
	assert.Equal(t, 0, fin.count())

	// last durable write releases the file, exactly once
	require.NoError(t, b.BatchCompleted(id))
	assert.Equal(t, 1, fin.count())
	assert.False(t, b.Registered(id))
}

func TestCommitBarrier_CompletionAfterAllBatches(t *testing.T) {
	fin := &recordingFinalizer{}
	b := NewCommitBarrier(fin)

	id := b.Register("/tmp/snap-2.jsonl")
	require.NoError(t, b.RegisterBatch(id))
	require.NoError(t, b.BatchCompleted(id))
	assert.Equal(t, 0, fin.count())

	require.NoError(t, b.SnapshotCompleted(id))
	assert.Equal(t, 1, fin.count())
}

func TestCommitBarrier_EmptySnapshotDeletedOnCompletion(t *testing.T) {
	fin := &recordingFinalizer{}
	b := NewCommitBarrier(fin)

	id := b.Register("/tmp/snap-empty.jsonl")
	require.NoError(t, b.SnapshotCompleted(id))
	assert.Equal(t, 1, fin.count())
	assert.False(t, b.HasElements(id))
}

func TestCommitBarrier_DiscardReleasesRegistration(t *testing.T) {
	fin := &recordingFinalizer{}
	b := NewCommitBarrier(fin)

	id := b.Register("/tmp/snap-3.jsonl")
	require.NoError(t, b.RegisterBatch(id))

	require.NoError(t, b.Discard(id))
	assert.Equal(t, 1, fin.count())
	assert.False(t, b.Registered(id))

	// signals after discard are rejected, never double-finalized
	assert.ErrorIs(t, b.BatchCompleted(id), ErrSnapshotNotRegistered)
	assert.ErrorIs(t, b.SnapshotCompleted(id), ErrSnapshotNotRegistered)
	assert.Equal(t, 1, fin.count())
}

func TestCommitBarrier_DuplicateCompletionRejected(t *testing.T) {
	fin := &recordingFinalizer{}
	b := NewCommitBarrier(fin)

	id := b.Register("/tmp/snap-4.jsonl")
	require.NoError(t, b.RegisterBatch(id))
	require.NoError(t, b.SnapshotCompleted(id))
	assert.ErrorIs(t, b.SnapshotCompleted(id), ErrSnapshotAlreadyCompleted)
}

func TestCommitBarrier_UnknownIDRejected(t *testing.T) {
	b := NewCommitBarrier(&recordingFinalizer{})
	var unknown = b.Register("/tmp/known.jsonl")
	require.NoError(t, b.SnapshotCompleted(unknown))

	assert.ErrorIs(t, b.RegisterBatch(unknown), ErrSnapshotNotRegistered)
}
