// Package snapshot streams raw marketplace snapshot files into batched raw
// storage writes, guarded by an in-memory commit barrier that keeps the
// backing file alive until every outstanding batch write has durably
// committed. The file doubles as the recovery source if the process crashes
// mid-ingestion, so premature deletion would lose data.
package snapshot

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSnapshotNotRegistered indicates a barrier call for an unknown snapshot id
	ErrSnapshotNotRegistered = errors.New("snapshot: not registered with barrier")
	// ErrSnapshotAlreadyCompleted indicates a duplicate end-of-stream signal
	ErrSnapshotAlreadyCompleted = errors.New("snapshot: already completed")
)

// Finalizer disposes of a snapshot's backing file once the barrier releases
// it. The default implementation removes the file; an archiving finalizer may
// upload it first.
type Finalizer interface {
	Finalize(filePath string) error
}

// commitState tracks one registered snapshot. Counters are local to the
// worker that registered the snapshot and must not be shared across
// processes.
type commitState struct {
	filePath    string
	outstanding int
	completed   bool
	hasElements bool
}

// CommitBarrier guarantees that a snapshot's backing file is finalized
// (archived/deleted) if and only if the element stream is exhausted AND no
// batch write is still in flight, regardless of the order in which batch
// completions and the end-of-stream signal arrive.
type CommitBarrier struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*commitState
	finalizer Finalizer
}

// NewCommitBarrier creates a barrier that hands released files to finalizer
func NewCommitBarrier(finalizer Finalizer) *CommitBarrier {
	return &CommitBarrier{
		snapshots: make(map[uuid.UUID]*commitState),
		finalizer: finalizer,
	}
}

// Register registers a snapshot's backing file and returns its barrier id.
// Each snapshot is registered exactly once.
func (b *CommitBarrier) Register(filePath string) uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[id] = &commitState{filePath: filePath}
	return id
}

// RegisterBatch announces a batch write before persistence begins
func (b *CommitBarrier) RegisterBatch(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.snapshots[id]
	if !ok {
		return ErrSnapshotNotRegistered
	}
	state.outstanding++
	state.hasElements = true
	return nil
}

// BatchCompleted records that a batch write durably committed. When the
// stream is already exhausted and this was the last outstanding batch, the
// backing file is finalized.
func (b *CommitBarrier) BatchCompleted(id uuid.UUID) error {
	b.mu.Lock()
	state, ok := b.snapshots[id]
	if !ok {
		b.mu.Unlock()
		return ErrSnapshotNotRegistered
	}
	state.outstanding--
	done, filePath := b.maybeReleaseLocked(id, state)
	b.mu.Unlock()

	if done {
		return b.finalizer.Finalize(filePath)
	}
	return nil
}

// SnapshotCompleted records that the element stream is exhausted. When no
// batch write is outstanding the backing file is finalized immediately.
func (b *CommitBarrier) SnapshotCompleted(id uuid.UUID) error {
	b.mu.Lock()
	state, ok := b.snapshots[id]
	if !ok {
		b.mu.Unlock()
		return ErrSnapshotNotRegistered
	}
	if state.completed {
		b.mu.Unlock()
		return ErrSnapshotAlreadyCompleted
	}
	state.completed = true
	done, filePath := b.maybeReleaseLocked(id, state)
	b.mu.Unlock()

	if done {
		return b.finalizer.Finalize(filePath)
	}
	return nil
}

// HasElements reports whether any batch was announced for the snapshot
func (b *CommitBarrier) HasElements(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.snapshots[id]
	return ok && state.hasElements
}

// Discard drops the registration and finalizes the file without waiting for
// outstanding batches. Error paths call it to avoid leaking registrations
// and temp files.
func (b *CommitBarrier) Discard(id uuid.UUID) error {
	b.mu.Lock()
	state, ok := b.snapshots[id]
	if !ok {
		b.mu.Unlock()
		return ErrSnapshotNotRegistered
	}
	delete(b.snapshots, id)
	filePath := state.filePath
	b.mu.Unlock()

	return b.finalizer.Finalize(filePath)
}

// Registered reports whether the snapshot id is still tracked
func (b *CommitBarrier) Registered(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.snapshots[id]
	return ok
}

// maybeReleaseLocked removes the entry when the release invariant holds.
// Caller must hold b.mu.
func (b *CommitBarrier) maybeReleaseLocked(id uuid.UUID, state *commitState) (bool, string) {
	if state.completed && state.outstanding == 0 {
		delete(b.snapshots, id)
		return true, state.filePath
	}
	return false, ""
}

// RemoveFinalizer is the default Finalizer that deletes the backing file
type RemoveFinalizer struct {
	remove func(string) error
}

// NewRemoveFinalizer creates a finalizer backed by the given remove func
// (typically os.Remove)
func NewRemoveFinalizer(remove func(string) error) *RemoveFinalizer {
	return &RemoveFinalizer{remove: remove}
}

// Finalize deletes the file
func (f *RemoveFinalizer) Finalize(filePath string) error {
	return f.remove(filePath)
}
