package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/storage"
)

// maxPages bounds a single fetch so a broken cursor cannot loop forever
const maxPages = 1000

// gatewaySource adapts one connector gateway endpoint to the Source port.
// Every page becomes one snapshot file of JSON lines; the continuation token
// carried on each snapshot records where the page ended.
type gatewaySource struct {
	id          string
	elementType string
	rawTable    string
	path        string
	client      *Client
	store       *storage.SnapshotFileStore
}

// ID returns the registry identifier of the source
func (s *gatewaySource) ID() string { return s.id }

// ElementType returns the raw record kind the source produces
func (s *gatewaySource) ElementType() string { return s.elementType }

// RawTable returns the raw landing table for the source's records
func (s *gatewaySource) RawTable() string { return s.rawTable }

// FetchSnapshots pages through the gateway until the cursor is exhausted.
// An empty first page yields a single empty snapshot so the caller can
// distinguish no-data from failure.
func (s *gatewaySource) FetchSnapshots(ctx context.Context, window source.FetchWindow) ([]source.Snapshot, error) {
	var snapshots []source.Snapshot
	cursor := ""

	for pageNum := 0; pageNum < maxPages; pageNum++ {
		p, endpoint, err := s.client.FetchPage(ctx, s.path, window.AccountID, window.DateFrom, window.DateTo, cursor)
		if err != nil {
			cleanupSnapshots(snapshots)
			return nil, err
		}

		if len(p.Items) == 0 {
			if len(snapshots) == 0 {
				snapshots = append(snapshots, source.Snapshot{
					ElementType: s.elementType,
					SourceURI:   endpoint,
				})
			}
			return snapshots, nil
		}

		snap, err := s.writePage(p, endpoint)
		if err != nil {
			cleanupSnapshots(snapshots)
			return nil, err
		}
		snapshots = append(snapshots, snap)

		if p.NextCursor == "" {
			return snapshots, nil
		}
		cursor = p.NextCursor
	}
	cleanupSnapshots(snapshots)
	return nil, fmt.Errorf("%w: pagination exceeded %d pages", source.ErrSourceInvalidResponse, maxPages)
}

// writePage persists one page as a JSON-lines snapshot file
func (s *gatewaySource) writePage(p *page, endpoint string) (source.Snapshot, error) {
	file, err := s.store.Create(s.id)
	if err != nil {
		return source.Snapshot{}, err
	}

	for _, item := range p.Items {
		if _, err := file.Write(append(item, '\n')); err != nil {
			file.Close()
			os.Remove(file.Name())
			return source.Snapshot{}, fmt.Errorf("failed to write snapshot file: %w", err)
		}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return source.Snapshot{}, err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return source.Snapshot{}, err
	}

	var token *string
	if p.NextCursor != "" {
		cursor := p.NextCursor
		token = &cursor
	}
	return source.Snapshot{
		ElementType:       s.elementType,
		FilePath:          file.Name(),
		SizeBytes:         info.Size(),
		SourceURI:         endpoint,
		ContinuationToken: token,
	}, nil
}

// cleanupSnapshots removes files of pages fetched before a later page failed;
// the whole fetch is retried as one unit.
func cleanupSnapshots(snapshots []source.Snapshot) {
	for _, snap := range snapshots {
		if snap.FilePath != "" {
			os.Remove(snap.FilePath)
		}
	}
}
