// Package reclaim implements the deferred garbage-collection queue
// (§4.5): an append-only list of blobs awaiting physical deletion,
// partitioned by hour-of-day, scanned with a grace-period threshold so
// late-arriving references have time to land before a blob is freed.
package reclaim

import (
	"context"
	"time"

	"github.com/pathindex/pathindex/internal/store"
	"github.com/pathindex/pathindex/pkg/logging"
)

// Queue exposes the reclaim lifecycle over a store.
type Queue struct {
	store       store.IndexStore
	gracePeriod time.Duration
	logger      *logging.Logger
	clock       func() time.Time
}

// New builds a Queue with the given grace period. A grace period <= 0
// disables the delay: the threshold becomes "now", so every enqueued
// blob is immediately eligible.
func New(s store.IndexStore, gracePeriod time.Duration, logger *logging.Logger) *Queue {
	return &Queue{store: s, gracePeriod: gracePeriod, logger: logger.WithComponent("reclaim"), clock: time.Now}
}

// ListOrphanedFiles reads the current hour-of-day partition, filtered
// to entries older than the grace-period threshold, and returns up to
// limit of them (0 = unbounded) for the caller to pass to the physical
// store's delete.
func (q *Queue) ListOrphanedFiles(ctx context.Context, limit int) ([]store.ReclaimRow, error) {
	now := q.clock()
	threshold := now
	if q.gracePeriod > 0 {
		threshold = now.Add(-q.gracePeriod)
	}
	partition := store.HourOfDay(now)
	return q.store.ListReclaim(ctx, partition, threshold, limit)
}

// RemoveFromReclaim is called by the caller once a blob named by row
// has actually been deleted from the physical store.
func (q *Queue) RemoveFromReclaim(ctx context.Context, row store.ReclaimRow) error {
	return q.store.RemoveReclaim(ctx, row.Partition, row.Deletion, row.FileID)
}

// PhysicalDeleter is the narrow slice of the physical store contract
// (§6.3) reclamation needs: deleting the blob named by a storage
// token.
type PhysicalDeleter interface {
	Delete(ctx context.Context, storage string) (bool, error)
}

// Reconciler drives a best-effort periodic sweep of the reclaim queue.
// Before calling through to the physical store, it re-checks the
// reverse map for the candidate fileId and aborts the deletion if it
// is non-empty, guarding against Race B in §4.4: a reclaim record can
// be enqueued for a blob that a racing insert has, by the time the
// sweep runs, made referenced again.
type Reconciler struct {
	queue    *Queue
	store    store.IndexStore
	physical PhysicalDeleter
	logger   *logging.Logger
}

// NewReconciler builds a Reconciler over a Queue, the underlying
// store (for the reverse-map re-check), and a physical store adapter.
func NewReconciler(queue *Queue, s store.IndexStore, physical PhysicalDeleter, logger *logging.Logger) *Reconciler {
	return &Reconciler{queue: queue, store: s, physical: physical, logger: logger.WithComponent("reclaim.reconciler")}
}

// SweepResult summarizes one Sweep call.
type SweepResult struct {
	Scanned int
	Deleted int
	Aborted int // reverse map was non-empty at sweep time
	Failed  int
}

// Sweep lists up to limit orphan candidates and, for each, re-checks
// the reverse map before deleting and dequeuing it. A candidate whose
// reverse map has become non-empty since enqueue is left in the queue
// untouched and counted as Aborted, never as Failed.
func (r *Reconciler) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult

	candidates, err := r.queue.ListOrphanedFiles(ctx, limit)
	if err != nil {
		return result, err
	}
	result.Scanned = len(candidates)

	for _, candidate := range candidates {
		// Reverse-map removal in the delete protocol runs at QUORUM,
		// so this read observes any reference that completed before
		// the candidate was enqueued.
		paths, err := r.store.GetReversePaths(ctx, candidate.FileID)
		if err != nil {
			result.Failed++
			r.logger.Warn("reconciler reverse-map check failed", logging.Fields{"fileId": candidate.FileID, "error": err.Error()})
			continue
		}
		if len(paths) > 0 {
			result.Aborted++
			r.logger.Info("reclaim candidate re-referenced, leaving queued", logging.Fields{"fileId": candidate.FileID})
			continue
		}

		ok, err := r.physical.Delete(ctx, candidate.Storage)
		if err != nil {
			result.Failed++
			r.logger.Warn("physical delete failed", logging.Fields{"fileId": candidate.FileID, "error": err.Error()})
			continue
		}
		if !ok {
			// Already gone (Race C tolerates double physical delete);
			// still safe to dequeue.
			r.logger.Info("physical blob already absent", logging.Fields{"fileId": candidate.FileID})
		}

		if err := r.queue.RemoveFromReclaim(ctx, candidate); err != nil {
			result.Failed++
			r.logger.Warn("reclaim dequeue failed", logging.Fields{"fileId": candidate.FileID, "error": err.Error()})
			continue
		}
		result.Deleted++
	}

	return result, nil
}

// ChecksumSweepResult summarizes one SweepChecksumOrphans call.
type ChecksumSweepResult struct {
	Scanned  int
	Enqueued int
}

// SweepChecksumOrphans implements the §4.4 Race A mitigation: a crash
// between saving a checksum row and adding its first reverse path
// leaves the checksum row permanently orphaned, since nothing else
// ever revisits it. There is no per-row "reverse map empty" flag to
// query, so this scans a capped, unordered batch of checksum rows and
// checks each one's reverse map directly. A row found orphaned is
// enqueued for reclaim and its checksum row removed; this is
// best-effort and purely additive, never required for correctness.
func (r *Reconciler) SweepChecksumOrphans(ctx context.Context, limit int) (ChecksumSweepResult, error) {
	var result ChecksumSweepResult

	rows, err := r.store.ListChecksums(ctx, limit)
	if err != nil {
		return result, err
	}
	result.Scanned = len(rows)

	now := r.queue.clock()
	for _, row := range rows {
		paths, err := r.store.GetReversePaths(ctx, row.FileID)
		if err != nil {
			r.logger.Warn("checksum orphan check failed", logging.Fields{"fileId": row.FileID, "error": err.Error()})
			continue
		}
		if len(paths) > 0 {
			continue
		}

		if err := r.store.EnqueueReclaim(ctx, store.ReclaimRow{
			Partition: store.HourOfDay(now),
			Deletion:  now,
			FileID:    row.FileID,
			Storage:   row.Storage,
			Checksum:  row.Checksum,
		}); err != nil {
			r.logger.Warn("checksum orphan reclaim enqueue failed", logging.Fields{"fileId": row.FileID, "error": err.Error()})
			continue
		}
		if err := r.store.DeleteChecksum(ctx, row.Checksum); err != nil {
			r.logger.Warn("checksum orphan delete failed", logging.Fields{"checksum": row.Checksum, "error": err.Error()})
			continue
		}
		result.Enqueued++
	}

	return result, nil
}
