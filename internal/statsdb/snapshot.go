package statsdb

import (
	"context"
	"fmt"

	"github.com/flowpbx/neteq/internal/statsdb/models"
)

// SnapshotRepository records and retrieves session stats snapshots.
type SnapshotRepository interface {
	Insert(ctx context.Context, snap *models.SessionSnapshot) error
	ListBySession(ctx context.Context, label string, limit int) ([]models.SessionSnapshot, error)
	PruneOlderThanRows(ctx context.Context, keepPerSession int) (int64, error)
}

// snapshotRepo implements SnapshotRepository.
type snapshotRepo struct {
	db *DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *DB) SnapshotRepository {
	return &snapshotRepo{db: db}
}

// Insert records one snapshot row.
func (r *snapshotRepo) Insert(ctx context.Context, snap *models.SessionSnapshot) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (session_label, session_id, taken_at, packets_buffered,
		 discarded_duplicate, discarded_overflow, cumulative_lost, fraction_lost,
		 jitter_samples, optimal_level_q8, last_decision)
		 VALUES (?, ?, datetime('now'), ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionLabel, snap.SessionID, snap.PacketsBuffered,
		snap.DiscardedDuplicate, snap.DiscardedOverflow, snap.CumulativeLost,
		snap.FractionLost, snap.JitterSamples, snap.OptimalLevelQ8, snap.LastDecision,
	)
	if err != nil {
		return fmt.Errorf("inserting session snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	snap.ID = id
	return nil
}

// ListBySession returns the most recent snapshots for a session, newest first.
func (r *snapshotRepo) ListBySession(ctx context.Context, label string, limit int) ([]models.SessionSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_label, session_id, taken_at, packets_buffered, discarded_duplicate,
		 discarded_overflow, cumulative_lost, fraction_lost, jitter_samples,
		 optimal_level_q8, last_decision
		 FROM session_snapshots WHERE session_label = ?
		 ORDER BY taken_at DESC LIMIT ?`, label, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.SessionSnapshot
	for rows.Next() {
		var s models.SessionSnapshot
		if err := rows.Scan(&s.ID, &s.SessionLabel, &s.SessionID, &s.TakenAt, &s.PacketsBuffered,
			&s.DiscardedDuplicate, &s.DiscardedOverflow, &s.CumulativeLost,
			&s.FractionLost, &s.JitterSamples, &s.OptimalLevelQ8, &s.LastDecision); err != nil {
			return nil, fmt.Errorf("scanning session snapshot row: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// PruneOlderThanRows deletes all but the most recent keepPerSession rows for
// each session label, bounding table growth for long-lived processes.
func (r *snapshotRepo) PruneOlderThanRows(ctx context.Context, keepPerSession int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session_snapshots WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY session_label ORDER BY taken_at DESC
				) AS rn FROM session_snapshots
			) WHERE rn <= ?
		)`, keepPerSession,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning session snapshots: %w", err)
	}
	return result.RowsAffected()
}
