package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examina/examina-backend/internal/model"
)

// SnapshotRepository stores immutable point-in-time session captures.
// Rows are created, never updated; pruning removes the oldest beyond the
// retention count, never the most recent.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Capture inserts one snapshot row.
func (r *SnapshotRepository) Capture(ctx context.Context, s *model.Snapshot) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO session_snapshots (uuid, session_id, snapshot_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.UUID, s.SessionID, s.SnapshotType, []byte(s.Data), s.CreatedAt,
	).Scan(&s.ID)
}

// CaptureBatch bulk-inserts queued snapshots with COPY. Used by the
// background persist worker.
func (r *SnapshotRepository) CaptureBatch(ctx context.Context, snapshots []*model.Snapshot) error {
	rows := make([][]interface{}, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []interface{}{
			s.UUID, s.SessionID, string(s.SnapshotType), []byte(s.Data), s.CreatedAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"session_snapshots"},
		[]string{"uuid", "session_id", "snapshot_type", "data", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func scanSnapshot(row pgx.Row) (*model.Snapshot, error) {
	s := &model.Snapshot{}
	var data []byte
	err := row.Scan(&s.ID, &s.UUID, &s.SessionID, &s.SnapshotType, &data, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Data = json.RawMessage(data)
	return s, nil
}

// Latest returns the most recent snapshot of any type, or nil.
func (r *SnapshotRepository) Latest(ctx context.Context, sessionID int64) (*model.Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT id, uuid, session_id, snapshot_type, data, created_at
		 FROM session_snapshots
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// LatestOfType returns the most recent snapshot of one type, or nil.
func (r *SnapshotRepository) LatestOfType(ctx context.Context, sessionID int64, snapType model.SnapshotType) (*model.Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT id, uuid, session_id, snapshot_type, data, created_at
		 FROM session_snapshots
		 WHERE session_id = $1 AND snapshot_type = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, sessionID, snapType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Prune deletes the oldest snapshots beyond the retention count. The most
// recent rows are always kept. retain <= 0 disables pruning.
func (r *SnapshotRepository) Prune(ctx context.Context, sessionID int64, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM session_snapshots
		 WHERE id IN (
			SELECT id FROM session_snapshots
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		 )`, sessionID, retain)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
