package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
)

const (
	SnapshotBatchSize    = 50
	SnapshotBatchTimeout = 2 * time.Second
	SnapshotPollTimeout  = 1 * time.Second
)

// SnapshotWorker consumes the persist queue and bulk-inserts snapshots to
// PostgreSQL. Batching keeps a burst of periodic snapshots at exam start
// from turning into one INSERT per client.
type SnapshotWorker struct {
	snapshots *repository.SnapshotRepository
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger
}

// NewSnapshotWorker creates a new SnapshotWorker.
func NewSnapshotWorker(snapshots *repository.SnapshotRepository, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		snapshots: snapshots,
		rdb:       rdb,
		cfg:       cfg,
		log:       log.With().Str("component", "snapshot_worker").Logger(),
	}
}

type snapshotPayload struct {
	UUID      string          `json:"uuid"`
	SessionID int64           `json:"session_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// Start begins the worker loop. Call in a goroutine; cancel the context
// to stop. Remaining batched items are flushed on shutdown.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SnapshotWorker started")

	batch := make([]*model.Snapshot, 0, SnapshotBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= SnapshotBatchSize || time.Since(lastFlush) >= SnapshotBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			w.log.Info().Msg("SnapshotWorker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, SnapshotPollTimeout, config.WorkerKey.PersistSnapshotsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			s, err := decodeSnapshotPayload([]byte(item[1]))
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid snapshot payload, dropping")
				continue
			}

			batch = append(batch, s)
		}
	}
}

func decodeSnapshotPayload(raw []byte) (*model.Snapshot, error) {
	var p snapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(p.UUID)
	if err != nil {
		return nil, err
	}
	return &model.Snapshot{
		UUID:         id,
		SessionID:    p.SessionID,
		SnapshotType: model.SnapshotType(p.Type),
		Data:         p.Data,
		CreatedAt:    time.Unix(p.CreatedAt, 0).UTC(),
	}, nil
}

// flushSafe bulk-inserts the batch; on failure it falls back to single
// inserts and requeues only the rows that still fail.
func (w *SnapshotWorker) flushSafe(ctx context.Context, batch []*model.Snapshot) {
	if len(batch) == 0 {
		return
	}

	if err := w.snapshots.CaptureBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk snapshot insert failed, using fallback")

		for _, s := range batch {
			if err := w.snapshots.Capture(ctx, s); err != nil {
				w.log.Error().Err(err).
					Str("snapshot", s.UUID.String()).
					Msg("Single insert failed, requeueing")
				w.requeue(ctx, s)
			}
		}
		return
	}

	w.pruneSessions(ctx, batch)
}

func (w *SnapshotWorker) requeue(ctx context.Context, s *model.Snapshot) {
	raw, err := json.Marshal(snapshotPayload{
		UUID:      s.UUID.String(),
		SessionID: s.SessionID,
		Type:      string(s.SnapshotType),
		Data:      s.Data,
		CreatedAt: s.CreatedAt.Unix(),
	})
	if err != nil {
		return
	}
	w.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, raw)
}

// pruneSessions trims each touched session down to the retention count
// after a successful flush. Prune always keeps the newest rows.
func (w *SnapshotWorker) pruneSessions(ctx context.Context, batch []*model.Snapshot) {
	if w.cfg.SnapshotRetention <= 0 {
		return
	}

	seen := make(map[int64]struct{}, len(batch))
	for _, s := range batch {
		if _, ok := seen[s.SessionID]; ok {
			continue
		}
		seen[s.SessionID] = struct{}{}

		if _, err := w.snapshots.Prune(ctx, s.SessionID, w.cfg.SnapshotRetention); err != nil {
			w.log.Warn().Err(err).Int64("session_id", s.SessionID).Msg("Prune failed")
		}
	}
}
