package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/service"
)

// SweepWorker periodically forces sessions past their deadline to
// AUTO_SUBMITTED and drifts idle ones to INTERRUPTED. The server stays
// authoritative over time even when a client goes silent: a dead browser
// cannot keep an attempt open.
type SweepWorker struct {
	svc *service.SessionService
	cfg *config.Config
	log zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(svc *service.SessionService, cfg *config.Config, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		svc: svc,
		cfg: cfg,
		log: log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine; cancel the context
// to stop. One final pass runs on shutdown so a restart never strands
// an expired session for a whole interval.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.cfg.SweepInterval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.sweep(context.Background())
			w.log.Info().Msg("SweepWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	n, err := w.svc.SweepExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep pass failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("auto_submitted", n).Msg("Expired sessions finalized")
	}
}
