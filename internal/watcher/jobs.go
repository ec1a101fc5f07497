// Package watcher crystallizes expired bets. A periodic sweep finds bets
// whose running deadline has passed and enqueues one claim job per bet.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/models"
	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

const sweepBatch = 200

type ClaimBetArgs struct {
	BetID int64 `json:"bet_id"`
}

func (ClaimBetArgs) Kind() string { return "claim_bet" }

// InsertOpts dedupes claims for the same bet enqueued by overlapping sweeps.
func (ClaimBetArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: 10 * time.Minute,
		},
	}
}

type SweepExpiredArgs struct{}

func (SweepExpiredArgs) Kind() string { return "sweep_expired_bets" }

type Claimer interface {
	Claim(ctx context.Context, betID int64, actor string) (*models.Bet, error)
}

type ClaimWorker struct {
	river.WorkerDefaults[ClaimBetArgs]
	claimer Claimer
	actor   string
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewClaimWorker(claimer Claimer, actor string, m *metrics.Metrics, log *zap.Logger) *ClaimWorker {
	return &ClaimWorker{claimer: claimer, actor: actor, metrics: m, log: log}
}

// Work claims the bet. Losing to another claimer is success; a vanished
// bet cancels the job; anything else is retried by River.
func (w *ClaimWorker) Work(ctx context.Context, job *river.Job[ClaimBetArgs]) error {
	betID := job.Args.BetID
	bet, err := w.claimer.Claim(ctx, betID, w.actor)
	switch {
	case err == nil:
		w.metrics.Claim("claimed")
		w.log.Info("bet claimed", zap.Int64("bet_id", betID), zap.String("status", bet.Status.String()))
		return nil
	case betstate.IsBenign(err):
		w.metrics.Claim("benign")
		w.log.Debug("claim skipped", zap.Int64("bet_id", betID), zap.Error(err))
		return nil
	case betstate.KindOf(err) == betstate.KindNotFound:
		w.metrics.Claim("cancelled")
		return river.JobCancel(err)
	}
	w.metrics.Claim("error")
	return fmt.Errorf("claim bet %d: %w", betID, err)
}

type BetScanner interface {
	ListClaimable(ctx context.Context, now time.Time, limit int) ([]int64, error)
	CountOpen(ctx context.Context) (map[string]int64, error)
}

// Enqueuer schedules a claim for one bet.
type Enqueuer interface {
	EnqueueClaim(ctx context.Context, betID int64) error
}

// EnqueueFunc adapts a function to Enqueuer.
type EnqueueFunc func(ctx context.Context, betID int64) error

func (f EnqueueFunc) EnqueueClaim(ctx context.Context, betID int64) error { return f(ctx, betID) }

type SweepWorker struct {
	river.WorkerDefaults[SweepExpiredArgs]
	bets    BetScanner
	enqueue Enqueuer
	metrics *metrics.Metrics
	now     func() time.Time
	log     *zap.Logger
}

func NewSweepWorker(bets BetScanner, enqueue Enqueuer, m *metrics.Metrics, log *zap.Logger) *SweepWorker {
	return &SweepWorker{
		bets:    bets,
		enqueue: enqueue,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepExpiredArgs]) error {
	ids, err := w.bets.ListClaimable(ctx, w.now(), sweepBatch)
	if err != nil {
		return fmt.Errorf("list claimable bets: %w", err)
	}
	for _, id := range ids {
		if err := w.enqueue.EnqueueClaim(ctx, id); err != nil {
			return fmt.Errorf("enqueue claim for bet %d: %w", id, err)
		}
	}
	if len(ids) > 0 {
		w.log.Info("expired bets queued", zap.Int("count", len(ids)))
	}

	counts, err := w.bets.CountOpen(ctx)
	if err != nil {
		w.log.Warn("failed to count open bets", zap.Error(err))
		return nil
	}
	w.metrics.SetOpenBets(counts)
	return nil
}

// PeriodicSweep schedules the sweep every interval, starting immediately.
func PeriodicSweep(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepExpiredArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

func NewWorkers(claim *ClaimWorker, sweep *SweepWorker) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, claim)
	river.AddWorker(workers, sweep)
	return workers
}
