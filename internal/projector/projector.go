// Package projector mirrors the lifecycle event log into bet_snapshots for
// read-heavy clients. It never reads ledger tables other than bet_events.
package projector

import (
	"context"
	"errors"
	"time"

	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrUnknownBet is returned for an event whose BetCreated has not been
// mirrored yet. Replay delivers it again in order.
var ErrUnknownBet = errors.New("bet not mirrored yet")

const (
	replayBatch = 500
	// replayOverlap re-reads recent seqs: a lower seq can commit after a
	// higher one, and re-applying is a no-op.
	replayOverlap = 100
)

type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	InsertEventTx(ctx context.Context, tx pgx.Tx, e *models.BetEvent) (bool, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, betID int64) (*models.BetSnapshot, error)
	SaveTx(ctx context.Context, tx pgx.Tx, s *models.BetSnapshot) error
	LastSeq(ctx context.Context) (int64, error)
	SetIdentity(ctx context.Context, address string, name, avatar *string) error
}

type EventSource interface {
	ListAfter(ctx context.Context, after int64, limit int) ([]models.BetEvent, error)
}

type Identities interface {
	Resolve(ctx context.Context, addresses ...string) map[string]*models.Profile
}

type Projector struct {
	store      Store
	source     EventSource
	identities Identities
	publisher  events.Publisher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func New(store Store, source EventSource, identities Identities, publisher events.Publisher, m *metrics.Metrics, log *zap.Logger) *Projector {
	return &Projector{
		store:      store,
		source:     source,
		identities: identities,
		publisher:  publisher,
		metrics:    m,
		log:        log,
	}
}

// Apply mirrors one event. Applying the same (tx_ref, log_index) twice
// returns false the second time and changes nothing.
func (p *Projector) Apply(ctx context.Context, e models.BetEvent) (bool, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied, err := p.store.InsertEventTx(ctx, tx, &e)
	if err != nil {
		return false, err
	}
	if !applied {
		p.metrics.Projected(false, e.Seq)
		return false, nil
	}

	snap, err := p.store.GetForUpdate(ctx, tx, e.BetID)
	if err != nil {
		return false, err
	}
	snap, err = applyEvent(snap, e)
	if err != nil {
		return false, err
	}
	if err := p.store.SaveTx(ctx, tx, snap); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	p.metrics.Projected(true, e.Seq)
	p.log.Debug("event mirrored",
		zap.Int64("seq", e.Seq),
		zap.Int64("bet_id", e.BetID),
		zap.String("name", e.Name),
	)
	p.backfillIdentity(ctx, snap)
	p.announce(ctx, snap)
	return true, nil
}

// Replay applies every logged event after the last mirrored seq.
func (p *Projector) Replay(ctx context.Context) (int, error) {
	last, err := p.store.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	cursor := last - replayOverlap
	if cursor < 0 {
		cursor = 0
	}

	applied := 0
	for {
		batch, err := p.source.ListAfter(ctx, cursor, replayBatch)
		if err != nil {
			return applied, err
		}
		for _, e := range batch {
			ok, err := p.Apply(ctx, e)
			if err != nil {
				return applied, err
			}
			if ok {
				applied++
			}
			cursor = e.Seq
		}
		if len(batch) < replayBatch {
			return applied, nil
		}
	}
}

// Run replays on start, on every lifecycle notification and every interval
// until ctx is done. Notifications only wake the loop; ordering comes from
// the event log.
func (p *Projector) Run(ctx context.Context, sub events.Subscriber, interval time.Duration) error {
	wake := make(chan struct{}, 1)
	if sub != nil {
		err := sub.Subscribe(ctx, events.StreamBet, func(ev events.Event) {
			if ev.Type != events.EventBetLifecycle {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.replay(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		case <-ticker.C:
		}
		p.replay(ctx)
	}
}

func (p *Projector) replay(ctx context.Context) {
	n, err := p.Replay(ctx)
	if err != nil && ctx.Err() == nil {
		p.log.Error("replay failed", zap.Int("applied", n), zap.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("replay caught up", zap.Int("applied", n))
	}
}

// fillIdentity sets name and avatar for address wherever it appears on snap.
func fillIdentity(snap *models.BetSnapshot, address string, name, avatar *string) {
	if snap.Challenger == address {
		snap.ChallengerName, snap.ChallengerAvatar = name, avatar
	}
	if snap.Challengee == address {
		snap.ChallengeeName, snap.ChallengeeAvatar = name, avatar
	}
	if snap.Mediator != "" && snap.Mediator == address {
		snap.MediatorName, snap.MediatorAvatar = name, avatar
	}
}

func nameAndAvatar(p *models.Profile) (*string, *string) {
	if p == nil {
		return nil, nil
	}
	name := p.DisplayName
	if name == nil {
		name = p.Username
	}
	return name, p.AvatarURL
}

// backfillIdentity looks up parties still missing a name. It runs after the
// event is committed, and only for newly applied events, so a slow or failing
// lookup never holds up the event log.
func (p *Projector) backfillIdentity(ctx context.Context, snap *models.BetSnapshot) {
	if p.identities == nil {
		return
	}
	var missing []string
	if snap.ChallengerName == nil {
		missing = append(missing, snap.Challenger)
	}
	if snap.ChallengeeName == nil {
		missing = append(missing, snap.Challengee)
	}
	if snap.Mediator != "" && snap.MediatorName == nil {
		missing = append(missing, snap.Mediator)
	}
	if len(missing) == 0 {
		return
	}

	for addr, profile := range p.identities.Resolve(ctx, missing...) {
		name, avatar := nameAndAvatar(profile)
		if name == nil && avatar == nil {
			continue
		}
		if err := p.store.SetIdentity(ctx, addr, name, avatar); err != nil {
			p.log.Warn("identity backfill failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		fillIdentity(snap, addr, name, avatar)
	}
}

func (p *Projector) announce(ctx context.Context, snap *models.BetSnapshot) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.Publish(ctx, events.StreamMirror, events.Event{
		Type: events.EventSnapshotUpdated,
		Payload: map[string]any{
			"bet_id":    snap.ID,
			"seq":       snap.LastSeq,
			"status":    snap.Status.String(),
			"is_closed": snap.IsClosed,
		},
	})
	if err != nil {
		p.log.Warn("failed to publish snapshot update", zap.Int64("bet_id", snap.ID), zap.Error(err))
	}
}
