package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/models"
	"github.com/darehouse/backend/internal/ton"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type BetStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, b *models.Bet) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Bet, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, b *models.Bet) error
	GetByID(ctx context.Context, id int64) (*models.Bet, error)
	List(ctx context.Context, f models.BetFilter) ([]models.Bet, error)
}

type EventStore interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.BetEvent) error
	ListByBet(ctx context.Context, betID int64) ([]models.BetEvent, error)
}

type TokenAllowList interface {
	IsTokenSupported(ctx context.Context, tx pgx.Tx, token string) (bool, error)
}

// Windows are the phase lengths applied when a deadline is set by a
// transition rather than by the caller.
type Windows struct {
	ProofSubmission time.Duration
	ProofReview     time.Duration
	Mediation       time.Duration
}

// BetService runs the wager lifecycle. Every mutating call is one database
// transaction: lock the bet row, derive its status, authorize, move funds,
// write the bet and exactly one event. The event is published after commit.
type BetService struct {
	db        TxBeginner
	bets      BetStore
	events    EventStore
	tokens    TokenAllowList
	ledger    *escrow.Ledger
	publisher events.Publisher
	metrics   *metrics.Metrics
	windows   Windows
	now       func() time.Time
	log       *zap.Logger
}

func NewBetService(
	db TxBeginner,
	bets BetStore,
	eventStore EventStore,
	tokens TokenAllowList,
	ledger *escrow.Ledger,
	publisher events.Publisher,
	m *metrics.Metrics,
	windows Windows,
	log *zap.Logger,
) *BetService {
	return &BetService{
		db:        db,
		bets:      bets,
		events:    eventStore,
		tokens:    tokens,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		windows:   windows,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// WithClock replaces the wall clock, for tests and replays.
func (s *BetService) WithClock(now func() time.Time) *BetService {
	s.now = now
	return s
}

// CreateBetInput is a new wager as submitted by its challenger.
type CreateBetInput struct {
	Challenger string
	Challengee string
	Mediator   string
	Condition  string
	Amount     *big.Int
	Deadline   time.Time
	Token      string
}

// step is the action-specific part of a transition. It runs after the
// guard passed and returns the event name and payload to record.
type step func(ctx context.Context, tx pgx.Tx, bet *models.Bet, effective betstate.Status, now time.Time) (string, any, error)

func (s *BetService) Create(ctx context.Context, in CreateBetInput) (*models.Bet, error) {
	now := s.now()
	if err := betstate.ValidateTerms(in.Amount, in.Deadline, now); err != nil {
		s.metrics.Transition(betstate.ActionCreate.String(), string(betstate.KindValidation))
		return nil, err
	}
	parties, err := normalizeParties(in.Challenger, in.Challengee, in.Mediator)
	if err != nil {
		s.metrics.Transition(betstate.ActionCreate.String(), string(betstate.KindValidation))
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	token := strings.TrimSpace(in.Token)
	supported, err := s.tokens.IsTokenSupported(ctx, tx, token)
	if err != nil {
		return nil, fmt.Errorf("check token: %w", err)
	}

	check := betstate.CreateInput{
		Challenger: parties.Challenger,
		Challengee: parties.Challengee,
		Mediator:   parties.Mediator,
		Amount:     in.Amount,
		Deadline:   in.Deadline,
		Token:      token,
	}
	if err := betstate.ValidateCreate(check, now, func(string) bool { return supported }); err != nil {
		s.metrics.Transition(betstate.ActionCreate.String(), string(betstate.KindOf(err)))
		return nil, err
	}

	bet := &models.Bet{
		Challenger:         parties.Challenger,
		Challengee:         parties.Challengee,
		Mediator:           parties.Mediator,
		Condition:          strings.TrimSpace(in.Condition),
		Amount:             new(big.Int).Set(in.Amount),
		Token:              token,
		AcceptanceDeadline: in.Deadline.UTC(),
		Status:             betstate.StatusOpen,
		CreatedTxRef:       uuid.New(),
	}
	if err := s.bets.CreateTx(ctx, tx, bet); err != nil {
		return nil, fmt.Errorf("insert bet: %w", err)
	}
	if err := s.ledger.Lock(ctx, tx, bet.ID, bet.Challenger, bet.Token, bet.Amount); err != nil {
		s.metrics.Transition(betstate.ActionCreate.String(), resultOf(err))
		return nil, err
	}

	ev, err := s.appendEvent(ctx, tx, bet.CreatedTxRef, bet.ID, models.EventBetCreated, bet.Challenger, now, models.BetCreatedDetails{
		Challenger:         bet.Challenger,
		Challengee:         bet.Challengee,
		Mediator:           bet.Mediator,
		Condition:          bet.Condition,
		Amount:             bet.Amount.String(),
		Token:              bet.Token,
		AcceptanceDeadline: bet.AcceptanceDeadline,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.metrics.Transition(betstate.ActionCreate.String(), "ok")
	s.log.Info("bet created",
		zap.Int64("bet_id", bet.ID),
		zap.String("challenger", bet.Challenger),
		zap.String("challengee", bet.Challengee),
		zap.String("amount", bet.Amount.String()),
		zap.String("token", bet.Token),
	)
	s.publish(ctx, ev)
	return bet, nil
}

func (s *BetService) Cancel(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionCancel, actor, "", s.closeWith(models.EventBetCancelled))
}

func (s *BetService) Reject(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionReject, actor, "", s.closeWith(models.EventBetRejected))
}

func (s *BetService) Accept(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionAccept, actor, "",
		func(ctx context.Context, tx pgx.Tx, bet *models.Bet, _ betstate.Status, now time.Time) (string, any, error) {
			acc, err := s.ledger.Collect(ctx, tx, bet)
			if err != nil {
				return "", nil, err
			}
			deadline := now.Add(s.windows.ProofSubmission)
			bps := acc.FeeBps
			bet.FeeBps = &bps
			bet.AmountAfterFees = acc.AmountAfterFees
			bet.ProofSubmissionDeadline = &deadline
			bet.Status = betstate.StatusAccepted

			return models.EventBetAccepted, models.BetAcceptedDetails{
				FeeBps:                  acc.FeeBps,
				FeePerSide:              acc.FeePerSide.String(),
				TotalFees:               acc.TotalFees.String(),
				AmountAfterFees:         acc.AmountAfterFees.String(),
				FeeRecipient:            acc.FeeRecipient,
				ProofSubmissionDeadline: deadline,
			}, nil
		})
}

func (s *BetService) SubmitProof(ctx context.Context, betID int64, actor, proof string) (*models.Bet, error) {
	proof = strings.TrimSpace(proof)
	if proof == "" {
		s.metrics.Transition(betstate.ActionSubmitProof.String(), string(betstate.KindValidation))
		return nil, betstate.ErrEmptyProof
	}
	return s.transition(ctx, betID, betstate.ActionSubmitProof, actor, "",
		func(_ context.Context, _ pgx.Tx, bet *models.Bet, _ betstate.Status, now time.Time) (string, any, error) {
			deadline := now.Add(s.windows.ProofReview)
			bet.Proof = proof
			bet.ProofAcceptanceDeadline = &deadline
			bet.Status = betstate.StatusProofSubmitted

			return models.EventProofSubmitted, models.ProofSubmittedDetails{
				Proof:                   proof,
				ProofAcceptanceDeadline: deadline,
			}, nil
		})
}

func (s *BetService) AcceptProof(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionAcceptProof, actor, "", s.closeWith(models.EventProofAccepted))
}

// DisputeProof opens mediation when the bet has a mediator. Without one the
// bet closes at once and both sides get their net stake back.
func (s *BetService) DisputeProof(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionDisputeProof, actor, "",
		func(ctx context.Context, tx pgx.Tx, bet *models.Bet, _ betstate.Status, now time.Time) (string, any, error) {
			if bet.HasMediator() {
				deadline := now.Add(s.windows.Mediation)
				bet.MediationDeadline = &deadline
				bet.Status = betstate.StatusProofDisputed
				return models.EventProofDisputed, models.ProofDisputedDetails{
					IsMediating:       true,
					MediationDeadline: &deadline,
				}, nil
			}

			payouts, err := s.settle(ctx, tx, bet, betstate.StatusProofDisputed)
			if err != nil {
				return "", nil, err
			}
			return models.EventProofDisputed, models.ProofDisputedDetails{Payouts: payouts}, nil
		})
}

func (s *BetService) SubmitMediation(ctx context.Context, betID int64, actor, outcome string) (*models.Bet, error) {
	verdict, err := betstate.ParseVerdict(strings.ToLower(strings.TrimSpace(outcome)))
	if err != nil {
		s.metrics.Transition(betstate.ActionSubmitMediation.String(), string(betstate.KindValidation))
		return nil, err
	}
	return s.transition(ctx, betID, betstate.ActionSubmitMediation, actor, verdict,
		func(ctx context.Context, tx pgx.Tx, bet *models.Bet, effective betstate.Status, _ time.Time) (string, any, error) {
			final, _ := betstate.Next(betstate.ActionSubmitMediation, effective, true, verdict)
			payouts, err := s.settle(ctx, tx, bet, final)
			if err != nil {
				return "", nil, err
			}
			return models.EventMediationSubmitted, models.MediationSubmittedDetails{
				Outcome:         string(verdict),
				ResultingStatus: final.String(),
				Payouts:         payouts,
			}, nil
		})
}

func (s *BetService) Forfeit(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionForfeit, actor, "", s.closeWith(models.EventBetForfeited))
}

// Claim crystallizes a timed-out bet into its derived status and settles
// it. Anyone may call it; losing a race yields a state error.
func (s *BetService) Claim(ctx context.Context, betID int64, actor string) (*models.Bet, error) {
	return s.transition(ctx, betID, betstate.ActionClaim, actor, "",
		func(ctx context.Context, tx pgx.Tx, bet *models.Bet, effective betstate.Status, _ time.Time) (string, any, error) {
			payouts, err := s.settle(ctx, tx, bet, effective)
			if err != nil {
				return "", nil, err
			}
			return models.EventBetClaimed, models.BetClaimedDetails{
				Claimer:         actor,
				ResultingStatus: effective.String(),
				Payouts:         payouts,
			}, nil
		})
}

// closeWith is the step for actions whose only effect is settlement.
func (s *BetService) closeWith(name string) step {
	return func(ctx context.Context, tx pgx.Tx, bet *models.Bet, effective betstate.Status, _ time.Time) (string, any, error) {
		action := actionFor(name)
		final, _ := betstate.Next(action, effective, bet.HasMediator(), "")
		payouts, err := s.settle(ctx, tx, bet, final)
		if err != nil {
			return "", nil, err
		}
		return name, models.ClosingDetails{ResultingStatus: final.String(), Payouts: payouts}, nil
	}
}

func actionFor(eventName string) betstate.Action {
	switch eventName {
	case models.EventBetCancelled:
		return betstate.ActionCancel
	case models.EventBetRejected:
		return betstate.ActionReject
	case models.EventProofAccepted:
		return betstate.ActionAcceptProof
	case models.EventBetForfeited:
		return betstate.ActionForfeit
	}
	return betstate.ActionClaim
}

// settle pays out and marks the bet closed in the same transaction.
func (s *BetService) settle(ctx context.Context, tx pgx.Tx, bet *models.Bet, final betstate.Status) ([]models.Payout, error) {
	transfers, err := s.ledger.Settle(ctx, tx, bet, final)
	if err != nil {
		return nil, err
	}
	bet.Status = final
	bet.IsClosed = true

	payouts := make([]models.Payout, 0, len(transfers))
	for _, t := range transfers {
		payouts = append(payouts, models.Payout{To: t.To, Amount: t.Amount.String(), Kind: t.Kind})
	}
	return payouts, nil
}

func (s *BetService) transition(ctx context.Context, betID int64, action betstate.Action, actor string, verdict betstate.Verdict, fn step) (*models.Bet, error) {
	now := s.now()
	caller, err := ton.NormalizeAddress(actor)
	switch {
	case action == betstate.ActionClaim && (err != nil || caller == ""):
		// claimers need not be wallets; the watcher signs with its own name
		caller = strings.TrimSpace(actor)
	case err != nil:
		s.metrics.Transition(action.String(), string(betstate.KindValidation))
		return nil, betstate.ErrInvalidAddress
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	bet, err := s.bets.GetForUpdate(ctx, tx, betID)
	if err != nil {
		s.metrics.Transition(action.String(), resultOf(err))
		return nil, err
	}

	snap := bet.Snapshot()
	if betstate.UnmediatedDispute(snap) {
		s.log.Error("open dispute without mediation on stored bet",
			zap.Int64("bet_id", bet.ID),
			zap.String("action", action.String()),
		)
	}

	effective, err := betstate.Authorize(snap, bet.Parties(), action, caller, now)
	if err != nil {
		s.metrics.Transition(action.String(), resultOf(err))
		s.log.Debug("transition rejected",
			zap.Int64("bet_id", bet.ID),
			zap.String("action", action.String()),
			zap.String("actor", caller),
			zap.String("effective", effective.String()),
			zap.Error(err),
		)
		return nil, err
	}

	name, details, err := fn(ctx, tx, bet, effective, now)
	if err != nil {
		s.metrics.Transition(action.String(), resultOf(err))
		return nil, err
	}
	if err := s.bets.UpdateTx(ctx, tx, bet); err != nil {
		return nil, fmt.Errorf("update bet: %w", err)
	}
	ev, err := s.appendEvent(ctx, tx, uuid.New(), bet.ID, name, caller, now, details)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.metrics.Transition(action.String(), "ok")
	if bet.IsClosed {
		s.metrics.Settled(bet.Status.String())
	}
	s.log.Info("bet transition",
		zap.Int64("bet_id", bet.ID),
		zap.String("action", action.String()),
		zap.String("actor", caller),
		zap.String("status", bet.Status.String()),
		zap.Bool("closed", bet.IsClosed),
	)
	s.publish(ctx, ev)
	return bet, nil
}

func (s *BetService) appendEvent(ctx context.Context, tx pgx.Tx, txRef uuid.UUID, betID int64, name, actor string, now time.Time, details any) (*models.BetEvent, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode %s details: %w", name, err)
	}
	ev := &models.BetEvent{
		TxRef:     txRef,
		LogIndex:  0,
		BetID:     betID,
		Name:      name,
		Actor:     actor,
		BlockTime: now,
		Details:   raw,
	}
	if err := s.events.AppendTx(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return ev, nil
}

// publish is best effort; the projector replays missed events from the log.
func (s *BetService) publish(ctx context.Context, ev *models.BetEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.StreamBet, events.FromBetEvent(*ev)); err != nil {
		s.log.Warn("failed to publish bet event",
			zap.Int64("bet_id", ev.BetID),
			zap.Int64("seq", ev.Seq),
			zap.Error(err),
		)
	}
}

// GetBet returns the stored bet with its effective status at now.
func (s *BetService) GetBet(ctx context.Context, betID int64) (*models.BetWithState, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return nil, err
	}
	return &models.BetWithState{Bet: *bet, State: betstate.Current(bet.Snapshot(), s.now())}, nil
}

func (s *BetService) ListBets(ctx context.Context, f models.BetFilter) ([]models.BetWithState, error) {
	if f.Participant != "" {
		p, err := ton.NormalizeAddress(f.Participant)
		if err != nil {
			return nil, betstate.ErrInvalidAddress
		}
		f.Participant = p
	}
	bets, err := s.bets.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.BetWithState, 0, len(bets))
	for _, b := range bets {
		out = append(out, models.BetWithState{Bet: b, State: betstate.Current(b.Snapshot(), now)})
	}
	return out, nil
}

func (s *BetService) ListEvents(ctx context.Context, betID int64) ([]models.BetEvent, error) {
	if _, err := s.bets.GetByID(ctx, betID); err != nil {
		return nil, err
	}
	return s.events.ListByBet(ctx, betID)
}

func normalizeParties(challenger, challengee, mediator string) (betstate.Parties, error) {
	var p betstate.Parties
	var err error
	if p.Challenger, err = ton.NormalizeAddress(challenger); err != nil || p.Challenger == "" || ton.IsZero(p.Challenger) {
		return p, betstate.ErrInvalidAddress
	}
	if p.Challengee, err = ton.NormalizeAddress(challengee); err != nil {
		return p, betstate.ErrInvalidAddress
	}
	if p.Mediator, err = ton.NormalizeAddress(mediator); err != nil {
		return p, betstate.ErrInvalidAddress
	}
	return p, nil
}

// resultOf is the metrics label for an error.
func resultOf(err error) string {
	if k := betstate.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
