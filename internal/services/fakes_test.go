package services

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	alice = "0:" + strings.Repeat("a", 64)
	bob   = "0:" + strings.Repeat("b", 64)
	carol = "0:" + strings.Repeat("c", 64)
	house = "0:" + strings.Repeat("e", 64)
	admin = "0:" + strings.Repeat("f", 64)
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// world is an in-memory database. Bet rows lock like SELECT ... FOR UPDATE
// and every write registers an undo that runs on rollback.
type world struct {
	mu       sync.Mutex
	rowLocks map[int64]*sync.Mutex
	nextID   int64
	bets     map[int64]models.Bet
	events   []models.BetEvent
	balances map[string]*big.Int
	entries  []models.LedgerEntry
	fees     escrow.Fees
	tokens   map[string]bool
}

func newWorld() *world {
	return &world{
		rowLocks: make(map[int64]*sync.Mutex),
		bets:     make(map[int64]models.Bet),
		balances: make(map[string]*big.Int),
		fees:     escrow.Fees{Bps: 100, Recipient: house},
		tokens:   map[string]bool{"TON": true},
	}
}

func (w *world) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{w: w}, nil
}

func (w *world) fund(owner string, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[owner+"|TON"] = big.NewInt(amount)
}

func (w *world) balance(owner string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.balances[owner+"|TON"]; ok {
		return b.Int64()
	}
	return 0
}

func (w *world) total() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum int64
	for _, b := range w.balances {
		sum += b.Int64()
	}
	return sum
}

func (w *world) eventNames(betID int64) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var names []string
	for _, e := range w.events {
		if e.BetID == betID {
			names = append(names, e.Name)
		}
	}
	return names
}

type fakeTx struct {
	pgx.Tx
	w    *world
	undo []func()
	held []*sync.Mutex
	done bool
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish(false)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish(true)
	return nil
}

func (t *fakeTx) finish(rollback bool) {
	if rollback {
		t.w.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.w.mu.Unlock()
	}
	for _, m := range t.held {
		m.Unlock()
	}
	t.done = true
}

func asFake(tx pgx.Tx) *fakeTx { return tx.(*fakeTx) }

type betTable struct{ w *world }

func (b betTable) CreateTx(_ context.Context, tx pgx.Tx, bet *models.Bet) error {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	bet.ID = w.nextID
	bet.CreatedAt, bet.UpdatedAt = t0, t0
	w.bets[bet.ID] = *bet
	id := bet.ID
	asFake(tx).undo = append(asFake(tx).undo, func() { delete(w.bets, id) })
	return nil
}

func (b betTable) GetForUpdate(_ context.Context, tx pgx.Tx, id int64) (*models.Bet, error) {
	w := b.w
	w.mu.Lock()
	lock, ok := w.rowLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		w.rowLocks[id] = lock
	}
	w.mu.Unlock()

	lock.Lock()
	asFake(tx).held = append(asFake(tx).held, lock)

	w.mu.Lock()
	defer w.mu.Unlock()
	bet, ok := w.bets[id]
	if !ok {
		return nil, betstate.ErrBetNotFound
	}
	return &bet, nil
}

func (b betTable) UpdateTx(_ context.Context, tx pgx.Tx, bet *models.Bet) error {
	w := b.w
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.bets[bet.ID]
	w.bets[bet.ID] = *bet
	asFake(tx).undo = append(asFake(tx).undo, func() { w.bets[prev.ID] = prev })
	return nil
}

func (b betTable) GetByID(_ context.Context, id int64) (*models.Bet, error) {
	b.w.mu.Lock()
	defer b.w.mu.Unlock()
	bet, ok := b.w.bets[id]
	if !ok {
		return nil, betstate.ErrBetNotFound
	}
	return &bet, nil
}

func (b betTable) List(_ context.Context, f models.BetFilter) ([]models.Bet, error) {
	b.w.mu.Lock()
	defer b.w.mu.Unlock()
	var out []models.Bet
	for _, bet := range b.w.bets {
		if f.Participant != "" && bet.Challenger != f.Participant && bet.Challengee != f.Participant && bet.Mediator != f.Participant {
			continue
		}
		if f.OpenOnly && bet.IsClosed {
			continue
		}
		out = append(out, bet)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type eventTable struct{ w *world }

func (e eventTable) AppendTx(_ context.Context, tx pgx.Tx, ev *models.BetEvent) error {
	w := e.w
	w.mu.Lock()
	defer w.mu.Unlock()
	ev.Seq = int64(len(w.events) + 1)
	w.events = append(w.events, *ev)
	seq := ev.Seq
	asFake(tx).undo = append(asFake(tx).undo, func() {
		for i := range w.events {
			if w.events[i].Seq == seq {
				w.events = append(w.events[:i], w.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (e eventTable) ListByBet(_ context.Context, betID int64) ([]models.BetEvent, error) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	var out []models.BetEvent
	for _, ev := range e.w.events {
		if ev.BetID == betID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type accountTable struct{ w *world }

func (a accountTable) GetForUpdate(_ context.Context, _ pgx.Tx, owner, token string) (*big.Int, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	if b, ok := a.w.balances[owner+"|"+token]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (a accountTable) Add(_ context.Context, tx pgx.Tx, owner, token string, delta *big.Int) (*big.Int, error) {
	w := a.w
	w.mu.Lock()
	defer w.mu.Unlock()
	key := owner + "|" + token
	cur, ok := w.balances[key]
	if !ok {
		cur = new(big.Int)
	}
	next := new(big.Int).Add(cur, delta)
	w.balances[key] = next
	d := new(big.Int).Set(delta)
	asFake(tx).undo = append(asFake(tx).undo, func() {
		w.balances[key] = new(big.Int).Sub(w.balances[key], d)
	})
	return new(big.Int).Set(next), nil
}

func (a accountTable) ListByOwner(_ context.Context, owner string) ([]models.Balance, error) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	var out []models.Balance
	for key, amt := range a.w.balances {
		o, token, _ := strings.Cut(key, "|")
		if o == owner {
			out = append(out, models.Balance{Owner: o, Token: token, Amount: new(big.Int).Set(amt)})
		}
	}
	return out, nil
}

type entryTable struct{ w *world }

func (e entryTable) CreateTx(_ context.Context, tx pgx.Tx, entry *models.LedgerEntry) error {
	w := e.w
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, *entry)
	id := entry.ID
	asFake(tx).undo = append(asFake(tx).undo, func() {
		for i := range w.entries {
			if w.entries[i].ID == id {
				w.entries = append(w.entries[:i], w.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (e entryTable) DepositSeen(_ context.Context, _ pgx.Tx, txRef string) (bool, error) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	for _, entry := range e.w.entries {
		if entry.Kind == models.EntryDeposit && entry.TxRef != nil && *entry.TxRef == txRef {
			return true, nil
		}
	}
	return false, nil
}

func (e entryTable) ListByOwner(_ context.Context, owner string, limit int) ([]models.LedgerEntry, error) {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	var out []models.LedgerEntry
	for i := len(e.w.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e.w.entries[i].Owner == owner {
			out = append(out, e.w.entries[i])
		}
	}
	return out, nil
}

type settingsTable struct{ w *world }

func (s settingsTable) CurrentFees(context.Context, pgx.Tx) (escrow.Fees, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.fees, nil
}

func (s settingsTable) IsTokenSupported(_ context.Context, _ pgx.Tx, token string) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.tokens[token], nil
}

func (s settingsTable) Get(context.Context) (*models.HouseSettings, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return &models.HouseSettings{FeeBps: s.w.fees.Bps, FeeRecipient: s.w.fees.Recipient}, nil
}

func (s settingsTable) SetFees(_ context.Context, bps int, _ string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.fees.Bps = bps
	return nil
}

func (s settingsTable) SetFeeRecipient(_ context.Context, recipient, _ string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.fees.Recipient = recipient
	return nil
}

func (s settingsTable) ListTokens(context.Context) ([]models.SupportedToken, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.SupportedToken
	for sym := range s.w.tokens {
		out = append(out, models.SupportedToken{Symbol: sym})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s settingsTable) AddToken(_ context.Context, symbol, _ string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.tokens[symbol] = true
	return nil
}

func (s settingsTable) RemoveToken(_ context.Context, symbol string) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if !s.w.tokens[symbol] {
		return false, nil
	}
	delete(s.w.tokens, symbol)
	return true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	w     *world
	clock *clock
	pub   *recordingPublisher
	bets  *BetService
	bals  *BalanceService
}

var testWindows = Windows{
	ProofSubmission: 24 * time.Hour,
	ProofReview:     24 * time.Hour,
	Mediation:       24 * time.Hour,
}

func newHarness() *harness {
	w := newWorld()
	c := &clock{now: t0}
	pub := &recordingPublisher{}
	ledger := escrow.NewLedger(accountTable{w}, entryTable{w}, settingsTable{w})
	log := zap.NewNop()

	bets := NewBetService(w, betTable{w}, eventTable{w}, settingsTable{w}, ledger, pub, nil, testWindows, log).
		WithClock(c.Now)
	bals := NewBalanceService(w, accountTable{w}, entryTable{w}, ledger, pub, nil, log)
	return &harness{w: w, clock: c, pub: pub, bets: bets, bals: bals}
}

func (h *harness) create(mediator string, amount int64) (*models.Bet, error) {
	return h.bets.Create(context.Background(), CreateBetInput{
		Challenger: alice,
		Challengee: bob,
		Mediator:   mediator,
		Condition:  "run 10k under 50 minutes",
		Amount:     big.NewInt(amount),
		Deadline:   t0.Add(time.Hour),
		Token:      "TON",
	})
}
