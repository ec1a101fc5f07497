package indexer

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/ton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"go.uber.org/zap"
)

var (
	sender = "0:" + strings.Repeat("1", 64)
	friend = "0:" + strings.Repeat("2", 64)
)

func transfer(lt uint64, nanos int64, comment string) *tlb.Transaction {
	var body *cell.Cell
	if comment != "" {
		body = cell.BeginCell().MustStoreUInt(0, 32).MustStoreSlice([]byte(comment), uint(8*len(comment))).EndCell()
	}
	tx := &tlb.Transaction{LT: lt, Hash: []byte{byte(lt)}, Now: 1_770_000_000}
	tx.IO.In = &tlb.Message{
		MsgType: tlb.MsgTypeInternal,
		Msg: &tlb.InternalMessage{
			SrcAddr: address.MustParseRawAddr(sender),
			Amount:  tlb.FromNanoTON(big.NewInt(nanos)),
			Body:    body,
		},
	}
	return tx
}

type fakeSource struct {
	head  ton.Head
	txs   []*tlb.Transaction
	since uint64
}

func (f *fakeSource) Head(context.Context) (ton.Head, error) { return f.head, nil }

func (f *fakeSource) Since(_ context.Context, _ ton.Head, cursorLT uint64) ([]*tlb.Transaction, error) {
	f.since = cursorLT
	var out []*tlb.Transaction
	for _, tx := range f.txs {
		if tx.LT > cursorLT {
			out = append(out, tx)
		}
	}
	return out, nil
}

type memCursor struct {
	lt  uint64
	set bool
}

func (c *memCursor) Load(context.Context) (uint64, bool, error) { return c.lt, c.set, nil }

func (c *memCursor) Save(_ context.Context, head ton.Head) error {
	c.lt, c.set = head.LT, true
	return nil
}

type credit struct {
	owner  string
	amount string
	txRef  string
}

type fakeCrediter struct {
	seen    map[string]bool
	credits []credit
	err     error
}

func (f *fakeCrediter) Deposit(_ context.Context, owner, token string, amount *big.Int, txRef string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[txRef] {
		return false, nil
	}
	f.seen[txRef] = true
	f.credits = append(f.credits, credit{owner: owner, amount: amount.String(), txRef: txRef})
	return true, nil
}

func TestInitSkipsHistory(t *testing.T) {
	src := &fakeSource{head: ton.Head{LT: 50}, txs: []*tlb.Transaction{transfer(40, 100, "")}}
	cur := &memCursor{}
	cr := &fakeCrediter{seen: map[string]bool{}}
	ix := New(src, cur, cr, zap.NewNop())

	require.NoError(t, ix.Init(context.Background()))
	assert.Equal(t, uint64(50), cur.lt)

	n, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, cr.credits)
}

func TestPollCreditsNewTransfers(t *testing.T) {
	src := &fakeSource{
		head: ton.Head{LT: 30},
		txs: []*tlb.Transaction{
			transfer(10, 500, ""),
			transfer(20, 700, friend),
			transfer(30, 0, ""),
		},
	}
	cur := &memCursor{lt: 5, set: true}
	cr := &fakeCrediter{seen: map[string]bool{}}
	ix := New(src, cur, cr, zap.NewNop())

	n, err := ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(5), src.since)
	assert.Equal(t, uint64(30), cur.lt)

	require.Len(t, cr.credits, 2)
	assert.Equal(t, sender, cr.credits[0].owner)
	assert.Equal(t, "500", cr.credits[0].amount)
	assert.Equal(t, friend, cr.credits[1].owner)

	// Rewinding the cursor replays without double-crediting.
	cur.lt = 5
	n, err = ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, cr.credits, 2)
}

func TestPollKeepsCursorOnFailure(t *testing.T) {
	src := &fakeSource{head: ton.Head{LT: 10}, txs: []*tlb.Transaction{transfer(10, 500, "")}}
	cur := &memCursor{lt: 1, set: true}

	ix := New(src, cur, &fakeCrediter{err: errors.New("db down")}, zap.NewNop())
	_, err := ix.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), cur.lt)

	ix = New(src, cur, &fakeCrediter{err: betstate.ErrTokenNotSupported}, zap.NewNop())
	_, err = ix.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cur.lt)
}
