package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

// NativeToken is the allow-list symbol deposits of native coin are credited as.
const NativeToken = "TON"

const txBatchSize = 100

// Connect opens a lite client pool. With host and key set it dials that
// server, otherwise it discovers servers from the global config of network.
func Connect(ctx context.Context, network, host string, port int, key string, log *zap.Logger) (tonapi.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if host != "" && key != "" {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, key); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.EqualFold(network, "mainnet") {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	policy := tonapi.ProofCheckPolicyFast
	if strings.EqualFold(network, "mainnet") {
		policy = tonapi.ProofCheckPolicySecure
	}
	return tonapi.NewAPIClient(client, policy).WithRetry(), nil
}

// Head is the latest transaction of the watched account.
type Head struct {
	LT   uint64
	Hash []byte
}

func (h Head) HashHex() string { return hex.EncodeToString(h.Hash) }

// Scanner lists incoming transactions of the house wallet.
type Scanner struct {
	api    tonapi.APIClientWrapped
	wallet *address.Address
}

func NewScanner(api tonapi.APIClientWrapped, wallet *address.Address) *Scanner {
	return &Scanner{api: api, wallet: wallet}
}

// Head returns the account's last transaction, or a zero Head while the
// wallet is not active.
func (s *Scanner) Head(ctx context.Context) (Head, error) {
	block, err := s.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return Head{}, fmt.Errorf("get master block: %w", err)
	}
	account, err := s.api.GetAccount(ctx, block, s.wallet)
	if err != nil {
		return Head{}, fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return Head{}, nil
	}
	return Head{LT: account.LastTxLT, Hash: account.LastTxHash}, nil
}

// Since returns every transaction with LT in (cursorLT, head.LT], oldest
// first. ListTransactions pages backwards from head until the cursor.
func (s *Scanner) Since(ctx context.Context, head Head, cursorLT uint64) ([]*tlb.Transaction, error) {
	var all []*tlb.Transaction
	lt, hash := head.LT, head.Hash

	for {
		txs, err := s.api.ListTransactions(ctx, s.wallet, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			all = append(all, tx)
		}
		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}

	sort.Slice(all, func(i, j int) bool { return all[i].LT < all[j].LT })
	return all, nil
}

// Deposit is an incoming transfer to credit to an internal balance.
type Deposit struct {
	TxRef       string
	LT          uint64
	From        string
	Beneficiary string
	Token       string
	Amount      *big.Int
	Comment     string
	At          time.Time
}

// ParseDeposit turns an incoming internal transfer into a Deposit. The
// sender is credited unless the comment names another valid address.
// Bounced, empty and outgoing transactions yield false.
func ParseDeposit(tx *tlb.Transaction) (*Deposit, bool) {
	if tx == nil || tx.IO.In == nil {
		return nil, false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced || inMsg.SrcAddr == nil {
		return nil, false
	}
	amount := inMsg.Amount.Nano()
	if amount.Sign() <= 0 {
		return nil, false
	}

	from, err := NormalizeAddress(inMsg.SrcAddr.String())
	if err != nil || from == "" {
		return nil, false
	}
	comment := ExtractComment(inMsg)

	return &Deposit{
		TxRef:       fmt.Sprintf("ton:%d:%s", tx.LT, hex.EncodeToString(tx.Hash)),
		LT:          tx.LT,
		From:        from,
		Beneficiary: Beneficiary(from, comment),
		Token:       NativeToken,
		Amount:      amount,
		Comment:     comment,
		At:          time.Unix(int64(tx.Now), 0).UTC(),
	}, true
}

// Beneficiary picks who a deposit is credited to.
func Beneficiary(from, comment string) string {
	if comment == "" {
		return from
	}
	if to, err := NormalizeAddress(comment); err == nil && to != "" && !IsZero(to) {
		return to
	}
	return from
}

// ExtractComment parses a text comment from an InternalMessage body.
// Text comments have opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}
	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}
	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
