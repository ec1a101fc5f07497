package ton

import (
	"strings"
	"testing"

	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func TestExtractComment(t *testing.T) {
	tests := []struct {
		name string
		body *cell.Cell
		want string
	}{
		{"nil body", nil, ""},
		{"text comment", cell.BeginCell().MustStoreUInt(0, 32).MustStoreSlice([]byte(" hello "), 56).EndCell(), "hello"},
		{"non-zero opcode", cell.BeginCell().MustStoreUInt(7, 32).MustStoreSlice([]byte("x"), 8).EndCell(), ""},
		{"opcode only", cell.BeginCell().MustStoreUInt(0, 32).EndCell(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractComment(&tlb.InternalMessage{Body: tt.body})
			if got != tt.want {
				t.Errorf("ExtractComment() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBeneficiary(t *testing.T) {
	from := "0:" + rawHash
	other := "-1:" + rawHash

	if got := Beneficiary(from, ""); got != from {
		t.Errorf("empty comment -> %s", got)
	}
	if got := Beneficiary(from, "for my bet"); got != from {
		t.Errorf("free text comment -> %s", got)
	}
	if got := Beneficiary(from, other); got != other {
		t.Errorf("address comment -> %s, want %s", got, other)
	}
	if got := Beneficiary(from, "0:"+strings.Repeat("0", 64)); got != from {
		t.Errorf("zero address comment -> %s", got)
	}
}

func TestParseDepositSkipsEmpty(t *testing.T) {
	if _, ok := ParseDeposit(nil); ok {
		t.Error("nil transaction should be skipped")
	}
	if _, ok := ParseDeposit(&tlb.Transaction{}); ok {
		t.Error("transaction without inbound message should be skipped")
	}
}
