package repositories

import (
	"fmt"
	"math/big"
)

// Token amounts travel to and from NUMERIC columns as decimal text
// (CAST($n::text AS NUMERIC) on the way in, amount::text on the way out).

func amountArg(x *big.Int) *string {
	if x == nil {
		return nil
	}
	s := x.String()
	return &s
}

func parseAmount(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", s)
	}
	return x, nil
}

func parseOptionalAmount(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseAmount(*s)
}
