package ton

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ErrInvalidAddress is returned for input that is neither raw nor user-friendly.
var ErrInvalidAddress = errors.New("invalid TON address")

// NormalizeAddress maps any accepted form of an address to its canonical raw
// form "wc:hex". Bounceable and non-bounceable user-friendly forms of one
// account normalise to the same string. Empty input is the null identity and
// stays empty.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, ":") {
		wc, hash, err := ParseRawAddress(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return formatRaw(wc, hash), nil
	}

	addr, err := address.ParseAddr(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return formatRaw(addr.Workchain(), addr.Data()), nil
}

// IsZero reports whether s, in any accepted form, names the all-zero account
// on some workchain. Unparseable and empty input is not zero.
func IsZero(s string) bool {
	n, err := NormalizeAddress(s)
	if err != nil || n == "" {
		return false
	}
	_, hash, err := ParseRawAddress(n)
	if err != nil {
		return false
	}
	for _, b := range hash {
		if b != 0 {
			return false
		}
	}
	return true
}

// NormalizeAll normalises a list, skipping entries that fail to parse.
func NormalizeAll(in []string) (out []string, bad []string) {
	for _, s := range in {
		n, err := NormalizeAddress(s)
		if err != nil || n == "" {
			bad = append(bad, s)
			continue
		}
		out = append(out, n)
	}
	return out, bad
}

// ParseRawAddress parses "wc:hex" into workchain and a 32-byte account hash.
func ParseRawAddress(raw string) (workchain int32, addrHash []byte, err error) {
	var wc int
	var hashHex string
	n, _ := fmt.Sscanf(raw, "%d:%s", &wc, &hashHex)
	if n != 2 {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}
	if wc != 0 && wc != -1 {
		return 0, nil, fmt.Errorf("unsupported workchain %d", wc)
	}
	addrHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(addrHash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}
	return int32(wc), addrHash, nil
}

func formatRaw(wc int32, hash []byte) string {
	return fmt.Sprintf("%d:%s", wc, hex.EncodeToString(hash))
}
