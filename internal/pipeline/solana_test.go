package pipeline

import (
	"bytes"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

func TestIsValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"So11111111111111111111111111111111111111112", true},
		{"11111111111111111111111111111111", true},
		{"", false},
		{"short", false},
		{"not-base58-0OIl!", false},
		// 44 valid base58 chars decoding to more than 32 bytes.
		{"zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", false},
	}
	for _, c := range cases {
		if got := isValidAddress(c.addr); got != c.want {
			t.Errorf("isValidAddress(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestIsWalletAddress(t *testing.T) {
	// The ed25519 generator is on-curve by construction.
	onCurve := base58.Encode(edwards25519.NewGeneratorPoint().Bytes())
	if !isWalletAddress(onCurve) {
		t.Errorf("Generator point should classify as wallet")
	}

	// A non-canonical encoding is never a valid curve point.
	offCurve := base58.Encode(bytes.Repeat([]byte{0xFF}, 32))
	if isWalletAddress(offCurve) {
		t.Errorf("Invalid point should not classify as wallet")
	}

	if isWalletAddress("not-an-address") {
		t.Error("Undecodable input should not classify as wallet")
	}
}
