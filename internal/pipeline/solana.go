package pipeline

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// isValidAddress reports whether addr decodes to a 32-byte Solana
// public key.
func isValidAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// isWalletAddress reports whether addr is a regular keypair wallet.
// Program Derived Addresses are constructed to be off the ed25519
// curve, so an on-curve point distinguishes user wallets from program
// accounts.
func isWalletAddress(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	return isOnCurve(decoded)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
