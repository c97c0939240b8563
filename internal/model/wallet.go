package model

import (
	"crypto/ed25519"
	"time"
)

// Wallet holds the signing key material for a single address. Private keys
// never leave the keystore; the struct is copied out without them where
// callers only need the address and public key.
type Wallet struct {
	Address    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Mnemonic   string
	// Degraded marks wallets whose key material was produced by the
	// non-cryptographic fallback generator. Deployments should alert on it.
	Degraded  bool
	CreatedAt time.Time
}
