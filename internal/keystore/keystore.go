// Package keystore owns the wallet lifecycle: mnemonic generation, ed25519
// key derivation and payload signing. Wallets are kept in memory keyed by
// address; private keys never leave the package.
package keystore

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyler-smith/go-bip39"

	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
)

const entropyBits = 128

// Manager implements the key manager. Wallet creation always succeeds: when
// the mnemonic generator fails, key material degrades to pseudo-random bytes
// and the wallet is marked Degraded instead of surfacing an error.
type Manager struct {
	logger *logger.Logger

	// newEntropy is swapped in tests to exercise the degraded path.
	newEntropy func(bitSize int) ([]byte, error)

	mu      sync.RWMutex
	wallets map[string]model.Wallet
}

// New creates an empty wallet manager.
func New(l *logger.Logger) *Manager {
	return &Manager{
		logger:     l,
		newEntropy: bip39.NewEntropy,
		wallets:    make(map[string]model.Wallet),
	}
}

// CreateWallet generates a mnemonic, derives an ed25519 keypair from its seed
// and stores the wallet. It returns the wallet address.
func (m *Manager) CreateWallet() string {
	wallet := m.generate()

	m.mu.Lock()
	m.wallets[wallet.Address] = wallet
	m.mu.Unlock()

	return wallet.Address
}

func (m *Manager) generate() model.Wallet {
	entropy, err := m.newEntropy(entropyBits)
	if err != nil {
		return m.generateDegraded(err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return m.generateDegraded(err)
	}

	seed := sha256.Sum256(bip39.NewSeed(mnemonic, ""))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)

	return model.Wallet{
		Address:    deriveAddress(pub),
		PublicKey:  pub,
		PrivateKey: priv,
		Mnemonic:   mnemonic,
		CreatedAt:  time.Now(),
	}
}

// generateDegraded produces a wallet from pseudo-random seed material. The
// keys still sign and verify, but the seed did not come from a CSPRNG, so the
// wallet is flagged and the degradation logged for operators.
func (m *Manager) generateDegraded(cause error) model.Wallet {
	m.logger.Warn("mnemonic generation failed, falling back to pseudo-random key material",
		"error", cause)

	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = byte(rand.Uint32())
	}
	seed := sha256.Sum256(fmt.Appendf(raw, "%d", time.Now().UnixNano()))

	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)

	return model.Wallet{
		Address:    deriveAddress(pub),
		PublicKey:  pub,
		PrivateKey: priv,
		Degraded:   true,
		CreatedAt:  time.Now(),
	}
}

// Wallet returns a copy of the stored wallet without its private key and
// mnemonic.
func (m *Manager) Wallet(address string) (model.Wallet, error) {
	m.mu.RLock()
	wallet, ok := m.wallets[address]
	m.mu.RUnlock()
	if !ok {
		return model.Wallet{}, fmt.Errorf("wallet %s: %w", address, model.ErrNotFound)
	}

	wallet.PrivateKey = nil
	wallet.Mnemonic = ""
	return wallet, nil
}

// PublicKey returns the public key stored under the address.
func (m *Manager) PublicKey(address string) (ed25519.PublicKey, error) {
	m.mu.RLock()
	wallet, ok := m.wallets[address]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", address, model.ErrNotFound)
	}
	return wallet.PublicKey, nil
}

// Sign signs the sha256 hash of the payload with the wallet's private key.
func (m *Manager) Sign(address string, payload []byte) ([]byte, error) {
	m.mu.RLock()
	wallet, ok := m.wallets[address]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", address, model.ErrNotFound)
	}

	hash := sha256.Sum256(payload)
	return ed25519.Sign(wallet.PrivateKey, hash[:]), nil
}

// SignJWT signs a JWT with the wallet's ed25519 private key. The token must
// use the EdDSA signing method.
func (m *Manager) SignJWT(address string, token *jwt.Token) (string, error) {
	m.mu.RLock()
	wallet, ok := m.wallets[address]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("wallet %s: %w", address, model.ErrNotFound)
	}

	signed, err := token.SignedString(wallet.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifySignature verifies a signature produced by Sign against a public key.
func VerifySignature(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	hash := sha256.Sum256(payload)
	return ed25519.Verify(pub, hash[:], sig)
}

func deriveAddress(pub ed25519.PublicKey) string {
	hash := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(hash[:20])
}
