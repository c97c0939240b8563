package service

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/proof"
)

const (
	credentialTTL   = 365 * 24 * time.Hour
	credentialProof = "Ed25519Signature2020"
)

// credentialClaims binds the hash of the credential claims to the subject and
// issuing wallet inside the EdDSA-signed proof value.
type credentialClaims struct {
	jwt.RegisteredClaims
	ClaimsHash string `json:"claims_hash"`
}

// Credential issues and verifies verifiable credentials. The identity (and
// wallet) of a user is created lazily on the first credential request.
type Credential struct {
	identities *Identities
	keys       *keystore.Manager
	logger     *logger.Logger
	now        func() time.Time
}

// NewCredential creates the credential service.
func NewCredential(identities *Identities, keys *keystore.Manager, l *logger.Logger) *Credential {
	return &Credential{
		identities: identities,
		keys:       keys,
		logger:     l,
		now:        time.Now,
	}
}

// CreateVerifiableCredential issues a credential of the given type about the
// user, signed with the user's wallet key, and returns the credential ID.
func (s *Credential) CreateVerifiableCredential(ctx context.Context, userID, credType string, claims map[string]any) (string, error) {
	identity := s.identities.Ensure(userID)

	wallet, err := s.keys.Wallet(identity.WalletAddress)
	if err != nil {
		return "", fmt.Errorf("failed to load wallet for user %s: %w", userID, err)
	}

	claimsHash, err := proof.HashData(claims)
	if err != nil {
		return "", fmt.Errorf("failed to hash claims: %w", err)
	}

	now := s.now()
	expires := now.Add(credentialTTL)

	proofValue, err := s.signClaims(identity.WalletAddress, userID, claimsHash, now, expires)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}

	cred := model.Credential{
		ID:             "vc_" + uuid.NewString(),
		Type:           credType,
		Issuer:         wallet.Address,
		Subject:        userID,
		IssuanceDate:   now,
		ExpirationDate: expires,
		Claims:         claims,
		Proof: model.CredentialProof{
			Type:               credentialProof,
			VerificationMethod: hex.EncodeToString(wallet.PublicKey),
			ProofValue:         proofValue,
			Created:            now,
		},
	}

	if err := s.identities.AddCredential(userID, cred); err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.Info("credential issued",
		"credential_id", cred.ID, "type", credType, "subject", userID)
	return cred.ID, nil
}

// VerifyCredential checks a stored credential: subject, expiry, claims hash
// and signature. It returns false on any lookup miss or mismatch, never an
// error, so callers cannot conflate "invalid" with "system failure".
func (s *Credential) VerifyCredential(ctx context.Context, credentialID, userID string) bool {
	cred, err := s.identities.Credential(userID, credentialID)
	if err != nil {
		return false
	}
	if cred.Subject != userID {
		return false
	}
	if s.now().After(cred.ExpirationDate) {
		return false
	}

	claimsHash, err := proof.HashData(cred.Claims)
	if err != nil {
		return false
	}

	pub, err := hex.DecodeString(cred.Proof.VerificationMethod)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}

	parsed := &credentialClaims{}
	token, err := jwt.ParseWithClaims(cred.Proof.ProofValue, parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return ed25519.PublicKey(pub), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	return parsed.ClaimsHash == claimsHash && parsed.Subject == userID
}

func (s *Credential) signClaims(walletAddress, userID, claimsHash string, now, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    walletAddress,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		ClaimsHash: claimsHash,
	})

	return s.keys.SignJWT(walletAddress, token)
}
