package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/model"
)

// Identities maps users to wallets and issued credentials. Identities and
// wallets are independently keyed maps joined by the wallet address; an
// identity is created lazily on the first credential request for a user.
type Identities struct {
	keys *keystore.Manager

	mu     sync.RWMutex
	byUser map[string]*model.Identity
}

// NewIdentities creates an empty identity store backed by the wallet manager.
func NewIdentities(keys *keystore.Manager) *Identities {
	return &Identities{
		keys:   keys,
		byUser: make(map[string]*model.Identity),
	}
}

// Get returns a copy of the user's identity, or ErrNoIdentity when none was
// created yet.
func (s *Identities) Get(userID string) (model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byUser[userID]
	if !ok {
		return model.Identity{}, fmt.Errorf("user %s: %w", userID, model.ErrNoIdentity)
	}
	return copyIdentity(identity), nil
}

// Ensure returns the user's identity, creating it (and its wallet) on first
// use.
func (s *Identities) Ensure(userID string) model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity, ok := s.byUser[userID]; ok {
		return copyIdentity(identity)
	}

	identity := &model.Identity{
		UserID:        userID,
		WalletAddress: s.keys.CreateWallet(),
		Credentials:   make(map[string]model.Credential),
		CreatedAt:     time.Now(),
	}
	s.byUser[userID] = identity

	return copyIdentity(identity)
}

// AddCredential stores a credential under the user's identity.
func (s *Identities) AddCredential(userID string, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byUser[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, model.ErrNoIdentity)
	}
	identity.Credentials[cred.ID] = cred
	return nil
}

// Credential looks up one credential of the user.
func (s *Identities) Credential(userID, credentialID string) (model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byUser[userID]
	if !ok {
		return model.Credential{}, fmt.Errorf("user %s: %w", userID, model.ErrNoIdentity)
	}
	cred, ok := identity.Credentials[credentialID]
	if !ok {
		return model.Credential{}, fmt.Errorf("credential %s: %w", credentialID, model.ErrNotFound)
	}
	return cred, nil
}

func copyIdentity(identity *model.Identity) model.Identity {
	out := *identity
	out.Credentials = make(map[string]model.Credential, len(identity.Credentials))
	for id, cred := range identity.Credentials {
		out.Credentials[id] = cred
	}
	return out
}
