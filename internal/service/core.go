package service

import (
	"context"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/model"
)

// Core is the call boundary consumed by the surrounding web/API layer. It
// aggregates the consent, credential and access services behind the plain
// function surface the rest of the system sees; nothing here leaks whether a
// call was ledger-backed or simulated except the explicit status query.
type Core struct {
	consent    *Consent
	credential *Credential
	access     *Access
	keys       *keystore.Manager
	ledger     model.Ledger
}

// NewCore wires the external surface.
func NewCore(consent *Consent, credential *Credential, access *Access, keys *keystore.Manager, ledger model.Ledger) *Core {
	return &Core{
		consent:    consent,
		credential: credential,
		access:     access,
		keys:       keys,
		ledger:     ledger,
	}
}

// CreateWallet generates a new wallet and returns its address.
func (c *Core) CreateWallet(ctx context.Context) string {
	return c.keys.CreateWallet()
}

// StoreRecord anchors a medical record document and returns its hash.
func (c *Core) StoreRecord(ctx context.Context, record map[string]any) (string, error) {
	return c.consent.StoreRecord(ctx, record)
}

// VerifyRecord checks record data against the contract anchored under hash.
func (c *Core) VerifyRecord(ctx context.Context, hash string, record map[string]any) bool {
	return c.consent.VerifyRecord(ctx, hash, record)
}

// StoreConsent anchors a consent document and returns its hash.
func (c *Core) StoreConsent(ctx context.Context, consent map[string]any) (string, error) {
	return c.consent.StoreConsent(ctx, consent)
}

// UpdateConsent anchors a consent update and returns its hash.
func (c *Core) UpdateConsent(ctx context.Context, update map[string]any) (string, error) {
	return c.consent.UpdateConsent(ctx, update)
}

// CreateVerifiableCredential issues a credential and returns its ID.
func (c *Core) CreateVerifiableCredential(ctx context.Context, userID, credType string, claims map[string]any) (string, error) {
	return c.credential.CreateVerifiableCredential(ctx, userID, credType, claims)
}

// VerifyCredential reports whether the stored credential is valid for the user.
func (c *Core) VerifyCredential(ctx context.Context, credentialID, userID string) bool {
	return c.credential.VerifyCredential(ctx, credentialID, userID)
}

// GrantSelectiveAccess anchors a signed consent grant for the provider.
func (c *Core) GrantSelectiveAccess(ctx context.Context, userID, providerID string, dataTypes []string, durationDays int) (string, error) {
	return c.consent.GrantSelectiveAccess(ctx, userID, providerID, dataTypes, durationDays)
}

// VerifyProviderAccess reports whether the provider may access the patient's
// data type right now.
func (c *Core) VerifyProviderAccess(ctx context.Context, patientID, providerID, dataType string) bool {
	return c.access.VerifyProviderAccess(ctx, patientID, providerID, dataType)
}

// GetBlockchainInfo returns the connector status snapshot, including whether
// anchoring currently runs in simulation mode.
func (c *Core) GetBlockchainInfo(ctx context.Context) model.LedgerStatus {
	return c.ledger.Status()
}
