package service

import (
	"context"
	"time"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/registry"
)

// Access answers provider access queries by scanning the consent contracts.
// No caching: with the expected small number of contracts, correctness wins
// over throughput.
type Access struct {
	registry *registry.Registry
	keys     *keystore.Manager
	logger   *logger.Logger
	now      func() time.Time
}

// NewAccess creates the access verifier.
func NewAccess(reg *registry.Registry, keys *keystore.Manager, l *logger.Logger) *Access {
	return &Access{
		registry: reg,
		keys:     keys,
		logger:   l,
		now:      time.Now,
	}
}

// VerifyProviderAccess reports whether the provider holds a granted,
// unexpired consent from the patient covering the data type. Signed consents
// must additionally verify against the signer wallet's public key. Any
// failure path yields false, never an error.
func (s *Access) VerifyProviderAccess(ctx context.Context, patientID, providerID, dataType string) bool {
	now := s.now()

	for _, consent := range s.registry.Consents() {
		if consent.PatientID != patientID || consent.ProviderID != providerID {
			continue
		}
		if consent.Status != model.ConsentGranted {
			continue
		}
		if consent.Expired(now) {
			continue
		}
		if !consent.Covers(dataType) {
			continue
		}
		if !s.signatureValid(consent) {
			continue
		}
		return true
	}
	return false
}

// signatureValid checks the wallet signature of selectively granted consents.
// Consents anchored without a signer are plain document anchors and carry no
// signature to check.
func (s *Access) signatureValid(consent model.ConsentContract) bool {
	if consent.SignerAddress == "" {
		return true
	}

	pub, err := s.keys.PublicKey(consent.SignerAddress)
	if err != nil {
		s.logger.Warn("consent signer wallet not found",
			"contract_id", consent.ID, "signer", consent.SignerAddress)
		return false
	}
	return keystore.VerifySignature(pub, consent.SignedPayload, consent.Signature)
}
