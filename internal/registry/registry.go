// Package registry keeps the in-memory representation of the on-chain
// contract state: medical record contracts, consent contracts and the
// append-only access log. It is the single source of truth for access
// decisions; the ledger only anchors hashes of what lives here.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/proof"
)

const (
	recordPrefix  = "mrc"
	consentPrefix = "cns"

	defaultConsentDays = 30
)

// Registry holds contract state behind a single lock. Writes are keyed by
// generated contract IDs, so per-key ordering is last-write-wins.
type Registry struct {
	audit  model.AuditStore
	logger *logger.Logger
	now    func() time.Time
	seq    atomic.Uint64

	mu         sync.RWMutex
	records    map[string]*model.MedicalRecordContract
	consents   map[string]*model.ConsentContract
	accessLogs map[string][]model.AccessLogEntry
}

// New creates a registry. audit may be nil; the in-memory access log is kept
// regardless and a configured sink only mirrors it durably.
func New(audit model.AuditStore, l *logger.Logger) *Registry {
	return &Registry{
		audit:      audit,
		logger:     l,
		now:        time.Now,
		records:    make(map[string]*model.MedicalRecordContract),
		consents:   make(map[string]*model.ConsentContract),
		accessLogs: make(map[string][]model.AccessLogEntry),
	}
}

// CreateMedicalRecordContract stores a new record contract in pending
// verification state and returns its ID.
func (r *Registry) CreateMedicalRecordContract(ownerID, recordType, title, dataHash, ownerAddress string) string {
	now := r.now()
	contract := &model.MedicalRecordContract{
		ID:         r.contractID(recordPrefix, ownerID, recordType, now),
		OwnerID:    ownerID,
		RecordType: recordType,
		Title:      title,
		DataHash:   dataHash,
		Access: model.AccessControl{
			OwnerAddress:     ownerAddress,
			AllowedProviders: make(map[string]bool),
		},
		VerificationStatus: model.VerificationPending,
		CreatedAt:          now,
	}

	r.mu.Lock()
	r.records[contract.ID] = contract
	r.mu.Unlock()

	return contract.ID
}

// CreateConsentContract stores a granted, revocable consent contract whose
// access period starts now and ends after the requested duration.
func (r *Registry) CreateConsentContract(params model.CreateConsentParams) string {
	days := params.DurationDays
	if days <= 0 {
		days = defaultConsentDays
	}

	now := r.now()
	contract := &model.ConsentContract{
		ID:         r.contractID(consentPrefix, params.PatientID, params.ProviderID, now),
		PatientID:  params.PatientID,
		ProviderID: params.ProviderID,
		DataTypes:  append([]string(nil), params.DataTypes...),
		AccessPeriod: model.AccessPeriod{
			Start: now,
			End:   now.AddDate(0, 0, days),
		},
		Status:        model.ConsentGranted,
		Revocable:     true,
		Conditions:    append([]string(nil), params.Conditions...),
		SignerAddress: params.SignerAddress,
		SignedPayload: params.SignedPayload,
		Signature:     params.Signature,
		CreatedAt:     now,
	}

	r.mu.Lock()
	r.consents[contract.ID] = contract
	r.mu.Unlock()

	return contract.ID
}

// RevokeConsent transitions a consent contract to revoked. Only the owning
// patient may revoke, and only revocable contracts; revocation is terminal.
func (r *Registry) RevokeConsent(contractID, patientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contract, ok := r.consents[contractID]
	if !ok {
		return fmt.Errorf("consent contract %s: %w", contractID, model.ErrNotFound)
	}
	if contract.PatientID != patientID {
		return fmt.Errorf("consent contract %s owned by another patient: %w", contractID, model.ErrNotAuthorized)
	}
	if !contract.Revocable {
		return fmt.Errorf("consent contract %s: %w", contractID, model.ErrNotRevocable)
	}

	contract.Status = model.ConsentRevoked
	return nil
}

// VerifyAccess decides whether the accessor may touch the record. The owner
// is always authorized; anyone else needs a granted, unexpired consent from
// the owner covering the record's data type. Every call appends an access log
// entry, authorized or not.
func (r *Registry) VerifyAccess(ctx context.Context, recordID, accessorID string, accessType model.AccessType) bool {
	r.mu.RLock()
	record, ok := r.records[recordID]
	var authorized bool
	if ok {
		authorized = r.isAuthorizedLocked(record, accessorID)
	}
	r.mu.RUnlock()

	r.appendAccessLog(ctx, model.AccessLogEntry{
		AccessID:   uuid.New(),
		RecordID:   recordID,
		AccessorID: accessorID,
		Timestamp:  r.now(),
		AccessType: accessType,
		Authorized: authorized,
	})

	return authorized
}

func (r *Registry) isAuthorizedLocked(record *model.MedicalRecordContract, accessorID string) bool {
	if accessorID == record.OwnerID {
		return true
	}
	if record.Access.IsPublic || record.Access.AllowedProviders[accessorID] {
		return true
	}

	now := r.now()
	for _, consent := range r.consents {
		if consent.PatientID != record.OwnerID || consent.ProviderID != accessorID {
			continue
		}
		if consent.Status != model.ConsentGranted || consent.Expired(now) {
			continue
		}
		if consent.Covers(record.RecordType) {
			return true
		}
	}
	return false
}

// VerifyRecordIntegrity recomputes the hash of the record data and compares
// it to the anchored hash, updating the contract's verification status as a
// side effect. Unknown contracts yield false.
func (r *Registry) VerifyRecordIntegrity(recordID string, recordData any) bool {
	hash, err := proof.HashData(recordData)
	if err != nil {
		r.logger.Error("failed to hash record data for integrity check",
			"record_id", recordID, "error", err)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[recordID]
	if !ok {
		return false
	}

	if record.DataHash == hash {
		record.VerificationStatus = model.VerificationVerified
		return true
	}
	record.VerificationStatus = model.VerificationRejected
	return false
}

// GrantAccess adds a provider to the record's allowed list. Only the owner
// may change the list.
func (r *Registry) GrantAccess(recordID, ownerID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[recordID]
	if !ok {
		return fmt.Errorf("record contract %s: %w", recordID, model.ErrNotFound)
	}
	if record.OwnerID != ownerID {
		return fmt.Errorf("record contract %s owned by another user: %w", recordID, model.ErrNotAuthorized)
	}

	record.Access.AllowedProviders[providerID] = true
	return nil
}

// RevokeAccess removes a provider from the record's allowed list. Only the
// owner may change the list.
func (r *Registry) RevokeAccess(recordID, ownerID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[recordID]
	if !ok {
		return fmt.Errorf("record contract %s: %w", recordID, model.ErrNotFound)
	}
	if record.OwnerID != ownerID {
		return fmt.Errorf("record contract %s owned by another user: %w", recordID, model.ErrNotAuthorized)
	}

	delete(record.Access.AllowedProviders, providerID)
	return nil
}

// Record returns a copy of the stored record contract.
func (r *Registry) Record(recordID string) (model.MedicalRecordContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[recordID]
	if !ok {
		return model.MedicalRecordContract{}, fmt.Errorf("record contract %s: %w", recordID, model.ErrNotFound)
	}
	return *record, nil
}

// Consent returns a copy of the stored consent contract.
func (r *Registry) Consent(contractID string) (model.ConsentContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contract, ok := r.consents[contractID]
	if !ok {
		return model.ConsentContract{}, fmt.Errorf("consent contract %s: %w", contractID, model.ErrNotFound)
	}
	return *contract, nil
}

// Consents returns copies of all consent contracts. Access verification scans
// this snapshot; with the expected small N correctness wins over throughput.
func (r *Registry) Consents() []model.ConsentContract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ConsentContract, 0, len(r.consents))
	for _, c := range r.consents {
		out = append(out, *c)
	}
	return out
}

// AccessLog returns a copy of the in-memory audit trail of a record.
func (r *Registry) AccessLog(recordID string) []model.AccessLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.AccessLogEntry(nil), r.accessLogs[recordID]...)
}

func (r *Registry) appendAccessLog(ctx context.Context, entry model.AccessLogEntry) {
	r.mu.Lock()
	r.accessLogs[entry.RecordID] = append(r.accessLogs[entry.RecordID], entry)
	r.mu.Unlock()

	if r.audit == nil {
		return
	}
	// The durable sink is best effort; audit semantics are carried by the
	// in-memory log.
	if err := r.audit.Append(ctx, entry); err != nil {
		r.logger.Error("failed to append access log entry to durable sink",
			"record_id", entry.RecordID, "access_id", entry.AccessID, "error", err)
	}
}

// contractID derives a deterministic ID from the contract coordinates and
// creation time. The sequence number keeps IDs distinct when the clock does
// not advance between creations.
func (r *Registry) contractID(prefix, owner, kind string, now time.Time) string {
	seq := r.seq.Add(1)
	sum := sha256.Sum256([]byte(prefix + owner + kind +
		strconv.FormatInt(now.UnixNano(), 10) + strconv.FormatUint(seq, 10)))
	return prefix + "_" + hex.EncodeToString(sum[:8])
}
