package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/proof"
	"github.com/caremesh/medledger/internal/registry"
)

//go:embed consent_schema.json
var consentSchemaJSON string

// anchorMode is the explicit two-variant strategy for storing state: against
// the live ledger or against local simulation. The choice is made per call by
// a connectivity check, never by catching errors mid-write.
type anchorMode string

const (
	anchorLedger    anchorMode = "ledger"
	anchorSimulated anchorMode = "simulated"
)

// Simulated anchoring injects an artificial delay so callers observe the same
// latency characteristics in both modes.
const (
	simDelayFloor = 100 * time.Millisecond
	simDelaySpan  = 500 * time.Millisecond
)

// Consent implements consent and record anchoring. Every operation attempts
// the ledger path first and falls back to simulation transparently; callers
// can only tell the two apart through the connector status.
type Consent struct {
	registry   *registry.Registry
	ledger     model.Ledger
	identities *Identities
	keys       *keystore.Manager
	archive    model.Archive
	logger     *logger.Logger
	schema     *gojsonschema.Schema

	now        func() time.Time
	sleep      func(time.Duration)
	delayFloor time.Duration
	delaySpan  time.Duration

	mu               sync.RWMutex
	consentDocs      map[string]map[string]any
	consentContracts map[string]string
	recordContracts  map[string]string
}

// NewConsent creates the consent service. archive may be nil to disable
// off-ledger payload archiving.
func NewConsent(
	reg *registry.Registry,
	ledger model.Ledger,
	identities *Identities,
	keys *keystore.Manager,
	archive model.Archive,
	l *logger.Logger,
) *Consent {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(consentSchemaJSON))
	if err != nil {
		// The schema is an embedded asset; failing to compile it is a
		// programmer error, not a runtime condition.
		panic(fmt.Sprintf("failed to compile consent schema: %v", err))
	}

	return &Consent{
		registry:         reg,
		ledger:           ledger,
		identities:       identities,
		keys:             keys,
		archive:          archive,
		logger:           l,
		schema:           schema,
		now:              time.Now,
		sleep:            time.Sleep,
		delayFloor:       simDelayFloor,
		delaySpan:        simDelaySpan,
		consentDocs:      make(map[string]map[string]any),
		consentContracts: make(map[string]string),
		recordContracts:  make(map[string]string),
	}
}

// StoreConsent validates and anchors a consent document, creating a consent
// contract and caching the document under its hash. It returns the document
// hash in both the ledger and the simulated path.
func (s *Consent) StoreConsent(ctx context.Context, consent map[string]any) (string, error) {
	if err := s.validateDocument(consent); err != nil {
		return "", err
	}

	params := model.CreateConsentParams{
		PatientID:    stringField(consent, "patientId"),
		ProviderID:   stringField(consent, "providerId"),
		DataTypes:    stringSliceField(consent, "dataTypes"),
		DurationDays: intField(consent, "durationDays"),
		Conditions:   stringSliceField(consent, "conditions"),
	}

	return s.anchorConsent(ctx, consent, params)
}

// UpdateConsent anchors a consent update. A status of "revoked" revokes the
// referenced contract; revocation failures are caller errors and surface.
func (s *Consent) UpdateConsent(ctx context.Context, update map[string]any) (string, error) {
	patientID := stringField(update, "patientId")
	if patientID == "" {
		return "", fmt.Errorf("consent update missing patientId: %w", model.ErrInvalidDocument)
	}

	hash, err := proof.HashData(update)
	if err != nil {
		return "", fmt.Errorf("failed to hash consent update: %w", err)
	}

	if stringField(update, "status") == string(model.ConsentRevoked) {
		contractID := s.resolveContractID(update)
		if contractID == "" {
			return "", fmt.Errorf("consent update references no contract: %w", model.ErrNotFound)
		}
		if err := s.registry.RevokeConsent(contractID, patientID); err != nil {
			return "", err
		}
	}

	mode := s.anchorMode(ctx)
	if mode == anchorSimulated {
		s.simulateLatency()
	}

	s.mu.Lock()
	s.consentDocs[hash] = update
	s.mu.Unlock()
	s.archivePayload(ctx, hash, update)

	s.logger.Info("consent update anchored", "mode", string(mode), "hash", hash)
	return hash, nil
}

// GrantSelectiveAccess builds a consent payload signed with the user's wallet
// key and anchors it. The user must already have an identity.
func (s *Consent) GrantSelectiveAccess(ctx context.Context, userID, providerID string, dataTypes []string, durationDays int) (string, error) {
	identity, err := s.identities.Get(userID)
	if err != nil {
		return "", err
	}

	now := s.now()
	expiry := now.AddDate(0, 0, durationDays)
	payload := struct {
		UserID     string   `json:"userId"`
		ProviderID string   `json:"providerId"`
		DataTypes  []string `json:"dataTypes"`
		Timestamp  int64    `json:"timestamp"`
		Expiry     int64    `json:"expiry"`
	}{userID, providerID, dataTypes, now.Unix(), expiry.Unix()}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode consent payload: %w", err)
	}

	sig, err := s.keys.Sign(identity.WalletAddress, raw)
	if err != nil {
		return "", fmt.Errorf("failed to sign consent payload: %w", err)
	}

	doc := map[string]any{
		"patientId":    userID,
		"providerId":   providerID,
		"dataTypes":    dataTypes,
		"durationDays": durationDays,
		"timestamp":    payload.Timestamp,
		"expiry":       payload.Expiry,
	}
	params := model.CreateConsentParams{
		PatientID:     userID,
		ProviderID:    providerID,
		DataTypes:     dataTypes,
		DurationDays:  durationDays,
		SignerAddress: identity.WalletAddress,
		SignedPayload: raw,
		Signature:     sig,
	}

	return s.anchorConsent(ctx, doc, params)
}

// StoreRecord anchors a medical record document: its hash goes into a new
// record contract, the document itself only into the cache and the archive.
func (s *Consent) StoreRecord(ctx context.Context, record map[string]any) (string, error) {
	ownerID := stringField(record, "ownerId")
	if ownerID == "" {
		return "", fmt.Errorf("record missing ownerId: %w", model.ErrInvalidDocument)
	}

	recordType := stringField(record, "recordType")
	if recordType == "" {
		recordType = "general"
	}

	hash, err := proof.HashData(record)
	if err != nil {
		return "", fmt.Errorf("failed to hash record: %w", err)
	}

	mode := s.anchorMode(ctx)
	if mode == anchorSimulated {
		s.simulateLatency()
	}

	var ownerAddress string
	if identity, err := s.identities.Get(ownerID); err == nil {
		ownerAddress = identity.WalletAddress
	}

	contractID := s.registry.CreateMedicalRecordContract(
		ownerID, recordType, stringField(record, "title"), hash, ownerAddress)

	s.mu.Lock()
	s.recordContracts[hash] = contractID
	s.mu.Unlock()
	s.archivePayload(ctx, hash, record)

	s.logger.Info("record anchored",
		"mode", string(mode), "contract_id", contractID, "hash", hash)
	return hash, nil
}

// VerifyRecord recomputes the record hash and checks it against the contract
// anchored under the given hash. Unknown hashes yield false, not an error.
func (s *Consent) VerifyRecord(ctx context.Context, hash string, record map[string]any) bool {
	s.mu.RLock()
	contractID, ok := s.recordContracts[hash]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return s.registry.VerifyRecordIntegrity(contractID, record)
}

// ConsentContractID returns the contract created for an anchored consent hash.
func (s *Consent) ConsentContractID(hash string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contractID, ok := s.consentContracts[hash]
	if !ok {
		return "", fmt.Errorf("consent hash %s: %w", hash, model.ErrNotFound)
	}
	return contractID, nil
}

func (s *Consent) anchorConsent(ctx context.Context, doc map[string]any, params model.CreateConsentParams) (string, error) {
	hash, err := proof.HashData(doc)
	if err != nil {
		return "", fmt.Errorf("failed to hash consent document: %w", err)
	}

	mode := s.anchorMode(ctx)
	if mode == anchorSimulated {
		s.simulateLatency()
	}

	contractID := s.registry.CreateConsentContract(params)

	s.mu.Lock()
	s.consentDocs[hash] = doc
	s.consentContracts[hash] = contractID
	s.mu.Unlock()
	s.archivePayload(ctx, hash, doc)

	s.logger.Info("consent anchored",
		"mode", string(mode), "contract_id", contractID, "hash", hash)
	return hash, nil
}

func (s *Consent) anchorMode(ctx context.Context) anchorMode {
	if err := s.ledger.Ensure(ctx); err != nil {
		s.logger.Warn("ledger unavailable, anchoring in simulation mode", "error", err)
		return anchorSimulated
	}
	return anchorLedger
}

func (s *Consent) simulateLatency() {
	s.sleep(s.delayFloor + time.Duration(rand.Int63n(int64(s.delaySpan))))
}

func (s *Consent) validateDocument(doc map[string]any) error {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate consent document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("consent document failed validation (%s): %w",
			strings.Join(msgs, "; "), model.ErrInvalidDocument)
	}
	return nil
}

// archivePayload pushes the raw document to the off-ledger archive. Archiving
// is best effort and never fails the anchoring call.
func (s *Consent) archivePayload(ctx context.Context, hash string, doc map[string]any) {
	if s.archive == nil {
		return
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("failed to encode payload for archive", "hash", hash, "error", err)
		return
	}
	if err := s.archive.Upload(ctx, hash, bytes.NewReader(raw)); err != nil {
		s.logger.Error("failed to archive payload", "hash", hash, "error", err)
	}
}

func (s *Consent) resolveContractID(update map[string]any) string {
	if id := stringField(update, "contractId"); id != "" {
		return id
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consentContracts[stringField(update, "consentHash")]
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func stringSliceField(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}
