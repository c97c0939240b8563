// Package proof implements hash-commitment integrity proofs. The "zero
// knowledge" proof here is a simulation: it commits to a single property and
// the whole document via sha256 and discloses sibling hashes in place of a
// Merkle path. It offers integrity binding only, not witness-extraction
// resistance, and must not be marketed as a sound ZK scheme.
package proof

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/caremesh/medledger/internal/model"
)

// HashData computes the canonical sha256 hash of any JSON-encodable value.
// encoding/json sorts map keys, so equal documents hash equally regardless of
// insertion order. This is the data hash used module-wide.
func HashData(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode data for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Service generates and verifies property disclosure proofs.
type Service struct {
	now func() time.Time
}

// NewService creates a proof service.
func NewService() *Service {
	return &Service{now: time.Now}
}

// GenerateProof builds a disclosure proof for one top-level property of the
// document: the property commitment, the document commitment, sibling hashes
// of every other property, a range stub when the property is numeric, and the
// final proof value binding them to the generation time.
func (s *Service) GenerateProof(data map[string]any, property string) (model.ZKProof, error) {
	value, ok := data[property]
	if !ok {
		return model.ZKProof{}, fmt.Errorf("property %q: %w", property, model.ErrNotFound)
	}

	propertyHash, err := HashData(value)
	if err != nil {
		return model.ZKProof{}, err
	}

	dataHash, err := HashData(data)
	if err != nil {
		return model.ZKProof{}, err
	}

	siblings, err := siblingHashes(data, property)
	if err != nil {
		return model.ZKProof{}, err
	}

	p := model.ZKProof{
		Property:      property,
		PropertyHash:  propertyHash,
		DataHash:      dataHash,
		SiblingHashes: siblings,
		Timestamp:     s.now(),
	}

	if num, isNumeric := asFloat(value); isNumeric {
		rp, err := rangeStub(num)
		if err != nil {
			return model.ZKProof{}, err
		}
		p.RangeProof = rp
	}

	p.ProofValue = proofValue(propertyHash, dataHash, p.Timestamp)

	return p, nil
}

// VerifyProof reports whether the proof commits to the expected document hash
// and its proof value is internally consistent. Any mismatch yields false,
// never an error.
func (s *Service) VerifyProof(p model.ZKProof, expectedDataHash string) bool {
	if p.DataHash != expectedDataHash {
		return false
	}
	return proofValue(p.PropertyHash, p.DataHash, p.Timestamp) == p.ProofValue
}

func proofValue(propertyHash, dataHash string, ts time.Time) string {
	sum := sha256.Sum256([]byte(propertyHash + dataHash + strconv.FormatInt(ts.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}

func siblingHashes(data map[string]any, property string) ([]string, error) {
	keys := make([]string, 0, len(data)-1)
	for k := range data {
		if k != property {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		h, err := HashData(map[string]any{k: data[k]})
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

func rangeStub(v float64) (*model.RangeProof, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read range nonce: %w", err)
	}

	sum := sha256.Sum256([]byte(strconv.FormatFloat(v, 'g', -1, 64) + hex.EncodeToString(nonce)))

	return &model.RangeProof{
		Min:        0,
		Max:        v * 2,
		Commitment: hex.EncodeToString(sum[:]),
	}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
