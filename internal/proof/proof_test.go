package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/medledger/internal/model"
)

func patientData() map[string]any {
	return map[string]any{
		"name":      "Alice",
		"age":       34,
		"bloodType": "0+",
		"allergies": []string{"penicillin"},
	}
}

func TestHashData_Deterministic(t *testing.T) {
	a, err := HashData(map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := HashData(map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestService_GenerateAndVerify(t *testing.T) {
	s := NewService()
	data := patientData()

	p, err := s.GenerateProof(data, "age")
	require.NoError(t, err)

	dataHash, err := HashData(data)
	require.NoError(t, err)

	assert.True(t, s.VerifyProof(p, dataHash))
	assert.Equal(t, dataHash, p.DataHash)
	assert.Len(t, p.SiblingHashes, len(data)-1)
}

func TestService_VerifyFailsOnMutation(t *testing.T) {
	s := NewService()
	data := patientData()

	p, err := s.GenerateProof(data, "age")
	require.NoError(t, err)

	data["bloodType"] = "AB-"
	mutatedHash, err := HashData(data)
	require.NoError(t, err)

	assert.False(t, s.VerifyProof(p, mutatedHash))
}

func TestService_VerifyFailsOnTamperedProof(t *testing.T) {
	s := NewService()
	data := patientData()

	p, err := s.GenerateProof(data, "age")
	require.NoError(t, err)

	dataHash, err := HashData(data)
	require.NoError(t, err)

	tampered := p
	tampered.PropertyHash = tampered.DataHash
	assert.False(t, s.VerifyProof(tampered, dataHash))

	tampered = p
	tampered.Timestamp = tampered.Timestamp.Add(1)
	assert.False(t, s.VerifyProof(tampered, dataHash))
}

func TestService_RangeStubForNumericProperty(t *testing.T) {
	s := NewService()

	p, err := s.GenerateProof(patientData(), "age")
	require.NoError(t, err)
	require.NotNil(t, p.RangeProof)
	assert.Equal(t, float64(0), p.RangeProof.Min)
	assert.Equal(t, float64(68), p.RangeProof.Max)
	assert.NotEmpty(t, p.RangeProof.Commitment)

	p, err = s.GenerateProof(patientData(), "name")
	require.NoError(t, err)
	assert.Nil(t, p.RangeProof)
}

func TestService_UnknownProperty(t *testing.T) {
	s := NewService()

	_, err := s.GenerateProof(patientData(), "ssn")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
