package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/testutil"
)

func newAccessFixture(t *testing.T) (*Access, *consentFixture) {
	t.Helper()

	f := newConsentFixture(t, connectedLedger(), nil)
	access := NewAccess(f.registry, f.keys, testutil.MakeNoopLogger())
	return access, f
}

func TestAccess_VerifyProviderAccess_Lifecycle(t *testing.T) {
	ctx := context.Background()
	access, f := newAccessFixture(t)

	hash, err := f.svc.StoreConsent(ctx, map[string]any{
		"patientId":    "patient-1",
		"providerId":   "provider-2",
		"dataTypes":    []string{"lab_results"},
		"durationDays": 30,
	})
	require.NoError(t, err)

	assert.True(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))

	t.Run("scoped to the granted data type", func(t *testing.T) {
		assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "imaging"))
	})

	t.Run("scoped to the granted provider", func(t *testing.T) {
		assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-3", "lab_results"))
	})

	t.Run("denied after expiry", func(t *testing.T) {
		access.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }
		assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))
		access.now = time.Now
	})

	t.Run("denied after revocation", func(t *testing.T) {
		contractID, err := f.svc.ConsentContractID(hash)
		require.NoError(t, err)
		require.NoError(t, f.registry.RevokeConsent(contractID, "patient-1"))

		assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))
	})
}

func TestAccess_VerifyProviderAccess_AllDataTypes(t *testing.T) {
	ctx := context.Background()
	access, f := newAccessFixture(t)

	_, err := f.svc.StoreConsent(ctx, map[string]any{
		"patientId":  "patient-1",
		"providerId": "provider-2",
		"dataTypes":  []string{"all"},
	})
	require.NoError(t, err)

	assert.True(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))
	assert.True(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "imaging"))
}

func TestAccess_VerifyProviderAccess_DefaultDuration(t *testing.T) {
	ctx := context.Background()
	access, f := newAccessFixture(t)

	_, err := f.svc.StoreConsent(ctx, map[string]any{
		"patientId":  "patient-1",
		"providerId": "provider-2",
		"dataTypes":  []string{"lab_results"},
	})
	require.NoError(t, err)

	access.now = func() time.Time { return time.Now().AddDate(0, 0, 29) }
	assert.True(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))

	access.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }
	assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))
}

func TestAccess_VerifyProviderAccess_SignedConsent(t *testing.T) {
	ctx := context.Background()
	access, f := newAccessFixture(t)

	f.identities.Ensure("patient-1")
	hash, err := f.svc.GrantSelectiveAccess(ctx, "patient-1", "provider-2", []string{"lab_results"}, 30)
	require.NoError(t, err)

	assert.True(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))

	t.Run("broken signature denies access", func(t *testing.T) {
		contractID, err := f.svc.ConsentContractID(hash)
		require.NoError(t, err)
		contract, err := f.registry.Consent(contractID)
		require.NoError(t, err)
		require.NotEmpty(t, contract.Signature)

		f.registry.CreateConsentContract(model.CreateConsentParams{
			PatientID:     contract.PatientID,
			ProviderID:    contract.ProviderID,
			DataTypes:     contract.DataTypes,
			DurationDays:  30,
			SignerAddress: contract.SignerAddress,
			SignedPayload: contract.SignedPayload,
			Signature:     []byte("forged"),
		})
		require.NoError(t, f.registry.RevokeConsent(contractID, "patient-1"))

		assert.False(t, access.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))
	})
}
