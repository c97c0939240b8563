package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/medledger/internal/testutil"
)

func TestCore_EndToEnd(t *testing.T) {
	ctx := context.Background()

	f := newConsentFixture(t, disconnectedLedger(), nil)
	credential := NewCredential(f.identities, f.keys, testutil.MakeNoopLogger())
	access := NewAccess(f.registry, f.keys, testutil.MakeNoopLogger())
	core := NewCore(f.svc, credential, access, f.keys, disconnectedLedger())

	address := core.CreateWallet(ctx)
	assert.Regexp(t, "^0x[0-9a-f]{40}$", address)

	status := core.GetBlockchainInfo(ctx)
	assert.True(t, status.SimulationMode)
	assert.Equal(t, "medledger-local", status.Chain)

	hash, err := core.StoreConsent(ctx, map[string]any{
		"patientId":  "patient-1",
		"providerId": "provider-2",
		"dataTypes":  []string{"lab_results"},
	})
	require.NoError(t, err)
	assert.True(t, core.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))

	_, err = core.UpdateConsent(ctx, map[string]any{
		"patientId":   "patient-1",
		"consentHash": hash,
		"status":      "revoked",
	})
	require.NoError(t, err)
	assert.False(t, core.VerifyProviderAccess(ctx, "patient-1", "provider-2", "lab_results"))

	credID, err := core.CreateVerifiableCredential(ctx, "provider-2", "MedicalLicense", map[string]any{"license": "MD-44812"})
	require.NoError(t, err)
	assert.True(t, core.VerifyCredential(ctx, credID, "provider-2"))
}
