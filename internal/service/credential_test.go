package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caremesh/medledger/internal/keystore"
	"github.com/caremesh/medledger/internal/testutil"
)

func newCredentialFixture(t *testing.T) (*Credential, *Identities) {
	t.Helper()

	l := testutil.MakeNoopLogger()
	keys := keystore.New(l)
	identities := NewIdentities(keys)
	return NewCredential(identities, keys, l), identities
}

func TestCredential_CreateAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, identities := newCredentialFixture(t)

	claims := map[string]any{"name": "Dr. Chen", "license": "MD-44812"}

	credID, err := svc.CreateVerifiableCredential(ctx, "provider-2", "MedicalLicense", claims)
	require.NoError(t, err)
	assert.Regexp(t, "^vc_", credID)

	identity, err := identities.Get("provider-2")
	require.NoError(t, err, "issuing must create the identity lazily")
	assert.NotEmpty(t, identity.WalletAddress)

	assert.True(t, svc.VerifyCredential(ctx, credID, "provider-2"))
}

func TestCredential_Verify_WrongUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCredentialFixture(t)

	credID, err := svc.CreateVerifiableCredential(ctx, "provider-2", "MedicalLicense", map[string]any{"license": "MD-44812"})
	require.NoError(t, err)

	assert.False(t, svc.VerifyCredential(ctx, credID, "provider-3"))
}

func TestCredential_Verify_Unknown(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCredentialFixture(t)

	assert.False(t, svc.VerifyCredential(ctx, "vc_missing", "provider-2"))
}

func TestCredential_Verify_Expired(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCredentialFixture(t)

	credID, err := svc.CreateVerifiableCredential(ctx, "provider-2", "MedicalLicense", map[string]any{"license": "MD-44812"})
	require.NoError(t, err)
	require.True(t, svc.VerifyCredential(ctx, credID, "provider-2"))

	svc.now = func() time.Time { return time.Now().Add(credentialTTL + time.Hour) }
	assert.False(t, svc.VerifyCredential(ctx, credID, "provider-2"))
}

func TestCredential_Verify_TamperedClaims(t *testing.T) {
	ctx := context.Background()
	svc, identities := newCredentialFixture(t)

	credID, err := svc.CreateVerifiableCredential(ctx, "provider-2", "MedicalLicense", map[string]any{"license": "MD-44812"})
	require.NoError(t, err)

	cred, err := identities.Credential("provider-2", credID)
	require.NoError(t, err)
	cred.Claims = map[string]any{"license": "MD-99999"}
	require.NoError(t, identities.AddCredential("provider-2", cred))

	assert.False(t, svc.VerifyCredential(ctx, credID, "provider-2"),
		"claims no longer matching the signed hash must fail verification")
}
