package model

import "time"

// Credential is a signed claim bundle about a subject, verifiable against the
// issuer wallet's public key without contacting the issuer.
type Credential struct {
	ID             string
	Type           string
	Issuer         string
	Subject        string
	IssuanceDate   time.Time
	ExpirationDate time.Time
	Claims         map[string]any
	Proof          CredentialProof
}

// CredentialProof carries the verification material for a credential. The
// proof value is a compact EdDSA JWT over the claims hash, signed with the
// subject wallet's private key.
type CredentialProof struct {
	Type               string
	VerificationMethod string
	ProofValue         string
	Created            time.Time
}
