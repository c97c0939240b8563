package model

import (
	"slices"
	"time"
)

// ConsentStatus enumerates the stored states of a consent contract. Expiry is
// a derived read-time predicate, never a stored status.
type ConsentStatus string

const (
	// ConsentGranted is the initial state of every consent contract.
	ConsentGranted ConsentStatus = "granted"
	// ConsentRevoked is terminal; a contract never transitions back to granted.
	ConsentRevoked ConsentStatus = "revoked"
)

// DataTypeAll grants access to every data type of the patient.
const DataTypeAll = "all"

// AccessPeriod bounds the validity window of a consent contract.
type AccessPeriod struct {
	Start time.Time
	End   time.Time
}

// ConsentContract is a time-bounded, revocable grant of a provider's access to
// specific patient data types. Selectively granted consents additionally carry
// the signed payload and signature produced by the patient's wallet.
type ConsentContract struct {
	ID            string
	PatientID     string
	ProviderID    string
	DataTypes     []string
	AccessPeriod  AccessPeriod
	Status        ConsentStatus
	Revocable     bool
	Conditions    []string
	SignerAddress string
	SignedPayload []byte
	Signature     []byte
	CreatedAt     time.Time
}

// Covers reports whether the consent includes the given data type.
func (c ConsentContract) Covers(dataType string) bool {
	return slices.Contains(c.DataTypes, dataType) || slices.Contains(c.DataTypes, DataTypeAll)
}

// Expired reports whether the access period has ended at the given time.
func (c ConsentContract) Expired(now time.Time) bool {
	return now.After(c.AccessPeriod.End)
}

// CreateConsentParams contains parameters to create a consent contract.
type CreateConsentParams struct {
	PatientID     string
	ProviderID    string
	DataTypes     []string
	DurationDays  int
	Conditions    []string
	SignerAddress string
	SignedPayload []byte
	Signature     []byte
}
