package model

import "time"

// VerificationStatus enumerates the integrity states of a record contract.
type VerificationStatus string

const (
	// VerificationPending is the initial state of every record contract.
	VerificationPending VerificationStatus = "pending"
	// VerificationVerified means the last integrity check matched the stored hash.
	VerificationVerified VerificationStatus = "verified"
	// VerificationRejected means the last integrity check did not match.
	VerificationRejected VerificationStatus = "rejected"
)

// AccessControl holds the access rules of a medical record contract.
type AccessControl struct {
	OwnerAddress     string
	AllowedProviders map[string]bool
	IsPublic         bool
}

// MedicalRecordContract simulates on-chain contract state for one medical
// record. Only the hash of the record data is kept; the data itself stays with
// the caller (or in the off-ledger archive).
type MedicalRecordContract struct {
	ID                 string
	OwnerID            string
	RecordType         string
	Title              string
	DataHash           string
	Access             AccessControl
	VerificationStatus VerificationStatus
	CreatedAt          time.Time
}
