package model

import "errors"

var (
	// ErrNotFound is returned when a contract, wallet or credential does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when a caller attempts an operation on a
	// contract it does not own.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotRevocable is returned when revocation is attempted on a consent
	// contract created with revocable=false.
	ErrNotRevocable = errors.New("consent contract is not revocable")
	// ErrNoIdentity is returned when an operation requires an identity that has
	// not been created yet.
	ErrNoIdentity = errors.New("no identity registered for user")
	// ErrInvalidDocument is returned when a consent or record document fails
	// schema validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrNoEndpoints is returned when the ledger connector is configured
	// without endpoints.
	ErrNoEndpoints = errors.New("no ledger endpoints configured")
	// ErrDisconnected is returned when every configured ledger endpoint failed
	// and the connector gave up.
	ErrDisconnected = errors.New("ledger disconnected")
)
