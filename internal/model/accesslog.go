package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccessType enumerates the kinds of record access that get audited.
type AccessType string

const (
	AccessRead   AccessType = "read"
	AccessWrite  AccessType = "write"
	AccessUpdate AccessType = "update"
	AccessDelete AccessType = "delete"
)

// AccessLogEntry is one line of the append-only audit trail kept per record
// contract. Every verification attempt produces an entry, authorized or not.
type AccessLogEntry struct {
	AccessID   uuid.UUID
	RecordID   string
	AccessorID string
	Timestamp  time.Time
	AccessType AccessType
	Authorized bool
}

// AuditStore defines the durable sink for access log entries. The in-memory
// log in the registry is authoritative; a configured AuditStore mirrors it.
type AuditStore interface {
	Append(ctx context.Context, entry AccessLogEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (AccessLogEntry, error)
	ListByRecord(ctx context.Context, recordID string) ([]AccessLogEntry, error)
}
