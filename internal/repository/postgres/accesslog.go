package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/caremesh/medledger/internal/model"
)

var _ model.AuditStore = (*AccessLogRepository)(nil)

// AccessLogRepository is the durable mirror of the registry's in-memory audit
// trail. Entries are append-only; there is no update or delete path.
type AccessLogRepository struct {
	db *Connection
}

func NewAccessLogRepository(db *Connection) *AccessLogRepository {
	return &AccessLogRepository{
		db: db,
	}
}

func (r *AccessLogRepository) Append(ctx context.Context, entry model.AccessLogEntry) error {
	const query = `
		INSERT INTO access_log (access_id, record_id, accessor_id, access_type, authorized, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		entry.AccessID, entry.RecordID, entry.AccessorID,
		string(entry.AccessType), entry.Authorized, entry.Timestamp,
	)
	return err
}

func (r *AccessLogRepository) GetByID(ctx context.Context, id uuid.UUID) (model.AccessLogEntry, error) {
	const query = `
		SELECT access_id, record_id, accessor_id, access_type, authorized, accessed_at
		FROM access_log
		WHERE access_id = $1`

	var entry model.AccessLogEntry
	err := r.db.QueryRow(ctx, query, id).Scan(
		&entry.AccessID, &entry.RecordID, &entry.AccessorID,
		&entry.AccessType, &entry.Authorized, &entry.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AccessLogEntry{}, model.ErrNotFound
		}
		return model.AccessLogEntry{}, err
	}

	return entry, nil
}

func (r *AccessLogRepository) ListByRecord(ctx context.Context, recordID string) ([]model.AccessLogEntry, error) {
	const query = `
		SELECT access_id, record_id, accessor_id, access_type, authorized, accessed_at
		FROM access_log
		WHERE record_id = $1
		ORDER BY accessed_at ASC`

	rows, err := r.db.Query(ctx, query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AccessLogEntry
	for rows.Next() {
		var entry model.AccessLogEntry
		err := rows.Scan(
			&entry.AccessID, &entry.RecordID, &entry.AccessorID,
			&entry.AccessType, &entry.Authorized, &entry.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
