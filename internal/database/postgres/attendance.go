package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Record stores an attendance mark and returns the assigned ID.
func (r *AttendanceRepository) Record(ctx context.Context, record *database.AttendanceRecord) (int64, error) {
	markedAt := record.MarkedAt
	if markedAt.IsZero() {
		markedAt = time.Now()
	}
	status := record.Status
	if status == "" {
		status = database.AttendanceStatusPresent
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (identity_id, marked_at, confidence, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, record.IdentityID, markedAt, record.Confidence, status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record attendance: %w", err)
	}

	record.ID = id
	record.MarkedAt = markedAt
	record.Status = status
	return id, nil
}

// List returns attendance records marked at or after since, newest first.
func (r *AttendanceRepository) List(ctx context.Context, since time.Time, limit int) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.identity_id, i.name, a.marked_at, a.confidence, a.status
		FROM attendance a
		JOIN identities i ON i.id = a.identity_id
		WHERE a.marked_at >= $1
		ORDER BY a.marked_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.IdentityName, &rec.MarkedAt, &rec.Confidence, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}

	return records, nil
}

// HasMarkedOn checks whether the identity already has a record on the
// calendar day containing the given time. Day boundaries use the location
// of the given time, which is the kiosk clock.
func (r *AttendanceRepository) HasMarkedOn(ctx context.Context, identityID int64, day time.Time) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE identity_id = $1 AND marked_at >= $2 AND marked_at < $3
		)
	`, identityID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}
	return exists, nil
}

// Verify interface compliance.
var _ database.AttendanceReader = (*AttendanceRepository)(nil)
var _ database.AttendanceWriter = (*AttendanceRepository)(nil)
