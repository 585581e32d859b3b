package database

import (
	"context"
	"time"
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// Get retrieves an identity by ID, returns nil if not found
	Get(ctx context.Context, id int64) (*StoredIdentity, error)
	// GetByRollNumber retrieves an identity by roll number, returns nil if not found
	GetByRollNumber(ctx context.Context, rollNumber string) (*StoredIdentity, error)
	// List returns all identities ordered by name
	List(ctx context.Context) ([]StoredIdentity, error)
	// Count returns the total number of enrolled identities
	Count(ctx context.Context) (int, error)
	// FindNearest finds identities with similar embeddings using cosine distance
	// and returns them with their distances, nearest first
	FindNearest(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]StoredIdentity, []float64, error)
}

// IdentityWriter provides write access to enrolled identities
type IdentityWriter interface {
	IdentityReader

	// Save stores an identity, replacing an existing one with the same roll
	// number, and returns the assigned ID
	Save(ctx context.Context, identity *StoredIdentity) (int64, error)

	// Delete removes an identity
	Delete(ctx context.Context, id int64) error
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// List returns attendance records marked at or after since, newest first
	List(ctx context.Context, since time.Time, limit int) ([]AttendanceRecord, error)
	// HasMarkedOn checks whether the identity already has a record on the
	// calendar day containing the given time
	HasMarkedOn(ctx context.Context, identityID int64, day time.Time) (bool, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// Record stores an attendance mark and returns the assigned ID
	Record(ctx context.Context, record *AttendanceRecord) (int64, error)
}
