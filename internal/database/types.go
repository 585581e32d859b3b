package database

import (
	"time"
)

// StoredIdentity represents an enrolled person and their face embedding.
type StoredIdentity struct {
	ID             int64
	Name           string
	NormalizedName string // lowercase, no diacritics, for lookup and duplicate detection
	RollNumber     string // external identifier, unique per deployment
	ClassName      string
	Embedding      []float32
	Model          string
	Dim            int
	CreatedAt      time.Time
}

// Attendance record statuses.
const (
	AttendanceStatusPresent = "present"
)

// AttendanceRecord represents one attendance mark for an identity.
type AttendanceRecord struct {
	ID           int64
	IdentityID   int64
	IdentityName string // denormalized for listing without a join
	MarkedAt     time.Time
	Confidence   float64
	Status       string
}
