package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	postgresIdentityWriter   func() IdentityWriter
	postgresAttendanceWriter func() AttendanceWriter
	postgresIdentityHNSW     HNSWRebuilder
	postgresInitialized      bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	identityWriter func() IdentityWriter,
	attendanceWriter func() AttendanceWriter,
) {
	postgresIdentityWriter = identityWriter
	postgresAttendanceWriter = attendanceWriter
	postgresInitialized = true
}

// RegisterIdentityHNSWRebuilder registers the HNSW rebuilder for the identity
// repository. This allows rebuilding the in-memory index without knowing the
// concrete type.
func RegisterIdentityHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresIdentityHNSW = rebuilder
}

// GetIdentityHNSWRebuilder returns the registered identity HNSW rebuilder, or nil if not registered.
func GetIdentityHNSWRebuilder() HNSWRebuilder {
	return postgresIdentityHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetIdentityReader returns an IdentityReader from the PostgreSQL backend
func GetIdentityReader(ctx context.Context) (IdentityReader, error) {
	return GetIdentityWriter(ctx)
}

// GetIdentityWriter returns an IdentityWriter from the PostgreSQL backend
func GetIdentityWriter(ctx context.Context) (IdentityWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresIdentityWriter == nil {
		return nil, fmt.Errorf("PostgreSQL identity writer not registered")
	}
	return postgresIdentityWriter(), nil
}

// GetAttendanceReader returns an AttendanceReader from the PostgreSQL backend
func GetAttendanceReader(ctx context.Context) (AttendanceReader, error) {
	return GetAttendanceWriter(ctx)
}

// GetAttendanceWriter returns an AttendanceWriter from the PostgreSQL backend
func GetAttendanceWriter(ctx context.Context) (AttendanceWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresAttendanceWriter == nil {
		return nil, fmt.Errorf("PostgreSQL attendance writer not registered")
	}
	return postgresAttendanceWriter(), nil
}
