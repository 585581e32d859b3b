package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// EnsureSchema creates the mirror table if it does not exist yet.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_mirror (
			id            BIGINT AUTO_INCREMENT PRIMARY KEY,
			source_id     BIGINT NOT NULL,
			identity_id   BIGINT NOT NULL,
			identity_name VARCHAR(255) NOT NULL,
			roll_number   VARCHAR(64) NOT NULL,
			marked_at     DATETIME NOT NULL,
			confidence    DOUBLE NOT NULL,
			status        VARCHAR(32) NOT NULL,
			UNIQUE KEY attendance_mirror_source (source_id),
			KEY attendance_mirror_marked (marked_at)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attendance_mirror table: %w", err)
	}
	return nil
}

// MirrorRecord is a denormalized attendance row pushed to the mirror.
type MirrorRecord struct {
	SourceID     int64
	IdentityID   int64
	IdentityName string
	RollNumber   string
	MarkedAt     time.Time
	Confidence   float64
	Status       string
}

// Record inserts an attendance row into the mirror. Replaying the same
// source row is a no-op thanks to the unique key on source_id.
func (p *Pool) Record(ctx context.Context, rec *MirrorRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT IGNORE INTO attendance_mirror
			(source_id, identity_id, identity_name, roll_number, marked_at, confidence, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SourceID, rec.IdentityID, rec.IdentityName, rec.RollNumber, rec.MarkedAt, rec.Confidence, rec.Status)
	if err != nil {
		return fmt.Errorf("failed to mirror attendance record: %w", err)
	}
	return nil
}
