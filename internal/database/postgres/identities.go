package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/pgvector/pgvector-go"
)

const identityColumns = "id, name, normalized_name, roll_number, class_name, embedding, model, dim, created_at"

// IdentityRepository provides PostgreSQL-backed identity storage with an
// optional in-memory HNSW index.
type IdentityRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Get retrieves an identity by ID.
func (r *IdentityRepository) Get(ctx context.Context, id int64) (*database.StoredIdentity, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE id = $1", id)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetByRollNumber retrieves an identity by roll number.
func (r *IdentityRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*database.StoredIdentity, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE roll_number = $1", rollNumber)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// List returns all identities ordered by name.
func (r *IdentityRepository) List(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+identityColumns+" FROM identities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// Count returns the total number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// FindNearest finds identities with similar embeddings using cosine distance.
// Uses the in-memory HNSW index if enabled, otherwise falls back to pgvector.
func (r *IdentityRepository) FindNearest(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.StoredIdentity, []float64, error) {
	r.hnswMu.RLock()
	hnswEnabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()

	if hnswEnabled {
		return r.findNearestHNSW(embedding, limit, maxDistance)
	}
	return r.findNearestPostgres(ctx, embedding, limit, maxDistance)
}

// findNearestHNSW uses the in-memory HNSW index for similarity search.
func (r *IdentityRepository) findNearestHNSW(
	embedding []float32, limit int, maxDistance float64,
) ([]database.StoredIdentity, []float64, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndex == nil {
		return nil, nil, errors.New("HNSW index not initialized")
	}

	// Request more candidates to ensure we have enough after distance filtering.
	searchK := limit * database.HNSWSearchMultiplier
	searchK = max(searchK, 100)

	ids, distances, err := r.hnswIndex.Search(embedding, searchK)
	if err != nil {
		return nil, nil, fmt.Errorf("HNSW search: %w", err)
	}

	results := make([]database.StoredIdentity, 0, limit)
	distancesOut := make([]float64, 0, limit)

	for i, id := range ids {
		if distances[i] >= maxDistance {
			continue
		}
		identity := r.hnswIndex.GetIdentity(id)
		if identity == nil {
			continue
		}
		results = append(results, *identity)
		distancesOut = append(distancesOut, distances[i])
		if len(results) >= limit {
			break
		}
	}

	return results, distancesOut, nil
}

// findNearestPostgres uses pgvector for similarity search with ef_search
// raised to match the in-memory index recall.
func (r *IdentityRepository) findNearestPostgres(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.StoredIdentity, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT ` + identityColumns + `, embedding <=> $1::vector AS distance
		FROM identities
		WHERE embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest identities: %w", err)
	}
	defer rows.Close()

	var identities []database.StoredIdentity
	var distances []float64

	for rows.Next() {
		var dist float64
		identity, err := scanIdentityRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, identity)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, distances, nil
}

// Save stores an identity, replacing an existing one with the same roll
// number, and returns the assigned ID.
func (r *IdentityRepository) Save(ctx context.Context, identity *database.StoredIdentity) (int64, error) {
	if identity.NormalizedName == "" {
		identity.NormalizedName = faceid.NormalizePersonName(identity.Name)
	}

	vec := pgvector.NewVector(identity.Embedding)

	var className sql.NullString
	if identity.ClassName != "" {
		className = sql.NullString{String: identity.ClassName, Valid: true}
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (name, normalized_name, roll_number, class_name, embedding, model, dim)
		VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
		ON CONFLICT (roll_number) DO UPDATE SET
			name = EXCLUDED.name,
			normalized_name = EXCLUDED.normalized_name,
			class_name = EXCLUDED.class_name,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
		RETURNING id
	`,
		identity.Name,
		identity.NormalizedName,
		identity.RollNumber,
		className,
		vec,
		identity.Model,
		identity.Dim,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save identity: %w", err)
	}

	identity.ID = id

	if r.isHNSWEnabled() {
		r.hnswMu.Lock()
		// Re-enrollment replaces the node for the same ID.
		r.hnswIndex.Delete(id)
		saved := *identity
		if err := r.hnswIndex.Add(&saved); err != nil {
			r.hnswMu.Unlock()
			return id, fmt.Errorf("update HNSW index: %w", err)
		}
		r.hnswMu.Unlock()
	}

	return id, nil
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if r.isHNSWEnabled() {
		r.hnswMu.Lock()
		r.hnswIndex.Delete(id)
		r.hnswMu.Unlock()
	}

	return nil
}

// isHNSWEnabled checks whether the HNSW index is active.
func (r *IdentityRepository) isHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// getAll retrieves all identities including embeddings for index building.
func (r *IdentityRepository) getAll(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+identityColumns+" FROM identities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query all identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// identityStats returns the count and maximum ID, used for staleness checks.
func (r *IdentityRepository) identityStats(ctx context.Context) (count, maxID int64, err error) {
	err = r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM identities").Scan(&count, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get identity stats: %w", err)
	}
	return count, maxID, nil
}

// tryLoadIndex attempts to load the HNSW index from disk. Returns true if
// the cached index matches the database state and loaded successfully.
func (r *IdentityRepository) tryLoadIndex(indexPath string, dbCount, dbMaxID int64) bool {
	metadata, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		return false
	}
	if metadata.IdentityCount != dbCount || metadata.MaxIdentityID != dbMaxID {
		return false
	}

	idx := database.NewHNSWIndex()
	if err := idx.LoadWithMetadata(indexPath); err != nil {
		return false
	}
	if idx.IsEmpty() {
		return false
	}

	r.hnswIndex = idx
	return true
}

// EnableHNSW loads or builds an in-memory HNSW index for O(log N)
// similarity search. If indexPath is provided, it tries to load from disk
// first and saves after building. Called once at startup.
func (r *IdentityRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	dbCount, dbMaxID, err := r.identityStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" && r.tryLoadIndex(indexPath, dbCount, dbMaxID) {
		r.hnswEnabled = true
		return nil
	}

	identities, err := r.getAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	if err := r.hnswIndex.BuildFromIdentities(identities); err != nil {
		return fmt.Errorf("failed to build HNSW index: %w", err)
	}

	if indexPath != "" && len(identities) > 0 {
		metadata := database.HNSWIndexMetadata{
			IdentityCount: dbCount,
			MaxIdentityID: dbMaxID,
			BuildTime:     time.Now(),
		}
		if err := r.hnswIndex.SaveWithMetadata(indexPath, metadata); err != nil {
			fmt.Printf("Warning: failed to save HNSW index to disk: %v\n", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to pgvector queries.
func (r *IdentityRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *IdentityRepository) IsHNSWEnabled() bool {
	return r.isHNSWEnabled()
}

// HNSWCount returns the number of identities in the HNSW index.
func (r *IdentityRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *IdentityRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *IdentityRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	dbCount, dbMaxID, err := r.identityStats(context.Background())
	if err != nil {
		return err
	}

	metadata := database.HNSWIndexMetadata{
		IdentityCount: dbCount,
		MaxIdentityID: dbMaxID,
		BuildTime:     time.Now(),
	}

	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW identity index: %w", err)
	}
	return nil
}

// scanIdentityRow scans a single row into a StoredIdentity, with optional
// extra scan destinations appended after the standard columns.
func scanIdentityRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredIdentity, error) {
	var identity database.StoredIdentity
	var vec pgvector.Vector
	var className sql.NullString

	dest := make([]any, 0, 9+len(extraDest))
	dest = append(dest,
		&identity.ID,
		&identity.Name,
		&identity.NormalizedName,
		&identity.RollNumber,
		&className,
		&vec,
		&identity.Model,
		&identity.Dim,
		&identity.CreatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return identity, err
	}

	identity.Embedding = vec.Slice()
	if className.Valid {
		identity.ClassName = className.String
	}

	return identity, nil
}

func scanIdentity(row *sql.Row) (database.StoredIdentity, error) {
	identity, err := scanIdentityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity, err
		}
		return identity, fmt.Errorf("scan identity: %w", err)
	}
	return identity, nil
}

func scanIdentities(rows *sql.Rows) ([]database.StoredIdentity, error) {
	var identities []database.StoredIdentity
	for rows.Next() {
		identity, err := scanIdentityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Verify interface compliance.
var _ database.IdentityReader = (*IdentityRepository)(nil)
var _ database.IdentityWriter = (*IdentityRepository)(nil)
var _ database.HNSWRebuilder = (*IdentityRepository)(nil)
