// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// MockIdentityStore is an in-memory implementation of database.IdentityWriter.
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities map[int64]*database.StoredIdentity
	nextID     int64

	// Error injection
	GetError         error
	ListError        error
	CountError       error
	FindNearestError error
	SaveError        error
	DeleteError      error
}

// NewMockIdentityStore creates a new mock identity store.
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[int64]*database.StoredIdentity),
	}
}

// AddIdentity adds an identity directly to the mock store.
func (m *MockIdentityStore) AddIdentity(identity database.StoredIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity.ID == 0 {
		m.nextID++
		identity.ID = m.nextID
	} else if identity.ID > m.nextID {
		m.nextID = identity.ID
	}
	m.identities[identity.ID] = &identity
}

// Get retrieves an identity by ID.
func (m *MockIdentityStore) Get(ctx context.Context, id int64) (*database.StoredIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identities[id], nil
}

// GetByRollNumber retrieves an identity by roll number.
func (m *MockIdentityStore) GetByRollNumber(ctx context.Context, rollNumber string) (*database.StoredIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, identity := range m.identities {
		if identity.RollNumber == rollNumber {
			return identity, nil
		}
	}
	return nil, nil
}

// List returns all identities ordered by ID.
func (m *MockIdentityStore) List(ctx context.Context) ([]database.StoredIdentity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.StoredIdentity
	for _, identity := range m.identities {
		results = append(results, *identity)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// Count returns the total number of identities.
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// FindNearest returns identities sorted by cosine distance to the embedding,
// filtered to distances below maxDistance.
func (m *MockIdentityStore) FindNearest(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredIdentity, []float64, error) {
	if m.FindNearestError != nil {
		return nil, nil, m.FindNearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		identity *database.StoredIdentity
		distance float64
	}
	var candidates []scored
	for _, identity := range m.identities {
		d := database.CosineDistance(embedding, identity.Embedding)
		if d < maxDistance {
			candidates = append(candidates, scored{identity, d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })

	var results []database.StoredIdentity
	var distances []float64
	for _, c := range candidates {
		results = append(results, *c.identity)
		distances = append(distances, c.distance)
		if len(results) >= limit {
			break
		}
	}
	return results, distances, nil
}

// Save stores or updates an identity, keyed by roll number.
func (m *MockIdentityStore) Save(ctx context.Context, identity *database.StoredIdentity) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.identities {
		if existing.RollNumber == identity.RollNumber {
			stored := *identity
			stored.ID = id
			m.identities[id] = &stored
			identity.ID = id
			return id, nil
		}
	}

	m.nextID++
	stored := *identity
	stored.ID = m.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.identities[stored.ID] = &stored
	identity.ID = stored.ID
	return stored.ID, nil
}

// Delete removes an identity.
func (m *MockIdentityStore) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	return nil
}

// MockAttendanceStore is an in-memory implementation of database.AttendanceWriter.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord
	nextID  int64

	// Track calls
	RecordCalls []database.AttendanceRecord

	// Error injection
	RecordError      error
	ListError        error
	HasMarkedOnError error
}

// NewMockAttendanceStore creates a new mock attendance store.
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{}
}

// Record stores an attendance mark.
func (m *MockAttendanceStore) Record(ctx context.Context, record *database.AttendanceRecord) (int64, error) {
	if m.RecordError != nil {
		return 0, m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID
	if record.MarkedAt.IsZero() {
		record.MarkedAt = time.Now()
	}
	if record.Status == "" {
		record.Status = database.AttendanceStatusPresent
	}
	m.records = append(m.records, *record)
	m.RecordCalls = append(m.RecordCalls, *record)
	return record.ID, nil
}

// List returns records marked at or after since, newest first.
func (m *MockAttendanceStore) List(ctx context.Context, since time.Time, limit int) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.AttendanceRecord
	for _, rec := range m.records {
		if !rec.MarkedAt.Before(since) {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].MarkedAt.After(results[j].MarkedAt) })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// HasMarkedOn checks for a record on the calendar day containing the given time.
func (m *MockAttendanceStore) HasMarkedOn(ctx context.Context, identityID int64, day time.Time) (bool, error) {
	if m.HasMarkedOnError != nil {
		return false, m.HasMarkedOnError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	for _, rec := range m.records {
		if rec.IdentityID == identityID && !rec.MarkedAt.Before(start) && rec.MarkedAt.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

// Verify interface compliance
var _ database.IdentityReader = (*MockIdentityStore)(nil)
var _ database.IdentityWriter = (*MockIdentityStore)(nil)
var _ database.AttendanceReader = (*MockAttendanceStore)(nil)
var _ database.AttendanceWriter = (*MockAttendanceStore)(nil)
