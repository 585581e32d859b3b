//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(seed int) []float32 {
	emb := make([]float32, 512)
	for i := range emb {
		emb[i] = float32(i+seed) / 512.0
	}
	return emb
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(pool)

	t.Run("SaveAndGet", func(t *testing.T) {
		id, err := repo.Save(ctx, &database.StoredIdentity{
			Name:       "Jiří Novák",
			RollNumber: "R-001",
			ClassName:  "3A",
			Embedding:  testEmbedding(0),
			Model:      "buffalo_l",
			Dim:        512,
		})
		if err != nil {
			t.Fatalf("Failed to save identity: %v", err)
		}

		got, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got == nil {
			t.Fatal("Expected identity, got nil")
		}
		if got.Name != "Jiří Novák" {
			t.Errorf("Expected name 'Jiří Novák', got '%s'", got.Name)
		}
		if got.NormalizedName != "jiri novak" {
			t.Errorf("Expected normalized name 'jiri novak', got '%s'", got.NormalizedName)
		}
		if len(got.Embedding) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Embedding))
		}
	})

	t.Run("UpsertOnRollNumber", func(t *testing.T) {
		first, err := repo.Save(ctx, &database.StoredIdentity{
			Name:       "Old Name",
			RollNumber: "R-002",
			Embedding:  testEmbedding(1),
			Model:      "buffalo_l",
			Dim:        512,
		})
		if err != nil {
			t.Fatalf("Failed to save identity: %v", err)
		}

		second, err := repo.Save(ctx, &database.StoredIdentity{
			Name:       "New Name",
			RollNumber: "R-002",
			Embedding:  testEmbedding(2),
			Model:      "buffalo_l",
			Dim:        512,
		})
		if err != nil {
			t.Fatalf("Failed to re-save identity: %v", err)
		}
		if first != second {
			t.Errorf("Expected same ID for re-enrollment, got %d and %d", first, second)
		}

		got, err := repo.GetByRollNumber(ctx, "R-002")
		if err != nil {
			t.Fatalf("Failed to get by roll number: %v", err)
		}
		if got == nil || got.Name != "New Name" {
			t.Errorf("Expected updated name 'New Name', got %+v", got)
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		for i := range 5 {
			_, err := repo.Save(ctx, &database.StoredIdentity{
				Name:       fmt.Sprintf("Person %d", i),
				RollNumber: fmt.Sprintf("R-1%02d", i),
				Embedding:  testEmbedding(i * 10),
				Model:      "buffalo_l",
				Dim:        512,
			})
			if err != nil {
				t.Fatalf("Failed to save identity %d: %v", i, err)
			}
		}

		results, distances, err := repo.FindNearest(ctx, testEmbedding(0), 3, 1.0)
		if err != nil {
			t.Fatalf("Failed to find nearest: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("Expected results, got none")
		}
		if len(results) != len(distances) {
			t.Errorf("Results and distances length mismatch: %d vs %d", len(results), len(distances))
		}
		for i := 1; i < len(distances); i++ {
			if distances[i] < distances[i-1] {
				t.Error("Distances not sorted")
			}
		}
	})

	t.Run("FindNearestWithHNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx, ""); err != nil {
			t.Fatalf("Failed to enable HNSW: %v", err)
		}
		if !repo.IsHNSWEnabled() {
			t.Fatal("Expected HNSW to be enabled")
		}

		results, distances, err := repo.FindNearest(ctx, testEmbedding(0), 3, 1.0)
		if err != nil {
			t.Fatalf("Failed to find nearest via HNSW: %v", err)
		}
		if len(results) == 0 {
			t.Fatal("Expected results, got none")
		}
		if len(results) != len(distances) {
			t.Error("Results and distances length mismatch")
		}

		repo.DisableHNSW()
	})

	t.Run("Delete", func(t *testing.T) {
		id, err := repo.Save(ctx, &database.StoredIdentity{
			Name:       "To Delete",
			RollNumber: "R-DEL",
			Embedding:  testEmbedding(99),
			Model:      "buffalo_l",
			Dim:        512,
		})
		if err != nil {
			t.Fatalf("Failed to save identity: %v", err)
		}

		if err := repo.Delete(ctx, id); err != nil {
			t.Fatalf("Failed to delete identity: %v", err)
		}

		got, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get identity: %v", err)
		}
		if got != nil {
			t.Error("Expected nil after delete")
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	identities := NewIdentityRepository(pool)
	repo := NewAttendanceRepository(pool)

	identityID, err := identities.Save(ctx, &database.StoredIdentity{
		Name:       "Ada Lovelace",
		RollNumber: "R-ADA",
		Embedding:  testEmbedding(0),
		Model:      "buffalo_l",
		Dim:        512,
	})
	if err != nil {
		t.Fatalf("Failed to save identity: %v", err)
	}

	t.Run("RecordAndList", func(t *testing.T) {
		_, err := repo.Record(ctx, &database.AttendanceRecord{
			IdentityID: identityID,
			Confidence: 0.85,
		})
		if err != nil {
			t.Fatalf("Failed to record attendance: %v", err)
		}

		records, err := repo.List(ctx, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("Failed to list attendance: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(records))
		}
		if records[0].IdentityName != "Ada Lovelace" {
			t.Errorf("Expected identity name 'Ada Lovelace', got '%s'", records[0].IdentityName)
		}
		if records[0].Status != database.AttendanceStatusPresent {
			t.Errorf("Expected status 'present', got '%s'", records[0].Status)
		}
	})

	t.Run("HasMarkedOn", func(t *testing.T) {
		marked, err := repo.HasMarkedOn(ctx, identityID, time.Now())
		if err != nil {
			t.Fatalf("Failed to check attendance: %v", err)
		}
		if !marked {
			t.Error("Expected attendance marked today")
		}

		marked, err = repo.HasMarkedOn(ctx, identityID, time.Now().AddDate(0, 0, -1))
		if err != nil {
			t.Fatalf("Failed to check attendance: %v", err)
		}
		if marked {
			t.Error("Expected no attendance yesterday")
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_identities.sql",
		"002_attendance.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}
}
