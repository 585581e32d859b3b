package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mock"
	"github.com/go-chi/chi/v5"
)

func newIdentitiesRouter(store *mock.MockIdentityStore) *chi.Mux {
	handler := NewIdentitiesHandler(store)
	r := chi.NewRouter()
	r.Get("/api/v1/identities", handler.List)
	r.Get("/api/v1/identities/{id}", handler.Get)
	r.Delete("/api/v1/identities/{id}", handler.Delete)
	return r
}

func seedIdentity(store *mock.MockIdentityStore, id int64, name, roll string) {
	store.AddIdentity(database.StoredIdentity{
		ID:         id,
		Name:       name,
		RollNumber: roll,
		Embedding:  []float32{1, 2, 3},
		Model:      "buffalo_l",
		Dim:        3,
	})
}

func TestIdentitiesList(t *testing.T) {
	store := mock.NewMockIdentityStore()
	seedIdentity(store, 1, "Ada Lovelace", "R-001")
	seedIdentity(store, 2, "Grace Hopper", "R-002")
	router := newIdentitiesRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Identities []identityResponse `json:"identities"`
		Count      int                `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Identities) != 2 {
		t.Fatalf("count = %d (%d entries), want 2", resp.Count, len(resp.Identities))
	}
	if resp.Identities[0].ID != 1 {
		t.Errorf("first identity ID = %d, want 1 (ordered by ID)", resp.Identities[0].ID)
	}
}

func TestIdentitiesGet(t *testing.T) {
	store := mock.NewMockIdentityStore()
	seedIdentity(store, 1, "Ada Lovelace", "R-001")
	router := newIdentitiesRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities/1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp identityResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name != "Ada Lovelace" {
		t.Errorf("name = %q, want Ada Lovelace", resp.Name)
	}
}

func TestIdentitiesGet_Errors(t *testing.T) {
	store := mock.NewMockIdentityStore()
	router := newIdentitiesRouter(store)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"not found", "/api/v1/identities/99", http.StatusNotFound},
		{"invalid id", "/api/v1/identities/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestIdentitiesDelete(t *testing.T) {
	store := mock.NewMockIdentityStore()
	seedIdentity(store, 1, "Ada Lovelace", "R-001")
	router := newIdentitiesRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/identities/1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities/1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}

func TestIdentitiesDelete_NotFound(t *testing.T) {
	router := newIdentitiesRouter(mock.NewMockIdentityStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/identities/5", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
