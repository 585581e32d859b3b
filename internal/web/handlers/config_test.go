package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigGet(t *testing.T) {
	handler := NewConfigHandler(wideThresholds(), quickPattern(), 3, 0.4)

	rec := httptest.NewRecorder()
	handler.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Pattern  []patternStage `json:"pattern"`
		Matching struct {
			TopK        int     `json:"top_k"`
			MaxDistance float64 `json:"max_distance"`
			StageCount  int     `json:"stage_count"`
		} `json:"matching"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Pattern) != 2 {
		t.Errorf("pattern stages = %d, want 2", len(resp.Pattern))
	}
	if resp.Matching.TopK != 3 || resp.Matching.MaxDistance != 0.4 {
		t.Errorf("matching = %+v, want top_k 3 and max_distance 0.4", resp.Matching)
	}
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}
