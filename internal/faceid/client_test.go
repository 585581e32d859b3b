package faceid

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facemark/facemark/internal/liveness"
)

func faceServer(t *testing.T, resp detectResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("path = %s, want /embed/face", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("expected multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestPrimaryFace_PicksHighestScore(t *testing.T) {
	server := faceServer(t, detectResponse{
		FacesCount: 2,
		Faces: []Detection{
			{FaceIndex: 0, Dim: 4, Embedding: []float32{1, 0, 0, 0}, BBox: []float64{10, 10, 50, 60}, DetScore: 0.71},
			{FaceIndex: 1, Dim: 4, Embedding: []float32{0, 1, 0, 0}, BBox: []float64{100, 20, 160, 90}, DetScore: 0.93},
		},
		Model: "buffalo_l",
	})
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	face, err := client.PrimaryFace(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("PrimaryFace: %v", err)
	}

	if face.Score != 0.93 {
		t.Errorf("score = %f, want 0.93 (highest)", face.Score)
	}
	if face.Embedding[1] != 1 {
		t.Error("expected embedding of the highest scoring face")
	}
	if want := image.Rect(100, 20, 160, 90); face.Region != want {
		t.Errorf("region = %v, want %v", face.Region, want)
	}
	if face.Model != "buffalo_l" {
		t.Errorf("model = %q, want buffalo_l", face.Model)
	}
}

func TestPrimaryFace_NoFace(t *testing.T) {
	server := faceServer(t, detectResponse{FacesCount: 0, Model: "buffalo_l"})
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.PrimaryFace(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, liveness.ErrNoFaceDetected) {
		t.Errorf("err = %v, want ErrNoFaceDetected", err)
	}
}

func TestPrimaryFace_MissingEmbedding(t *testing.T) {
	server := faceServer(t, detectResponse{
		FacesCount: 1,
		Faces:      []Detection{{FaceIndex: 0, BBox: []float64{1, 2, 3, 4}, DetScore: 0.9}},
	})
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.PrimaryFace(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, liveness.ErrNoFaceDetected) {
		t.Errorf("err = %v, want ErrNoFaceDetected", err)
	}
}

func TestDetectFaces_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, _, err := client.DetectFaces(context.Background(), []byte("img")); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0x01}, "application/octet-stream"},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType = %q, want %q", got, tt.want)
			}
		})
	}
}
