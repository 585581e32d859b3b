package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/facemark/facemark/internal/checkin"
	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/facemark/facemark/internal/liveness"
)

// EnrollHandler registers identities from reference images.
type EnrollHandler struct {
	faces      checkin.FaceDetector
	identities database.IdentityWriter
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(faces checkin.FaceDetector, identities database.IdentityWriter) *EnrollHandler {
	return &EnrollHandler{
		faces:      faces,
		identities: identities,
	}
}

// enrollResponse is returned after a successful enrollment.
type enrollResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	ClassName  string `json:"class_name,omitempty"`
	Model      string `json:"model"`
	Dim        int    `json:"dim"`
	Replaced   bool   `json:"replaced"`
}

// Enroll handles POST /api/v1/enroll: a multipart form with the reference
// image and the identity fields. Re-enrolling an existing roll number
// replaces the stored embedding.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := r.ParseMultipartForm(constants.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	rollNumber := r.FormValue("roll_number")
	if rollNumber == "" {
		respondError(w, http.StatusBadRequest, "roll_number is required")
		return
	}
	className := r.FormValue("class_name")

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	resized, err := faceid.ResizeImage(data, constants.MaxEnrollImageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "uploaded file is not a valid image")
		return
	}

	face, err := h.faces.PrimaryFace(r.Context(), resized)
	if err != nil {
		if errors.Is(err, liveness.ErrNoFaceDetected) {
			respondError(w, http.StatusUnprocessableEntity, "no face detected in the reference image")
			return
		}
		respondError(w, http.StatusBadGateway, "face embedding service unavailable")
		return
	}

	existing, err := h.identities.GetByRollNumber(r.Context(), rollNumber)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check existing enrollment")
		return
	}

	identity := &database.StoredIdentity{
		Name:           name,
		NormalizedName: faceid.NormalizePersonName(name),
		RollNumber:     rollNumber,
		ClassName:      className,
		Embedding:      face.Embedding,
		Model:          face.Model,
		Dim:            face.Dim,
	}
	id, err := h.identities.Save(r.Context(), identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save identity")
		return
	}

	log.Printf("Enrolled identity %d (%s)", id, sanitizeForLog(rollNumber))
	respondJSON(w, http.StatusCreated, enrollResponse{
		ID:         id,
		Name:       name,
		RollNumber: rollNumber,
		ClassName:  className,
		Model:      face.Model,
		Dim:        face.Dim,
		Replaced:   existing != nil,
	})
}
