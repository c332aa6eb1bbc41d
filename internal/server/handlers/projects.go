package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/store"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/media"
)

type projectRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Location    string `json:"location" validate:"max=200"`
	Description string `json:"description" validate:"max=5000"`
}

type updateProjectRequest struct {
	projectRequest
	// Photos, when present, is the new gallery order by photo id.
	Photos []string `json:"photos"`
}

// ListProjects handles GET /api/projects.
func (a *API) ListProjects(w http.ResponseWriter, r *http.Request) {
	if a.Projects == nil {
		writeJSON(w, http.StatusOK, map[string]any{"projects": []core.Project{}})
		return
	}
	projects, err := a.Projects.ListProjects(r.Context())
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}
	if projects == nil {
		projects = []core.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// CreateProject handles POST /api/projects.
func (a *API) CreateProject(w http.ResponseWriter, r *http.Request) {
	if !a.requireProjects(w, r) {
		return
	}
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	project := &core.Project{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Location:    strings.TrimSpace(req.Location),
		Description: strings.TrimSpace(req.Description),
		Photos:      []core.Photo{},
	}
	if err := a.Projects.CreateProject(r.Context(), project); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project": project})
}

// unknownGalleryPhoto returns the first id that is not one of project's
// gallery photos, or "".
func unknownGalleryPhoto(project *core.Project, ids []string) string {
	gallery := make(map[string]bool, len(project.Photos))
	for _, photo := range project.Photos {
		gallery[photo.ID] = true
	}
	for _, id := range ids {
		if !gallery[id] {
			return id
		}
	}
	return ""
}

// UpdateProject handles PUT /api/projects/{id}.
func (a *API) UpdateProject(w http.ResponseWriter, r *http.Request) {
	if !a.requireProjects(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	project, err := a.Projects.GetProject(r.Context(), id)
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}
	// Reject a bad photo order before any field is written.
	if req.Photos != nil {
		if unknown := unknownGalleryPhoto(project, req.Photos); unknown != "" {
			respondWithError(w, r, storeError(r.Context(),
				fmt.Errorf("%w: %s", store.ErrUnknownPhoto, unknown), "project"))
			return
		}
	}
	project.Title = strings.TrimSpace(req.Title)
	project.Location = strings.TrimSpace(req.Location)
	project.Description = strings.TrimSpace(req.Description)
	if err := a.Projects.UpdateProject(r.Context(), project); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}

	if req.Photos != nil {
		if err := a.Projects.ReorderPhotos(r.Context(), id, req.Photos); err != nil {
			respondWithError(w, r, storeError(r.Context(), err, "project"))
			return
		}
	}

	updated, err := a.Projects.GetProject(r.Context(), id)
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": updated})
}

// DeleteProject handles DELETE /api/projects/{id} and removes the photo
// objects from media storage.
func (a *API) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if !a.requireProjects(w, r) {
		return
	}
	photos, err := a.Projects.DeleteProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}
	for _, photo := range photos {
		a.removeMedia(r, photo)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// UploadPhoto handles POST /api/projects/{id}/photos with a multipart
// "photo" file and a "type" of gallery, before or after.
func (a *API) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if !a.requireProjects(w, r) {
		return
	}
	if a.Uploader == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("media storage is not configured"))
		return
	}
	projectID := chi.URLParam(r, "id")
	if _, err := a.Projects.GetProject(r.Context(), projectID); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "project"))
		return
	}

	maxBytes := a.Uploader.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("photo exceeds the upload limit"))
			return
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "malformed multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll() // nolint:errcheck // temp file cleanup

	photoType := core.PhotoType(strings.TrimSpace(r.FormValue("type")))
	if photoType == "" {
		photoType = core.PhotoGallery
	}
	if !photoType.Valid() {
		respondWithError(w, r, apperrors.NewValidationError("type must be one of: gallery before after"))
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("photo file is required"))
		return
	}
	defer file.Close() // nolint:errcheck // read-only multipart part

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "failed to read photo"))
		return
	}

	photo, err := a.Uploader.Upload(r.Context(), projectID, photoType, data)
	if err != nil {
		respondWithError(w, r, uploadError(r, err))
		return
	}

	replaced, err := a.Projects.AddPhoto(r.Context(), photo)
	if err != nil {
		a.removeMedia(r, *photo)
		respondWithError(w, r, storeError(r.Context(), err, "photo"))
		return
	}
	if replaced != nil {
		a.removeMedia(r, *replaced)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"photo": photo})
}

// DeletePhoto handles DELETE /api/projects/{id}/photos/{photoId}.
func (a *API) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if !a.requireProjects(w, r) {
		return
	}
	photo, err := a.Projects.DeletePhoto(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "photoId"))
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "photo"))
		return
	}
	a.removeMedia(r, *photo)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) requireProjects(w http.ResponseWriter, r *http.Request) bool {
	if a.Projects == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("project store is not configured"))
		return false
	}
	return true
}

// removeMedia deletes a photo's objects. Orphaned objects are logged, not
// surfaced; the database row is already gone.
func (a *API) removeMedia(r *http.Request, photo core.Photo) {
	if a.Uploader == nil {
		return
	}
	if err := a.Uploader.Remove(r.Context(), photo); err != nil && a.Logger != nil {
		a.Logger.Warn("Failed to remove photo objects",
			zap.String("photo_id", photo.ID),
			zap.String("project_id", photo.ProjectID),
			zap.Error(err))
	}
}

func uploadError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return apperrors.NewPayloadTooLargeError("photo exceeds the upload limit")
	case errors.Is(err, media.ErrUnsupportedType):
		return apperrors.NewValidationError("photo must be a JPEG or PNG image")
	case errors.Is(err, media.ErrEmpty):
		return apperrors.NewInvalidInputError("photo file is empty")
	case errors.Is(err, media.ErrDecode):
		return apperrors.WrapInvalidInput(r.Context(), err, "photo could not be decoded")
	default:
		return apperrors.WrapExternalService(r.Context(), err, "failed to store photo")
	}
}
