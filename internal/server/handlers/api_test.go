package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/engine"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/media"
	"github.com/padillasconcrete/siteapi/internal/server/middleware"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	api      *API
	router   http.Handler
	messages *memMessages
	notifier *recordingNotifier
	users    *memUsers
	projects *memProjects
	objects  *memObjects
	admin    core.User
	editor   core.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	adminHash, err := auth.HashPassword("admin-pass", 4)
	require.NoError(t, err)
	editorHash, err := auth.HashPassword("editor-pass", 4)
	require.NoError(t, err)

	env := &testEnv{
		messages: &memMessages{},
		notifier: &recordingNotifier{},
		projects: newMemProjects(),
		objects:  newMemObjects(),
		admin:    core.User{ID: "admin-1", Username: "admin", PasswordHash: adminHash, Role: core.RoleAdmin},
		editor:   core.User{ID: "editor-1", Username: "editor", PasswordHash: editorHash, Role: core.RoleUser},
	}
	env.users = newMemUsers(env.admin, env.editor)

	issuer, err := auth.NewIssuer("test-secret", "siteapi-test", time.Hour)
	require.NoError(t, err)

	limiter := engine.NewRateLimiter(engine.NewMemoryAttemptStore())
	limiter.Clock = func() time.Time { return testNow }

	uploader := media.NewUploader(env.objects, 1<<20, 32)

	env.api = &API{
		Limiter:         limiter,
		Messages:        env.messages,
		Notifier:        env.notifier,
		Users:           env.users,
		Projects:        env.projects,
		Uploader:        uploader,
		Issuer:          issuer,
		BcryptCost:      4,
		DefaultLanguage: "en",
		Clock:           func() time.Time { return testNow },
	}

	r := chi.NewRouter()
	r.Post("/api/contact", env.api.Contact)
	r.Get("/api/projects", env.api.ListProjects)
	r.Post("/api/auth/login", env.api.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(issuer))
		r.Get("/api/auth/verify", env.api.Verify)
		r.Post("/api/auth/change-password", env.api.ChangePassword)
		r.Post("/api/projects", env.api.CreateProject)
		r.Put("/api/projects/{id}", env.api.UpdateProject)
		r.Delete("/api/projects/{id}", env.api.DeleteProject)
		r.Post("/api/projects/{id}/photos", env.api.UploadPhoto)
		r.Delete("/api/projects/{id}/photos/{photoId}", env.api.DeletePhoto)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/api/users", env.api.ListUsers)
			r.Post("/api/users", env.api.CreateUser)
			r.Put("/api/users/{id}", env.api.UpdateUser)
			r.Delete("/api/users/{id}", env.api.DeleteUser)
		})
	})
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, user core.User) string {
	t.Helper()
	token, _, err := e.api.Issuer.Issue(&user)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorDetail {
	t.Helper()
	return decodeBody[apperrors.HTTPErrorResponse](t, rec).Error
}

func validContact() map[string]string {
	return map[string]string{
		"name":    "Ana María",
		"email":   "ana@example.com",
		"phone":   "(507) 555-1234",
		"service": "Patios",
		"message": "Looking for a new patio behind the house.",
	}
}

func TestContactSuccessStoresAndNotifies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[contactResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "contact.form.success", resp.MessageKey)
	assert.NotEmpty(t, resp.Message)
	require.NotEmpty(t, resp.ID)

	stored := env.messages.all()
	require.Len(t, stored, 1)
	assert.Equal(t, resp.ID, stored[0].ID)
	assert.Equal(t, "Patios", stored[0].Service)
	assert.Equal(t, "192.0.2.1", stored[0].ClientIP)
	assert.True(t, stored[0].Notified)
	require.Len(t, env.notifier.sent, 1)
}

func TestContactFourthRapidPostIsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	detail := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeRateLimited, detail.Code)
	assert.EqualValues(t, 60, detail.Details["remaining_seconds"])
	assert.Len(t, env.messages.all(), 3)
}

func TestContactSpamDoesNotRecordAttempts(t *testing.T) {
	env := newTestEnv(t)

	spam := validContact()
	spam["honeypot"] = "http://spam.example"
	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/contact", "", spam)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apperrors.CodeSubmissionRejected, decodeError(t, rec).Code)
	}

	assert.Empty(t, env.messages.all())
	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestContactValidationReportsEveryField(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/contact", "", map[string]string{
		"name":    "A",
		"email":   "not-an-email",
		"phone":   "123",
		"service": "Roofing",
		"message": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeValidationFailed, detail.Code)
	fields, ok := detail.Details["errors"].(map[string]any)
	require.True(t, ok, "details.errors should be an object")
	assert.Len(t, fields, 5)
	assert.Equal(t, "validation.emailError", fields["email"])
	assert.Empty(t, env.messages.all())
}

func TestContactStoreFailureIsDatabaseError(t *testing.T) {
	env := newTestEnv(t)
	env.messages.insertErr = errors.New("disk full")

	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.CodeDatabase, decodeError(t, rec).Code)
	assert.Empty(t, env.notifier.sent)
}

func TestContactNotificationFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp down")

	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	require.Equal(t, http.StatusCreated, rec.Code)

	stored := env.messages.all()
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Notified)
}

func TestContactWithoutStoreUsesNotifier(t *testing.T) {
	env := newTestEnv(t)
	env.api.Messages = nil
	env.notifier.err = errors.New("smtp down")

	rec := env.do(t, http.MethodPost, "/api/contact", "", validContact())
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apperrors.CodeExternalService, decodeError(t, rec).Code)
}

func TestContactLocalizesBySpanishAcceptLanguage(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(validContact())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewReader(body))
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[contactResponse](t, rec)
	english := decodeBody[contactResponse](t, env.do(t, http.MethodPost, "/api/contact", "", validContact()))
	assert.NotEqual(t, english.Message, resp.Message)
	assert.Equal(t, "es-MX,es;q=0.9", env.messages.all()[0].Language)
}

func TestLoginReturnsTokenThatVerifies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "Admin",
		"password": "admin-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[tokenResponse](t, rec)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, "admin-1", login.User.ID)
	assert.NotContains(t, rec.Body.String(), "admin-pass")

	rec = env.do(t, http.MethodGet, "/api/auth/verify", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, verify["success"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	wrongPassword := decodeError(t, rec)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ghost", "password": "whatever"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	unknownUser := decodeError(t, rec)
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.Equal(t, wrongPassword.Message, unknownUser.Message, "unknown usernames are indistinguishable")
	assert.ErrorIs(t, auth.CheckUnknownUser("whatever", env.api.BcryptCost), auth.ErrInvalidCredentials)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeValidationFailed, decodeError(t, rec).Code)
}

func TestVerifyRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/verify", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	rec := env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "another-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "editor-pass",
		"newPassword":     "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "editor-pass",
		"newPassword":     "another-pass",
		"newUsername":     "site-editor",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[tokenResponse](t, rec)
	assert.Equal(t, "site-editor", resp.User.Username)

	claims, err := env.api.Issuer.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "site-editor", claims.Username)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "site-editor", "password": "another-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsersRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/users", env.token(t, env.editor), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users", env.token(t, env.admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[map[string][]core.User](t, rec)
	assert.Len(t, resp["users"], 2)
}

func TestUserLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.admin)

	rec := env.do(t, http.MethodPost, "/api/users", token, map[string]string{"username": "crew", "password": "crew-pass"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]core.User](t, rec)["user"]
	assert.Equal(t, core.RoleUser, created.Role)
	assert.True(t, created.MustChangePassword)

	rec = env.do(t, http.MethodPost, "/api/users", token, map[string]string{"username": "CREW", "password": "crew-pass"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeConflict, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/users", token, map[string]string{"username": "x", "password": "crew-pass", "role": "owner"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeError(t, rec).Details["errors"].(map[string]any)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "role")

	rec = env.do(t, http.MethodPut, "/api/users/"+created.ID, token, map[string]any{"role": "admin", "mustChangePassword": false})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[map[string]core.User](t, rec)["user"]
	assert.Equal(t, core.RoleAdmin, updated.Role)
	assert.False(t, updated.MustChangePassword)

	rec = env.do(t, http.MethodDelete, "/api/users/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/users/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletingYourselfIsRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/users/"+env.admin.ID, env.token(t, env.admin), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, rec).Code)

	_, err := env.users.GetUser(t.Context(), env.admin.ID)
	assert.NoError(t, err)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, token, projectID, photoType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("type", photoType))
	part, err := mw.CreateFormFile("photo", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID+"/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestProjectLifecycleWithPhotos(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	rec := env.do(t, http.MethodPost, "/api/projects", token, map[string]string{"title": "Backyard patio", "location": "Austin, TX"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decodeBody[map[string]core.Project](t, rec)["project"]
	require.NotEmpty(t, project.ID)

	var gallery []string
	for i := 0; i < 3; i++ {
		rec = env.upload(t, token, project.ID, "gallery", pngBytes(t, 64, 48))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		photo := decodeBody[map[string]core.Photo](t, rec)["photo"]
		assert.Equal(t, "image/png", photo.ContentType)
		assert.NotEmpty(t, photo.ThumbnailURL)
		gallery = append(gallery, photo.ID)
	}
	assert.Equal(t, 6, env.objects.count())

	rec = env.upload(t, token, project.ID, "before", pngBytes(t, 8, 8))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.upload(t, token, project.ID, "before", pngBytes(t, 8, 8))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 8, env.objects.count(), "replaced before photo objects are removed")

	reordered := []string{gallery[2], gallery[0], gallery[1]}
	rec = env.do(t, http.MethodPut, "/api/projects/"+project.ID, token, map[string]any{
		"title":  "Backyard patio (stamped)",
		"photos": reordered,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[map[string]core.Project](t, rec)["project"]
	assert.Equal(t, "Backyard patio (stamped)", updated.Title)
	require.Len(t, updated.Photos, 3)
	for i, id := range reordered {
		assert.Equal(t, id, updated.Photos[i].ID)
	}

	rec = env.do(t, http.MethodPut, "/api/projects/"+project.ID, token, map[string]any{
		"title":  "Backyard patio",
		"photos": []string{"nope"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID+"/photos/"+gallery[0], token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, env.objects.count())

	rec = env.do(t, http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]core.Project](t, rec)["projects"], 1)

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.objects.count())

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProjectWithUnknownPhotoChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	rec := env.do(t, http.MethodPost, "/api/projects", token, map[string]string{"title": "Driveway", "location": "Austin, TX"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decodeBody[map[string]core.Project](t, rec)["project"]

	rec = env.upload(t, token, project.ID, "gallery", pngBytes(t, 8, 8))
	require.Equal(t, http.StatusCreated, rec.Code)
	photo := decodeBody[map[string]core.Photo](t, rec)["photo"]

	rec = env.do(t, http.MethodPut, "/api/projects/"+project.ID, token, map[string]any{
		"title":    "Renamed driveway",
		"location": "Round Rock, TX",
		"photos":   []string{photo.ID, "missing-photo"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, rec).Code)

	stored, err := env.projects.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Driveway", stored.Title)
	assert.Equal(t, "Austin, TX", stored.Location)
	require.Len(t, stored.Photos, 1)
	assert.Equal(t, photo.ID, stored.Photos[0].ID)
}

func TestUploadRejectsUnsupportedAndMissingProject(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	rec := env.upload(t, token, "missing", "gallery", pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/projects", token, map[string]string{"title": "Driveway"})
	project := decodeBody[map[string]core.Project](t, rec)["project"]

	rec = env.upload(t, token, project.ID, "gallery", []byte("GIF89a not really"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeValidationFailed, decodeError(t, rec).Code)

	rec = env.upload(t, token, project.ID, "panorama", pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.objects.count())
}

func TestCreateProjectRequiresTitle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/projects", env.token(t, env.editor), map[string]string{"location": "Round Rock"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeError(t, rec).Details["errors"].(map[string]any)
	assert.Equal(t, "is required", fields["title"])
}
