package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/metrics"
)

// DefaultMaxUploadBytes caps a single photo upload.
const DefaultMaxUploadBytes = 10 << 20

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	ErrUnsupportedType = errors.New("only JPEG and PNG images are accepted")
	ErrTooLarge        = errors.New("photo exceeds the upload size limit")
	ErrEmpty           = errors.New("photo is empty")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// Uploader stores a photo and its thumbnail and describes them as a
// core.Photo ready to persist.
type Uploader struct {
	Storage        Storage
	MaxBytes       int64
	ThumbnailWidth int
	Clock          func() time.Time
}

func NewUploader(storage Storage, maxBytes int64, thumbnailWidth int) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Uploader{
		Storage:        storage,
		MaxBytes:       maxBytes,
		ThumbnailWidth: thumbnailWidth,
		Clock:          func() time.Time { return time.Now().UTC() },
	}
}

// DetectContentType sniffs data and returns a supported image type.
func DetectContentType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	ct := http.DetectContentType(data)
	if _, ok := extensions[ct]; !ok {
		return "", ErrUnsupportedType
	}
	return ct, nil
}

// Upload validates data, writes the original and a thumbnail under
// projects/<projectID>/ and returns the photo record.
func (u *Uploader) Upload(ctx context.Context, projectID string, photoType core.PhotoType, data []byte) (photo *core.Photo, err error) {
	backend := u.Storage.Backend()
	defer func() {
		metrics.RecordUpload(backend, int64(len(data)), err == nil)
	}()

	if !photoType.Valid() {
		return nil, fmt.Errorf("invalid photo type: %q", photoType)
	}
	if int64(len(data)) > u.MaxBytes {
		return nil, ErrTooLarge
	}
	contentType, err := DetectContentType(data)
	if err != nil {
		return nil, err
	}

	thumb, thumbType, err := Thumbnail(data, u.ThumbnailWidth)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("generate photo id: %w", err)
	}

	base := "projects/" + projectID + "/" + id
	key := base + "." + extensions[contentType]
	thumbKey := base + ".thumb." + extensions[thumbType]

	url, err := u.Storage.Put(ctx, key, contentType, data)
	if err != nil {
		return nil, err
	}
	thumbURL, err := u.Storage.Put(ctx, thumbKey, thumbType, thumb)
	if err != nil {
		_ = u.Storage.Delete(ctx, key)
		return nil, err
	}

	return &core.Photo{
		ID:           id,
		ProjectID:    projectID,
		Type:         photoType,
		URL:          url,
		ThumbnailURL: thumbURL,
		Key:          key,
		ThumbnailKey: thumbKey,
		ContentType:  contentType,
		Size:         int64(len(data)),
		CreatedAt:    u.Clock(),
	}, nil
}

// Remove deletes a photo's objects. Both deletes are attempted.
func (u *Uploader) Remove(ctx context.Context, photo core.Photo) error {
	var errs []error
	for _, key := range []string{photo.Key, photo.ThumbnailKey} {
		if strings.TrimSpace(key) == "" {
			continue
		}
		if err := u.Storage.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
