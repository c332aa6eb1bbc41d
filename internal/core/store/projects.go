package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/padillasconcrete/siteapi/internal/core"
)

const photoColumns = `id, project_id, type, url, COALESCE(thumbnail_url, ''), object_key,
	COALESCE(thumbnail_key, ''), content_type, size, position, created_at`

// ErrUnknownPhoto is returned by ReorderPhotos for ids outside the project's gallery.
var ErrUnknownPhoto = errors.New("photo does not belong to project gallery")

func (s *Store) CreateProject(ctx context.Context, project *core.Project) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if project == nil || strings.TrimSpace(project.ID) == "" {
		return errors.New("project id is required")
	}

	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Photos == nil {
		project.Photos = []core.Photo{}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO projects (id, title, location, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, project.ID, project.Title, project.Location, project.Description, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// UpdateProject saves the project's text fields.
func (s *Store) UpdateProject(ctx context.Context, project *core.Project) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if project == nil {
		return errors.New("project is required")
	}

	project.UpdatedAt = time.Now().UTC()
	result, err := s.DB.ExecContext(ctx, `
		UPDATE projects SET title = ?, location = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, project.Title, project.Location, project.Description, project.UpdatedAt.UnixMilli(), project.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project and its photo rows, returning the photos
// so their objects can be removed from media storage.
func (s *Store) DeleteProject(ctx context.Context, id string) ([]core.Photo, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var removed []core.Photo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		photos, err := queryPhotos(ctx, tx, `WHERE project_id = ?`, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("delete project photos: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return ErrNotFound
		}
		removed = photos
		return nil
	})
	return removed, err
}

// GetProject returns a project with its photos attached.
func (s *Store) GetProject(ctx context.Context, id string) (*core.Project, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, title, location, description, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch project: %w", err)
	}

	photos, err := queryPhotos(ctx, s.DB, `WHERE project_id = ?`, id)
	if err != nil {
		return nil, err
	}
	attachPhotos(project, photos)
	return project, nil
}

// ListProjects returns every project, newest first, with photos attached.
func (s *Store) ListProjects(ctx context.Context) ([]core.Project, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, title, location, description, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	projects := []core.Project{}
	index := map[string]int{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan projects: %w", err)
		}
		index[project.ID] = len(projects)
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	_ = rows.Close()

	photos, err := queryPhotos(ctx, s.DB, ``)
	if err != nil {
		return nil, err
	}
	grouped := map[string][]core.Photo{}
	for _, photo := range photos {
		grouped[photo.ProjectID] = append(grouped[photo.ProjectID], photo)
	}
	for id, i := range index {
		attachPhotos(&projects[i], grouped[id])
	}
	return projects, nil
}

// AddPhoto stores a photo row. Gallery photos are appended after the last
// position; a before or after photo replaces the current one, which is
// returned so its objects can be deleted.
func (s *Store) AddPhoto(ctx context.Context, photo *core.Photo) (*core.Photo, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if photo == nil || strings.TrimSpace(photo.ID) == "" {
		return nil, errors.New("photo id is required")
	}
	if !photo.Type.Valid() {
		return nil, fmt.Errorf("invalid photo type %q", photo.Type)
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = time.Now().UTC()
	}

	var replaced *core.Photo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, photo.ProjectID).Scan(&exists); err != nil {
			return fmt.Errorf("fetch project: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		if photo.Type == core.PhotoGallery {
			var next sql.NullInt64
			if err := tx.QueryRowContext(ctx, `
				SELECT MAX(position) + 1 FROM photos WHERE project_id = ? AND type = ?
			`, photo.ProjectID, string(core.PhotoGallery)).Scan(&next); err != nil {
				return fmt.Errorf("next photo position: %w", err)
			}
			photo.Position = int(next.Int64)
		} else {
			existing, err := queryPhotos(ctx, tx, `WHERE project_id = ? AND type = ?`, photo.ProjectID, string(photo.Type))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				replaced = &existing[0]
				if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE project_id = ? AND type = ?`, photo.ProjectID, string(photo.Type)); err != nil {
					return fmt.Errorf("replace %s photo: %w", photo.Type, err)
				}
			}
			photo.Position = 0
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO photos (id, project_id, type, url, thumbnail_url, object_key, thumbnail_key,
				content_type, size, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, photo.ID, photo.ProjectID, string(photo.Type), photo.URL, photo.ThumbnailURL, photo.Key,
			photo.ThumbnailKey, photo.ContentType, photo.Size, photo.Position, photo.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		return touchProject(ctx, tx, photo.ProjectID)
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// DeletePhoto removes one photo from a project and returns it.
func (s *Store) DeletePhoto(ctx context.Context, projectID, photoID string) (*core.Photo, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var removed *core.Photo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		photos, err := queryPhotos(ctx, tx, `WHERE project_id = ? AND id = ?`, projectID, photoID)
		if err != nil {
			return err
		}
		if len(photos) == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, photoID); err != nil {
			return fmt.Errorf("delete photo: %w", err)
		}
		removed = &photos[0]
		return touchProject(ctx, tx, projectID)
	})
	return removed, err
}

// ReorderPhotos assigns gallery positions in the order given. Gallery photos
// not listed keep their relative order after the listed ones.
func (s *Store) ReorderPhotos(ctx context.Context, projectID string, ids []string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		gallery, err := queryPhotos(ctx, tx, `WHERE project_id = ? AND type = ?`, projectID, string(core.PhotoGallery))
		if err != nil {
			return err
		}

		known := make(map[string]bool, len(gallery))
		for _, photo := range gallery {
			known[photo.ID] = true
		}

		order := make([]string, 0, len(gallery))
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if !known[id] {
				return fmt.Errorf("%w: %s", ErrUnknownPhoto, id)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			order = append(order, id)
		}
		for _, photo := range gallery {
			if !seen[photo.ID] {
				order = append(order, photo.ID)
			}
		}

		for position, id := range order {
			if _, err := tx.ExecContext(ctx, `UPDATE photos SET position = ? WHERE id = ?`, position, id); err != nil {
				return fmt.Errorf("reorder photos: %w", err)
			}
		}
		return touchProject(ctx, tx, projectID)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func touchProject(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC().UnixMilli(), id); err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPhotos(ctx context.Context, q queryer, where string, args ...any) ([]core.Photo, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+photoColumns+` FROM photos `+where+` ORDER BY position, created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	photos := []core.Photo{}
	for rows.Next() {
		var (
			photo     core.Photo
			photoType string
			createdAt int64
		)
		if err := rows.Scan(&photo.ID, &photo.ProjectID, &photoType, &photo.URL, &photo.ThumbnailURL, &photo.Key,
			&photo.ThumbnailKey, &photo.ContentType, &photo.Size, &photo.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scan photos: %w", err)
		}
		photo.Type = core.PhotoType(photoType)
		photo.CreatedAt = time.UnixMilli(createdAt).UTC()
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return photos, nil
}

func scanProject(row rowScanner) (*core.Project, error) {
	var (
		project   core.Project
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&project.ID, &project.Title, &project.Location, &project.Description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	project.CreatedAt = time.UnixMilli(createdAt).UTC()
	project.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	project.Photos = []core.Photo{}
	return &project, nil
}

func attachPhotos(project *core.Project, photos []core.Photo) {
	project.Photos = []core.Photo{}
	project.BeforePhoto = nil
	project.AfterPhoto = nil
	for i := range photos {
		photo := photos[i]
		switch photo.Type {
		case core.PhotoBefore:
			project.BeforePhoto = &photo
		case core.PhotoAfter:
			project.AfterPhoto = &photo
		default:
			project.Photos = append(project.Photos, photo)
		}
	}
}
