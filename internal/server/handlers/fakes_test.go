package handlers

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/store"
)

type memMessages struct {
	mu        sync.Mutex
	messages  []core.ContactMessage
	insertErr error
}

func (m *memMessages) InsertContactMessage(ctx context.Context, msg *core.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memMessages) MarkContactMessageNotified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].Notified = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memMessages) all() []core.ContactMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []core.ContactMessage
	err  error
}

func (n *recordingNotifier) Channel() string { return "test" }

func (n *recordingNotifier) Notify(ctx context.Context, msg core.ContactMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]core.User
}

func newMemUsers(users ...core.User) *memUsers {
	m := &memUsers{users: map[string]core.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) taken(username, exceptID string) bool {
	for _, u := range m.users {
		if u.ID != exceptID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

func (m *memUsers) CreateUser(ctx context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(user.Username, "") {
		return store.ErrConflict
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) UpdateUser(ctx context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	if m.taken(user.Username, user.ID) {
		return store.ErrConflict
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) GetUser(ctx context.Context, id string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) ListUsers(ctx context.Context) ([]core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b core.User) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

type memProjects struct {
	mu       sync.Mutex
	projects map[string]*core.Project
}

func newMemProjects() *memProjects {
	return &memProjects{projects: map[string]*core.Project{}}
}

func (m *memProjects) CreateProject(ctx context.Context, project *core.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *memProjects) UpdateProject(ctx context.Context, project *core.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[project.ID]
	if !ok {
		return store.ErrNotFound
	}
	p.Title, p.Location, p.Description = project.Title, project.Location, project.Description
	return nil
}

func (m *memProjects) DeleteProject(ctx context.Context, id string) ([]core.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.projects, id)
	photos := slices.Clone(p.Photos)
	for _, extra := range []*core.Photo{p.BeforePhoto, p.AfterPhoto} {
		if extra != nil {
			photos = append(photos, *extra)
		}
	}
	return photos, nil
}

func (m *memProjects) GetProject(ctx context.Context, id string) (*core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	cp.Photos = slices.Clone(p.Photos)
	return &cp, nil
}

func (m *memProjects) ListProjects(ctx context.Context) ([]core.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memProjects) AddPhoto(ctx context.Context, photo *core.Photo) (*core.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[photo.ProjectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var replaced *core.Photo
	switch photo.Type {
	case core.PhotoBefore:
		replaced, p.BeforePhoto = p.BeforePhoto, photo
	case core.PhotoAfter:
		replaced, p.AfterPhoto = p.AfterPhoto, photo
	default:
		photo.Position = len(p.Photos)
		p.Photos = append(p.Photos, *photo)
	}
	return replaced, nil
}

func (m *memProjects) DeletePhoto(ctx context.Context, projectID, photoID string) (*core.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i, ph := range p.Photos {
		if ph.ID == photoID {
			p.Photos = slices.Delete(p.Photos, i, i+1)
			return &ph, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memProjects) ReorderPhotos(ctx context.Context, projectID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return store.ErrNotFound
	}
	byID := map[string]core.Photo{}
	for _, ph := range p.Photos {
		byID[ph.ID] = ph
	}
	reordered := make([]core.Photo, 0, len(p.Photos))
	for _, id := range ids {
		ph, ok := byID[id]
		if !ok {
			return store.ErrUnknownPhoto
		}
		if ph.Position < 0 {
			continue
		}
		reordered = append(reordered, ph)
		ph.Position = -1
		byID[id] = ph
	}
	// Unlisted photos keep their relative order at the end.
	for _, ph := range p.Photos {
		if byID[ph.ID].Position >= 0 {
			reordered = append(reordered, ph)
		}
	}
	for i := range reordered {
		reordered[i].Position = i
	}
	p.Photos = reordered
	return nil
}

// memObjects is an in-memory media.Storage.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Backend() string { return "memory" }

func (m *memObjects) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = data
	return "/media/" + key, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return errors.New("missing object")
	}
	delete(m.objects, key)
	return nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
