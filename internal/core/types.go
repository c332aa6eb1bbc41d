package core

import "time"

// Role is a user's permission level in the admin API.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an admin panel account. PasswordHash never leaves the server.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	Role               Role      `json:"role"`
	MustChangePassword bool      `json:"mustChangePassword"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PhotoType is the slot a photo occupies on a project.
type PhotoType string

const (
	PhotoGallery PhotoType = "gallery"
	PhotoBefore  PhotoType = "before"
	PhotoAfter   PhotoType = "after"
)

func (t PhotoType) Valid() bool {
	return t == PhotoGallery || t == PhotoBefore || t == PhotoAfter
}

// Photo is an uploaded image and its thumbnail.
type Photo struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	Type         PhotoType `json:"type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Key          string    `json:"-"`
	ThumbnailKey string    `json:"-"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Project is a gallery entry: ordered gallery photos plus optional
// before/after photos.
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Photos      []Photo   `json:"photos"`
	BeforePhoto *Photo    `json:"beforePhoto"`
	AfterPhoto  *Photo    `json:"afterPhoto"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ContactMessage is a delivered contact form submission.
type ContactMessage struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Service    string    `json:"service"`
	Message    string    `json:"message"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Language   string    `json:"language,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
	Timestamp  string    `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`
	Notified   bool      `json:"notified"`
}
