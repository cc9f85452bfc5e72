package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// Roles lists every assignable role in display order.
var Roles = []Role{RoleAuthor, RoleReviewer, RoleAdmin}

// ParseRole maps user input onto a known role.
func ParseRole(role string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAuthor):
		return RoleAuthor, true
	case string(RoleReviewer):
		return RoleReviewer, true
	case string(RoleAdmin):
		return RoleAdmin, true
	default:
		return "", false
	}
}

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// MaxPreviewFiles caps the preview media attached to one submission.
const MaxPreviewFiles = 5

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasRole reports whether the user holds one of roles.
func (u User) HasRole(roles ...Role) bool {
	if u.Role == "" {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

type Submission struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"ownerId"`
	AuthorEmail      string           `json:"authorEmail,omitempty"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	MainZipPath      string           `json:"mainZipPath,omitempty"`
	CoverImagePath   string           `json:"coverImagePath,omitempty"`
	PreviewPaths     []string         `json:"previewPaths,omitempty"`
	SplinePublicURL  string           `json:"splinePublicUrl,omitempty"`
	SplineViewerURL  string           `json:"splineViewerUrl,omitempty"`
	Tags             string           `json:"tags,omitempty"`
	Polycount        *int64           `json:"polycount,omitempty"`
	HasTextures      bool             `json:"hasTextures"`
	Rigging          bool             `json:"rigging"`
	Animated         bool             `json:"animated"`
	Interactivity    bool             `json:"interactivity"`
	NotesToReviewer  string           `json:"notesToReviewer,omitempty"`
	Status           SubmissionStatus `json:"status"`
	ReviewerFeedback string           `json:"reviewerFeedback,omitempty"`
	ReviewedBy       string           `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time       `json:"reviewedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Decision is the reviewer's verdict on a pending submission.
type Decision struct {
	Outcome    SubmissionStatus
	Feedback   string
	ReviewerID string
	DecidedAt  time.Time
}
