package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string {
	return "users"
}

type SubmissionModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Description      string `gorm:"type:text;not null"`
	MainZipURL       string
	CoverImageURL    string
	PreviewURLs      datatypes.JSONSlice[string]
	SplinePublicURL  string
	SplineViewerURL  string
	Tags             string
	Polycount        *int64
	HasTextures      bool
	Rigging          bool
	Animated         bool
	Interactivity    bool
	NotesToReviewer  string `gorm:"type:text"`
	Status           string `gorm:"not null;index"`
	ReviewerFeedback string `gorm:"type:text"`
	ReviewedBy       string
	ReviewedAt       *time.Time
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (SubmissionModel) TableName() string {
	return "submissions"
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func submissionToModel(s domain.Submission) SubmissionModel {
	var previews datatypes.JSONSlice[string]
	if len(s.PreviewPaths) > 0 {
		previews = datatypes.JSONSlice[string](append([]string(nil), s.PreviewPaths...))
	}
	return SubmissionModel{
		ID:               s.ID,
		UserID:           s.OwnerID,
		Title:            s.Title,
		Description:      s.Description,
		MainZipURL:       s.MainZipPath,
		CoverImageURL:    s.CoverImagePath,
		PreviewURLs:      previews,
		SplinePublicURL:  s.SplinePublicURL,
		SplineViewerURL:  s.SplineViewerURL,
		Tags:             s.Tags,
		Polycount:        s.Polycount,
		HasTextures:      s.HasTextures,
		Rigging:          s.Rigging,
		Animated:         s.Animated,
		Interactivity:    s.Interactivity,
		NotesToReviewer:  s.NotesToReviewer,
		Status:           string(s.Status),
		ReviewerFeedback: s.ReviewerFeedback,
		ReviewedBy:       s.ReviewedBy,
		ReviewedAt:       s.ReviewedAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func submissionFromModel(m SubmissionModel) domain.Submission {
	var previews []string
	if len(m.PreviewURLs) > 0 {
		previews = append([]string(nil), m.PreviewURLs...)
	}
	return domain.Submission{
		ID:               m.ID,
		OwnerID:          m.UserID,
		Title:            m.Title,
		Description:      m.Description,
		MainZipPath:      m.MainZipURL,
		CoverImagePath:   m.CoverImageURL,
		PreviewPaths:     previews,
		SplinePublicURL:  m.SplinePublicURL,
		SplineViewerURL:  m.SplineViewerURL,
		Tags:             m.Tags,
		Polycount:        m.Polycount,
		HasTextures:      m.HasTextures,
		Rigging:          m.Rigging,
		Animated:         m.Animated,
		Interactivity:    m.Interactivity,
		NotesToReviewer:  m.NotesToReviewer,
		Status:           domain.SubmissionStatus(m.Status),
		ReviewerFeedback: m.ReviewerFeedback,
		ReviewedBy:       m.ReviewedBy,
		ReviewedAt:       m.ReviewedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
