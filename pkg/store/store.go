package store

import (
	"errors"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

var (
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotPending is returned when a decision targets a submission that was already decided.
	ErrNotPending = errors.New("submission is not pending")
)

// Store defines persistence operations for users and submissions.
type Store interface {
	// users
	CreateUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	// AssignRole is the role-assignment procedure; it is the only way a role changes.
	AssignRole(userID string, role domain.Role) error

	// submissions
	CreateSubmission(domain.Submission) error
	GetSubmission(id string) (domain.Submission, bool, error)
	ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error)
	// ListSubmissionsByStatus returns matches ordered by creation time, oldest first.
	ListSubmissionsByStatus(status domain.SubmissionStatus) ([]domain.Submission, error)
	// DecideSubmission applies a decision in one write, only while the row is pending.
	DecideSubmission(id string, d domain.Decision) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
