package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Invalid login credentials")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("User already registered")

	// ErrRoleAssignmentFailed means the identity exists but has no role yet.
	ErrRoleAssignmentFailed = errors.New("registration failed: could not assign role")

	ErrForbidden = errors.New("forbidden")

	ErrTitleAndDescriptionRequired = errors.New("title and description required")
	ErrSubmissionNotFound          = errors.New("submission not found")
	ErrInvalidOutcome              = errors.New("outcome must be approved or rejected")
	ErrAlreadyDecided              = errors.New("submission has already been reviewed")

	ErrInvalidRole         = errors.New("role must be author, reviewer or admin")
	ErrUserNotFound        = errors.New("user not found")
	ErrCannotChangeOwnRole = errors.New("cannot change own role")
)
