package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/pkg/storage"
	"github.com/mbrodhuber/Submit-and-Review/pkg/store"
)

var reviewRoles = []domain.Role{domain.RoleReviewer, domain.RoleAdmin}

// ListPending returns the review queue, oldest first, with author emails joined.
func (a *App) ListPending(ctx context.Context) ([]domain.Submission, error) {
	subs, err := a.store.ListSubmissionsByStatus(domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	emails := make(map[string]string)
	for i := range subs {
		subs[i].AuthorEmail = a.authorEmail(ctx, emails, subs[i].OwnerID)
	}
	return subs, nil
}

// Load fetches one submission for review.
func (a *App) Load(ctx context.Context, id string) (domain.Submission, error) {
	sub, ok, err := a.store.GetSubmission(strings.TrimSpace(id))
	if err != nil {
		return domain.Submission{}, fmt.Errorf("fetch submission: %w", err)
	}
	if !ok {
		return domain.Submission{}, ErrSubmissionNotFound
	}
	sub.AuthorEmail = a.authorEmail(ctx, nil, sub.OwnerID)
	return sub, nil
}

// Decide records a reviewer's verdict. The status and feedback are written
// together, and only while the submission is still pending. Feedback is optional.
func (a *App) Decide(ctx context.Context, reviewer domain.User, id, outcome, feedback string) (domain.Submission, error) {
	if !reviewer.HasRole(reviewRoles...) {
		return domain.Submission{}, ErrForbidden
	}
	status, ok := domain.ParseOutcome(outcome)
	if !ok {
		return domain.Submission{}, ErrInvalidOutcome
	}
	decision := domain.Decision{
		Outcome:    status,
		Feedback:   strings.TrimSpace(feedback),
		ReviewerID: reviewer.ID,
		DecidedAt:  a.now().UTC(),
	}
	if err := a.store.DecideSubmission(strings.TrimSpace(id), decision); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.Submission{}, ErrSubmissionNotFound
		case errors.Is(err, store.ErrNotPending):
			return domain.Submission{}, ErrAlreadyDecided
		default:
			return domain.Submission{}, fmt.Errorf("record decision: %w", err)
		}
	}
	a.metrics.Decision(string(status))
	util.LoggerFromContext(ctx).Info("submission reviewed", "submission_id", id, "outcome", status, "reviewer_id", reviewer.ID)
	return a.Load(ctx, id)
}

// AssetLinks are time-limited download links for a submission's stored files.
// An empty string means no file or no link could be made.
type AssetLinks struct {
	MainZip  string
	Cover    string
	Previews []string
}

// Links presigns download links for the submission's assets. Failures only
// hide the affected link.
func (a *App) Links(ctx context.Context, sub domain.Submission) AssetLinks {
	links := AssetLinks{
		MainZip: a.presign(ctx, sub.MainZipPath),
		Cover:   a.presign(ctx, sub.CoverImagePath),
	}
	if len(sub.PreviewPaths) > 0 {
		links.Previews = make([]string, len(sub.PreviewPaths))
		for i, key := range sub.PreviewPaths {
			links.Previews[i] = a.presign(ctx, key)
		}
	}
	return links
}

func (a *App) presign(ctx context.Context, key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	url, err := a.objects.PresignGet(ctx, key, a.presignTTL)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			util.LoggerFromContext(ctx).Warn("presign asset failed", "key", key, "err", err)
		}
		return ""
	}
	return url
}

// authorEmail looks up an owner's email, memoising in cache when non-nil.
// Lookup failures leave the email blank.
func (a *App) authorEmail(ctx context.Context, cache map[string]string, ownerID string) string {
	if email, ok := cache[ownerID]; ok {
		return email
	}
	user, found, err := a.store.GetUserByID(ownerID)
	email := ""
	switch {
	case err != nil:
		util.LoggerFromContext(ctx).Warn("author lookup failed", "user_id", ownerID, "err", err)
	case found:
		email = user.Email
	}
	if cache != nil {
		cache[ownerID] = email
	}
	return email
}
