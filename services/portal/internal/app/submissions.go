package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/pkg/storage"
)

// Upload is one attached file. Size may be -1 when unknown.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmissionInput is the full submission form.
type SubmissionInput struct {
	Title           string
	Description     string
	MainZip         *Upload
	Cover           *Upload
	Previews        []Upload
	SplinePublicURL string
	SplineViewerURL string
	Tags            string
	Polycount       *int64
	HasTextures     bool
	Rigging         bool
	Animated        bool
	Interactivity   bool
	NotesToReviewer string
}

const cleanupTimeout = 30 * time.Second

// Submit uploads the attached assets and records a pending submission owned by
// owner. Uploads run main archive, then cover, then previews concurrently; the
// first failure stops the sequence and every object already written is deleted.
// Only the first MaxPreviewFiles previews are used.
func (a *App) Submit(ctx context.Context, owner domain.User, in SubmissionInput) (sub domain.Submission, err error) {
	defer func() { a.metrics.Submission("full", err) }()

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return domain.Submission{}, ErrTitleAndDescriptionRequired
	}
	now := a.now().UTC()
	sub = domain.Submission{
		ID:              util.NewID(),
		OwnerID:         owner.ID,
		AuthorEmail:     owner.Email,
		Title:           title,
		Description:     description,
		SplinePublicURL: strings.TrimSpace(in.SplinePublicURL),
		SplineViewerURL: strings.TrimSpace(in.SplineViewerURL),
		Tags:            strings.TrimSpace(in.Tags),
		Polycount:       in.Polycount,
		HasTextures:     in.HasTextures,
		Rigging:         in.Rigging,
		Animated:        in.Animated,
		Interactivity:   in.Interactivity,
		NotesToReviewer: strings.TrimSpace(in.NotesToReviewer),
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var written []string
	defer func() {
		if err != nil {
			a.deleteObjects(ctx, written)
		}
	}()

	if in.MainZip != nil {
		key := storage.SubmissionKey(storage.KindMainZip, title, sub.ID, in.MainZip.Filename)
		if err := a.putObject(ctx, key, *in.MainZip); err != nil {
			return domain.Submission{}, fmt.Errorf("upload main archive: %w", err)
		}
		written = append(written, key)
		sub.MainZipPath = key
	}
	if in.Cover != nil {
		key := storage.SubmissionKey(storage.KindCover, title, sub.ID, in.Cover.Filename)
		if err := a.putObject(ctx, key, *in.Cover); err != nil {
			return domain.Submission{}, fmt.Errorf("upload cover image: %w", err)
		}
		written = append(written, key)
		sub.CoverImagePath = key
	}
	if previews := in.Previews; len(previews) > 0 {
		if len(previews) > domain.MaxPreviewFiles {
			previews = previews[:domain.MaxPreviewFiles]
		}
		keys, err := a.putPreviews(ctx, title, sub.ID, previews)
		for _, k := range keys {
			if k != "" {
				written = append(written, k)
			}
		}
		if err != nil {
			return domain.Submission{}, fmt.Errorf("upload previews: %w", err)
		}
		sub.PreviewPaths = keys
	}

	if err := a.store.CreateSubmission(sub); err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	return sub, nil
}

// putPreviews uploads previews concurrently. keys[i] belongs to previews[i]
// regardless of completion order; on error, keys holds whatever was written.
func (a *App) putPreviews(ctx context.Context, title, submissionID string, previews []Upload) ([]string, error) {
	names := make([]string, len(previews))
	for i, p := range previews {
		names[i] = p.Filename
	}
	names = storage.UniqueFilenames(names)

	keys := make([]string, len(previews))
	g, gctx := errgroup.WithContext(ctx)
	for i := range previews {
		g.Go(func() error {
			key := storage.SubmissionKey(storage.KindPreview, title, submissionID, names[i])
			if err := a.putObject(gctx, key, previews[i]); err != nil {
				return fmt.Errorf("preview %d (%s): %w", i+1, previews[i].Filename, err)
			}
			keys[i] = key
			return nil
		})
	}
	err := g.Wait()
	return keys, err
}

func (a *App) putObject(ctx context.Context, key string, up Upload) error {
	if up.Body == nil {
		return fmt.Errorf("%s: empty upload", up.Filename)
	}
	contentType := strings.TrimSpace(up.ContentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(up.Filename)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, key, up.Body, up.Size, contentType); err != nil {
		return err
	}
	a.metrics.UploadedBytes(up.Size)
	return nil
}

// deleteObjects removes objects written by a failed submission. Failures are
// logged; the caller already has the original error.
func (a *App) deleteObjects(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	logger := util.LoggerFromContext(ctx)
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if err := a.objects.Delete(cleanupCtx, key); err != nil {
			logger.Warn("orphaned upload left in storage", "key", key, "err", err)
		}
	}
}

// CreateMinimal records a pending submission with only a title and description.
func (a *App) CreateMinimal(owner domain.User, title, description string) (sub domain.Submission, err error) {
	defer func() { a.metrics.Submission("minimal", err) }()

	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return domain.Submission{}, ErrTitleAndDescriptionRequired
	}
	now := a.now().UTC()
	sub = domain.Submission{
		ID:          util.NewID(),
		OwnerID:     owner.ID,
		AuthorEmail: owner.Email,
		Title:       title,
		Description: description,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateSubmission(sub); err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	return sub, nil
}

// ListMine returns the owner's submissions in creation order.
func (a *App) ListMine(owner domain.User) ([]domain.Submission, error) {
	subs, err := a.store.ListSubmissionsByOwner(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	for i := range subs {
		subs[i].AuthorEmail = owner.Email
	}
	return subs, nil
}
