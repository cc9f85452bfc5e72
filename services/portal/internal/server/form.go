package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/app"
)

// multipart parts above this size spill to temporary files
const formMemoryBytes = 32 << 20

var errInvalidPolycount = errors.New("polycount must be a whole number")

// parseSubmissionForm reads the multipart submission form. The returned cleanup
// closes the opened parts and removes temporary files; it must be called once
// the input has been consumed.
func (s *Server) parseSubmissionForm(w http.ResponseWriter, r *http.Request) (app.SubmissionInput, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(formMemoryBytes); err != nil {
		return app.SubmissionInput{}, noop, err
	}
	form := r.MultipartForm

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = form.RemoveAll()
	}
	open := func(fh *multipart.FileHeader) (app.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return app.Upload{}, err
		}
		opened = append(opened, f)
		return app.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		}, nil
	}

	in := app.SubmissionInput{
		Title:           r.FormValue("title"),
		Description:     r.FormValue("description"),
		SplinePublicURL: strings.TrimSpace(r.FormValue("splinePublicUrl")),
		SplineViewerURL: strings.TrimSpace(r.FormValue("splineViewerUrl")),
		Tags:            strings.TrimSpace(r.FormValue("tags")),
		HasTextures:     formBool(r.FormValue("hasTextures")),
		Rigging:         formBool(r.FormValue("rigging")),
		Animated:        formBool(r.FormValue("animated")),
		Interactivity:   formBool(r.FormValue("interactivity")),
		NotesToReviewer: strings.TrimSpace(r.FormValue("notesToReviewer")),
	}
	if raw := strings.TrimSpace(r.FormValue("polycount")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			cleanup()
			return app.SubmissionInput{}, noop, errInvalidPolycount
		}
		in.Polycount = &n
	}

	if fh := firstFile(form, "mainZip"); fh != nil {
		up, err := open(fh)
		if err != nil {
			cleanup()
			return app.SubmissionInput{}, noop, err
		}
		in.MainZip = &up
	}
	if fh := firstFile(form, "coverImage"); fh != nil {
		up, err := open(fh)
		if err != nil {
			cleanup()
			return app.SubmissionInput{}, noop, err
		}
		in.Cover = &up
	}
	for i, fh := range form.File["previews"] {
		if i == domain.MaxPreviewFiles {
			break
		}
		if fh.Filename == "" {
			continue
		}
		up, err := open(fh)
		if err != nil {
			cleanup()
			return app.SubmissionInput{}, noop, err
		}
		in.Previews = append(in.Previews, up)
	}
	return in, cleanup, nil
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	files := form.File[field]
	if len(files) == 0 || files[0].Filename == "" {
		return nil
	}
	return files[0]
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}
