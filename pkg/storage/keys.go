package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// Kind is the top-level folder an uploaded asset is filed under.
type Kind string

const (
	KindMainZip Kind = "main_zips"
	KindCover   Kind = "cover_images"
	KindPreview Kind = "previews"
)

// DefaultBucket is the bucket submission assets live in.
const DefaultBucket = "submissions"

// SubmissionKey builds "<kind>/<title-slug>-<id prefix>/<filename>" for an uploaded
// asset. The id suffix keeps same-titled submissions from sharing a folder.
func SubmissionKey(kind Kind, title, submissionID, filename string) string {
	titleSeg := slug.Make(title)
	if titleSeg == "" {
		titleSeg = "untitled"
	}
	if id := SanitizeFilename(strings.ReplaceAll(submissionID, "-", "")); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		titleSeg += "-" + strings.ToLower(id)
	}
	return path.Join(string(kind), titleSeg, baseFilename(filename))
}

// SanitizeFilename keeps ASCII letters, digits, '.', '-' and '_', collapsing
// everything else into single underscores.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// UniqueFilenames renames repeated names in a batch ("a.png", "a.png" becomes
// "a.png", "a-2.png") so every entry maps to its own key. Order is preserved.
func UniqueFilenames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, raw := range names {
		name := baseFilename(raw)
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

func baseFilename(raw string) string {
	name := SanitizeFilename(filepath.Base(strings.ReplaceAll(raw, "\\", "/")))
	if strings.Trim(name, ".") == "" {
		return "file"
	}
	return name
}
