package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSubmissionKey(t *testing.T) {
	const id = "3f2a9c1e-77b0-4d7e-9a51-0c6c2b1d9e00"
	cases := []struct {
		kind     Kind
		title    string
		id       string
		filename string
		want     string
	}{
		{KindMainZip, "Low Poly Fox", id, "fox.zip", "main_zips/low-poly-fox-3f2a9c1e/fox.zip"},
		{KindCover, "Low Poly Fox", id, "My Cover (1).png", "cover_images/low-poly-fox-3f2a9c1e/My_Cover_1_.png"},
		{KindPreview, "  ", "", "shot.jpg", "previews/untitled/shot.jpg"},
		{KindPreview, "Robot", "", "../../etc/passwd", "previews/robot/passwd"},
		{KindMainZip, "Robot", "", `C:\models\bot.zip`, "main_zips/robot/bot.zip"},
		{KindMainZip, "Robot", "", "", "main_zips/robot/file"},
		{KindMainZip, "Robot", "", "..", "main_zips/robot/file"},
	}
	for _, tc := range cases {
		if got := SubmissionKey(tc.kind, tc.title, tc.id, tc.filename); got != tc.want {
			t.Errorf("SubmissionKey(%q, %q, %q, %q) = %q, want %q", tc.kind, tc.title, tc.id, tc.filename, got, tc.want)
		}
	}
}

func TestUniqueFilenames(t *testing.T) {
	got := UniqueFilenames([]string{"a.png", "b.png", "a.png", "a.png", "a-2.png", "noext", "noext"})
	want := []string{"a.png", "b.png", "a-2.png", "a-3.png", "a-2-2.png", "noext", "noext-2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDiskStorePutPresignDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "/files/")
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()
	key := "previews/robot/shot 1.png"

	if _, err := s.PresignGet(ctx, key, time.Minute); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound before upload, got %v", err)
	}
	if err := s.Put(ctx, key, strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "previews", "robot", "shot 1.png"))
	if err != nil {
		t.Fatalf("open stored file: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	link, err := s.PresignGet(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if link != "/files/previews/robot/shot%201.png" {
		t.Fatalf("unexpected link %q", link)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestDiskStoreStaysUnderRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(filepath.Join(dir, "root"), "")
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	if err := s.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("object escaped the storage root")
	}
	if _, err := os.Stat(filepath.Join(dir, "root", "escape.txt")); err != nil {
		t.Fatalf("expected object under root: %v", err)
	}
	if err := s.Put(context.Background(), "", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}

func TestNewDiskStoreRequiresPath(t *testing.T) {
	if _, err := NewDiskStore(" ", ""); err == nil {
		t.Fatalf("expected error for empty base path")
	}
}
