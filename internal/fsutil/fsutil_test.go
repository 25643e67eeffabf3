package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
}

func TestDiscoverImagesFiltersAndOrders(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "c.txt", "d.JPEG", "notes.md"} {
		touch(t, filepath.Join(dir, name))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := DiscoverImages(dir)
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "d.JPEG"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d: %v", len(want), len(files), files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("expected %s at index %d, got %s", want[i], i, files[i])
		}
	}
}

func TestDiscoverImagesEmptyDirectory(t *testing.T) {
	files, err := DiscoverImages(t.TempDir())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestDiscoverImagesMissingDirectory(t *testing.T) {
	if _, err := DiscoverImages(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestIsImageFile(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":       true,
		"a.JPG":       true,
		"b.jpeg":      true,
		"c.png":       true,
		"c.PNG":       true,
		"d.tif":       false,
		"e.txt":       false,
		"noextension": false,
	}
	for name, want := range cases {
		if got := IsImageFile(name); got != want {
			t.Fatalf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestListImagesRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	touch(t, filepath.Join(dir, "top.jpg"))
	touch(t, filepath.Join(sub, "deep.png"))
	touch(t, filepath.Join(sub, "skip.raw"))

	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 images, got %v", files)
	}
}
