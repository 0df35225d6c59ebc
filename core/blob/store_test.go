package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"minifm/model"
)

func TestExtension(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"song.mp3", "mp3"},
		{"Song.MP3", "mp3"},
		{"track.FLAC", "flac"},
		{"archive.tar.gz", "gz"},
		{"noextension", "mp3"},
		{"", "mp3"},
	}
	for _, c := range cases {
		if got := Extension(c.name); got != c.want {
			t.Errorf("Extension(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestAllocateCreatesDirAndDerivesPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "files")
	store := NewStore(dir)

	id, target, err := store.Allocate("song.flac")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty id")
	}
	if !filepath.IsAbs(target) {
		t.Fatalf("expected absolute target path, got %q", target)
	}
	if !strings.HasSuffix(target, id+".flac") {
		t.Fatalf("target %q does not end in <id>.flac", target)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected managed directory to exist: %v", err)
	}
}

func TestAllocateGeneratesUniqueIDs(t *testing.T) {
	store := NewStore(t.TempDir())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _, err := store.Allocate("song.mp3")
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestWriteCopiesBytes(t *testing.T) {
	store := NewStore(t.TempDir())

	_, target, err := store.Allocate("song.mp3")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	payload := []byte("not really audio but good enough")
	n, err := store.Write(bytes.NewReader(payload), target)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Write reported %d bytes, want %d", n, len(payload))
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("stored bytes differ from upload")
	}
}

func TestPathResolution(t *testing.T) {
	store := NewStore(t.TempDir())

	m := model.Music{ID: "x", FilePath: "/data/files/x.mp3"}
	if got := store.AudioPath(m); got != "/data/files/x.mp3" {
		t.Fatalf("AudioPath = %q", got)
	}
	if _, ok := store.CoverPath(m); ok {
		t.Fatalf("expected no cover path for record without cover")
	}

	m.CoverPath = "/data/files/x.jpg"
	cover, ok := store.CoverPath(m)
	if !ok || cover != "/data/files/x.jpg" {
		t.Fatalf("CoverPath = %q, %v", cover, ok)
	}
}
