package capture

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func TestOnionTargetsFiltersAndCaps(t *testing.T) {
	urls := []string{
		"http://examplemarketonionaddr.onion/",
		"https://example.com/",
		"http://examplemarketonionaddr.onion/",
		"http://exampleforumonionaddr2.onion/board",
		"http://thirdsiteonionaddr333.onion/",
	}

	got := onionTargets(urls, 2)
	if len(got) != 2 {
		t.Fatalf("got %d targets, want 2: %v", len(got), got)
	}
	if got[0] != "http://examplemarketonionaddr.onion/" ||
		got[1] != "http://exampleforumonionaddr2.onion/board" {
		t.Errorf("targets = %v (clearnet and duplicates must be dropped)", got)
	}

	if got := onionTargets([]string{"https://example.com"}, 0); len(got) != 0 {
		t.Errorf("clearnet-only input should yield nothing, got %v", got)
	}
}

func TestScreenshotFilename(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	name := screenshotFilename("http://examplemarketonionaddr.onion/", now)

	pattern := regexp.MustCompile(`^onion_[0-9a-f]{12}_20260830_140509\.png$`)
	if !pattern.MatchString(name) {
		t.Errorf("filename = %q", name)
	}

	// Same URL hashes the same, different URLs do not.
	again := screenshotFilename("http://examplemarketonionaddr.onion/", now)
	other := screenshotFilename("http://exampleforumonionaddr2.onion/", now)
	if name != again {
		t.Error("filename not stable for the same URL")
	}
	if name == other {
		t.Error("distinct URLs collided")
	}
}

func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{Dir: dir})

	stale := filepath.Join(dir, "onion_aaaaaaaaaaaa_20200101_000000.png")
	fresh := filepath.Join(dir, "onion_bbbbbbbbbbbb_20260830_000000.png")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{stale, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	deleted, err := c.CleanupOld(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh screenshot removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("non-png file removed")
	}
}

func TestCleanupOldMissingDir(t *testing.T) {
	c := New(Options{Dir: filepath.Join(t.TempDir(), "never-created")})
	deleted, err := c.CleanupOld(time.Hour)
	if err != nil || deleted != 0 {
		t.Errorf("CleanupOld on missing dir = %d, %v", deleted, err)
	}
}
