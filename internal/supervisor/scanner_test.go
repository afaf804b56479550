// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrisorr0264/cleo2/internal/models"
)

func TestClassify(t *testing.T) {
	s := NewIntakeScanner("", []string{"jpg", "PNG"}, []string{"mp4"}, time.Second, NewQueue())

	tests := []struct {
		name     string
		wantType models.MediaType
		wantOK   bool
	}{
		{"photo.jpg", models.MediaTypeImage, true},
		{"photo.PNG", models.MediaTypeImage, true},
		{"clip.mp4", models.MediaTypeMovie, true},
		{"readme.txt", "", false},
		{"noextension", "", false},
	}

	for _, tt := range tests {
		mediaType, ok := s.classify(tt.name)
		if ok != tt.wantOK || mediaType != tt.wantType {
			t.Errorf("classify(%q) = (%q, %v), want (%q, %v)", tt.name, mediaType, ok, tt.wantType, tt.wantOK)
		}
	}
}

func TestScanOnceEnqueuesAcceptedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.mp4", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	queue := NewQueue()
	s := NewIntakeScanner(dir, []string{"jpg"}, []string{"mp4"}, time.Second, queue)
	s.scanOnce()

	if queue.Len() != 2 {
		t.Fatalf("expected 2 accepted entries, got %d", queue.Len())
	}
}

func TestScanOnceDoesNotReenqueueClaimedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	queue := NewQueue()
	s := NewIntakeScanner(dir, []string{"jpg"}, nil, time.Second, queue)
	s.scanOnce()
	s.scanOnce()

	if queue.Len() != 1 {
		t.Fatalf("expected exactly 1 entry after two scans of the same file, got %d", queue.Len())
	}
}
