// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrisorr0264/cleo2/internal/logging"
	"github.com/chrisorr0264/cleo2/internal/models"
)

// IntakeScanner is the suture service that periodically scans the intake
// directory and feeds accepted files to the shared Queue.
type IntakeScanner struct {
	intakeDir    string
	imageExts    map[string]struct{}
	movieExts    map[string]struct{}
	scanInterval time.Duration
	queue        *Queue
}

// NewIntakeScanner builds a scanner over intakeDir. imageExts/movieExts
// are extension allowlists, normalized to lowercase dotless form.
func NewIntakeScanner(intakeDir string, imageExts, movieExts []string, scanInterval time.Duration, queue *Queue) *IntakeScanner {
	return &IntakeScanner{
		intakeDir:    intakeDir,
		imageExts:    toExtSet(imageExts),
		movieExts:    toExtSet(movieExts),
		scanInterval: scanInterval,
		queue:        queue,
	}
}

func toExtSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

// classify returns the media type for a filename's extension, or ("",
// false) if the extension isn't in either allowlist.
func (s *IntakeScanner) classify(name string) (models.MediaType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return "", false
	}
	if _, ok := s.imageExts[ext]; ok {
		return models.MediaTypeImage, true
	}
	if _, ok := s.movieExts[ext]; ok {
		return models.MediaTypeMovie, true
	}
	return "", false
}

// Serve implements suture.Service. It scans once immediately, then once per
// scanInterval, until ctx is canceled.
func (s *IntakeScanner) Serve(ctx context.Context) error {
	s.scanOnce()

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

func (s *IntakeScanner) scanOnce() {
	entries, err := os.ReadDir(s.intakeDir)
	if err != nil {
		logging.Warn().Str("directory", s.intakeDir).Err(err).Msg("failed to scan intake directory")
		return
	}

	accepted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mediaType, ok := s.classify(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(s.intakeDir, entry.Name())
		if s.queue.Push(QueueEntry{Path: path, MediaType: mediaType}) {
			accepted++
		}
	}

	if accepted > 0 {
		logging.Debug().Int("accepted", accepted).Msg("intake scan enqueued new files")
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *IntakeScanner) String() string {
	return "intake-scanner"
}
