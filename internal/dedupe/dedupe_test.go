// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package dedupe

import (
	"context"
	"testing"

	"github.com/chrisorr0264/cleo2/internal/fingerprint"
	"github.com/chrisorr0264/cleo2/internal/models"
)

type fakeCatalog struct {
	tensorCandidates []models.ImageTensor
	movieCandidates  []models.MovieHash
}

func (f *fakeCatalog) FetchTensorCandidatesByHash(ctx context.Context, hashPIL, hashCV2 string) ([]models.ImageTensor, error) {
	return f.tensorCandidates, nil
}

func (f *fakeCatalog) FetchMovieCandidatesByHash(ctx context.Context, mediaHash string) ([]models.MovieHash, error) {
	return f.movieCandidates, nil
}

func solidTensor(v byte) []byte {
	t := make([]byte, tensorBytes)
	for i := range t {
		t[i] = v
	}
	return t
}

func TestMatchImageNoCandidatesReturnsNil(t *testing.T) {
	m := New(&fakeCatalog{}, 10, 0)
	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{
		TensorPIL: solidTensor(1), TensorCV2: solidTensor(1), HashPIL: "h1", HashCV2: "h2",
	})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestMatchImageExactTensorIsDuplicateAtMSEZero(t *testing.T) {
	cand := models.ImageTensor{Filename: "A.jpg", TensorPIL: solidTensor(7), TensorCV2: solidTensor(7)}
	m := New(&fakeCatalog{tensorCandidates: []models.ImageTensor{cand}}, 10, 0)

	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{
		TensorPIL: solidTensor(7), TensorCV2: solidTensor(7),
	})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a duplicate match")
	}
	if got.MinMSE != 0 {
		t.Errorf("MinMSE = %v, want 0", got.MinMSE)
	}
	if got.Filename != "A.jpg" {
		t.Errorf("Filename = %s, want A.jpg", got.Filename)
	}
}

func TestMatchImageAboveThresholdIsNotADuplicate(t *testing.T) {
	cand := models.ImageTensor{Filename: "A.jpg", TensorPIL: solidTensor(0), TensorCV2: solidTensor(0)}
	m := New(&fakeCatalog{tensorCandidates: []models.ImageTensor{cand}}, 10, 1.0)

	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{
		TensorPIL: solidTensor(255), TensorCV2: solidTensor(255),
	})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match above threshold, got %+v", got)
	}
}

func TestMatchImageThresholdIsInclusive(t *testing.T) {
	incoming := solidTensor(10)
	stored := make([]byte, tensorBytes)
	copy(stored, incoming)
	// perturb a single byte so MSE is small but nonzero and exactly
	// computable: one differing byte of delta 3 => sum=9, mse=9/7500.
	stored[0] = 13

	cand := models.ImageTensor{Filename: "A.jpg", TensorPIL: stored, TensorCV2: stored}
	mse := 9.0 / float64(tensorBytes)
	m := New(&fakeCatalog{tensorCandidates: []models.ImageTensor{cand}}, 10, mse)

	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{TensorPIL: incoming, TensorCV2: incoming})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected MSE at exactly threshold to count as duplicate")
	}
}

func TestMatchImageMismatchedLengthSkipsCandidate(t *testing.T) {
	cand := models.ImageTensor{Filename: "short.jpg", TensorPIL: []byte{1, 2, 3}, TensorCV2: []byte{1, 2, 3}}
	m := New(&fakeCatalog{tensorCandidates: []models.ImageTensor{cand}}, 10, 1000)

	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{
		TensorPIL: solidTensor(1), TensorCV2: solidTensor(1),
	})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected mismatched-length candidate to be skipped, got %+v", got)
	}
}

func TestMatchMovieExactHashIsDuplicate(t *testing.T) {
	m := New(&fakeCatalog{movieCandidates: []models.MovieHash{{Filename: "clip.mp4", MediaHash: "abc"}}}, 10, 0)

	got, err := m.MatchMovie(context.Background(), "abc")
	if err != nil {
		t.Fatalf("MatchMovie error: %v", err)
	}
	if got == nil || got.Filename != "clip.mp4" {
		t.Fatalf("expected duplicate match on clip.mp4, got %+v", got)
	}
}

func TestMatchMovieNoCandidatesReturnsNil(t *testing.T) {
	m := New(&fakeCatalog{}, 10, 0)
	got, err := m.MatchMovie(context.Background(), "abc")
	if err != nil {
		t.Fatalf("MatchMovie error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestRotate90IsInvolutiveOverFourApplications(t *testing.T) {
	original := solidTensor(0)
	for i := range original {
		original[i] = byte(i % 251)
	}

	rotated := original
	for i := 0; i < 4; i++ {
		rotated = rotate90(rotated)
	}
	for i := range original {
		if rotated[i] != original[i] {
			t.Fatalf("expected four 90-degree rotations to return to the original tensor")
		}
	}
}

func TestDuplicateFilename(t *testing.T) {
	got := DuplicateFilename("B", "A", ".jpg", 0.0, true)
	if got != "B-DUP_OF_A (mse-0.0).jpg" {
		t.Errorf("DuplicateFilename = %q", got)
	}

	got = DuplicateFilename("B", "A", ".jpg", 0.25, true)
	if got != "B-DUP_OF_A (mse-0.25).jpg" {
		t.Errorf("DuplicateFilename = %q", got)
	}

	gotMovie := DuplicateFilename("B", "A", ".mp4", 0, false)
	if gotMovie != "B-DUP_OF_A.mp4" {
		t.Errorf("DuplicateFilename (movie) = %q", gotMovie)
	}
}

func TestMatchImageRotatedCopyIsDuplicateAtMSEZero(t *testing.T) {
	incoming := make([]byte, tensorBytes)
	for i := range incoming {
		incoming[i] = byte(i % 251)
	}
	stored := rotate90(incoming)

	cand := models.ImageTensor{Filename: "A.jpg", TensorPIL: stored, TensorCV2: stored}
	m := New(&fakeCatalog{tensorCandidates: []models.ImageTensor{cand}}, 10, 0)

	got, err := m.MatchImage(context.Background(), &fingerprint.Tensors{TensorPIL: incoming, TensorCV2: incoming})
	if err != nil {
		t.Fatalf("MatchImage error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected rotated copy to match")
	}
	if got.MinMSE != 0 {
		t.Errorf("MinMSE = %v, want 0 under rotation", got.MinMSE)
	}
}
