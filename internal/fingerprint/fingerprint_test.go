// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 3), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
}

func TestFingerprintImageProducesTwoTensorsOfCorrectLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeTestJPEG(t, path, 20, 30)

	tensors, err := FingerprintImage(path)
	if err != nil {
		t.Fatalf("FingerprintImage error: %v", err)
	}
	if len(tensors.TensorPIL) != tensorBytes {
		t.Errorf("TensorPIL length = %d, want %d", len(tensors.TensorPIL), tensorBytes)
	}
	if len(tensors.TensorCV2) != tensorBytes {
		t.Errorf("TensorCV2 length = %d, want %d", len(tensors.TensorCV2), tensorBytes)
	}

	wantHashA := md5.Sum(tensors.TensorPIL)
	if tensors.HashPIL != hex.EncodeToString(wantHashA[:]) {
		t.Errorf("HashPIL does not match md5 of TensorPIL")
	}
	wantHashB := md5.Sum(tensors.TensorCV2)
	if tensors.HashCV2 != hex.EncodeToString(wantHashB[:]) {
		t.Errorf("HashCV2 does not match md5 of TensorCV2")
	}

	if tensors.Width != 20 || tensors.Height != 30 {
		t.Errorf("source dimensions = %dx%d, want 20x30", tensors.Width, tensors.Height)
	}
}

func TestFingerprintImageIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeTestJPEG(t, path, 64, 64)

	first, err := FingerprintImage(path)
	if err != nil {
		t.Fatalf("FingerprintImage error: %v", err)
	}
	second, err := FingerprintImage(path)
	if err != nil {
		t.Fatalf("FingerprintImage error: %v", err)
	}

	if first.HashPIL != second.HashPIL || first.HashCV2 != second.HashCV2 {
		t.Errorf("expected identical fingerprints across repeated calls on the same file")
	}
}

func TestFingerprintImageMissingFileErrors(t *testing.T) {
	if _, err := FingerprintImage("/nonexistent/path.jpg"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestFingerprintMovieStreamsWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	content := bytes.Repeat([]byte{0xAB}, 20*1024+17) // exercise multiple 8 KiB chunks
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := FingerprintMovie(path)
	if err != nil {
		t.Fatalf("FingerprintMovie error: %v", err)
	}

	want := md5.Sum(content)
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("FingerprintMovie = %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestFingerprintMovieMissingFileErrors(t *testing.T) {
	if _, err := FingerprintMovie("/nonexistent/clip.mp4"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
