// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package normalize

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0, 0, 0}, FormatJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}, FormatPNG},
		{"gif", []byte("GIF89a....")[:10], FormatGIF},
		{"bmp", []byte("BM........"), FormatBMP},
		{"heic", []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e'}, FormatHEIC},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.header)
			if err != nil {
				t.Fatalf("Sniff error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Sniff(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestSniffEmptyHeaderIsFormatError(t *testing.T) {
	_, err := Sniff(nil)
	if err == nil {
		t.Fatalf("expected FormatError on empty header")
	}
}

func TestCorrectExtensionRenamesMismatchedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	newPath, err := correctExtension(path, FormatJPEG)
	if err != nil {
		t.Fatalf("correctExtension error: %v", err)
	}
	if filepath.Ext(newPath) != ".jpg" {
		t.Errorf("expected .jpg extension, got %s", newPath)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("expected renamed file to exist: %v", err)
	}
}

func TestNormalizeLeavesJPEGAsIs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	writeJPEG(t, path, 4, 4)

	got, err := Normalize(path)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if got != path {
		t.Errorf("expected path unchanged for jpeg, got %s", got)
	}
}

func TestNormalizeConvertsBMPToJPEGAndDeletesOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.bmp")
	writeBMP(t, path, 4, 4)

	got, err := Normalize(path)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if filepath.Ext(got) != ".jpg" {
		t.Errorf("expected .jpg result, got %s", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected original bmp to be deleted")
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("expected converted jpeg to exist: %v", err)
	}
}

func TestNormalizeRenamesMisnamedFileThenConverts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.txt")
	writeBMP(t, path, 4, 4)

	got, err := Normalize(path)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if filepath.Base(got) != "photo.jpg" {
		t.Errorf("expected photo.jpg after rename+convert, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.bmp")); !os.IsNotExist(err) {
		t.Errorf("expected intermediate bmp to be deleted")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected misnamed original to be gone")
	}
}

func TestNormalizeUnknownFormatIsFormatError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mystery.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Normalize(path); err == nil {
		t.Fatalf("expected FormatError for unrecognized content")
	}
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 100, A: 255})
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

func writeBMP(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write bmp: %v", err)
	}
}
