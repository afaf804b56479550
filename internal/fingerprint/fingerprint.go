// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fingerprint computes content-derived identities for images and
// movies, used by the duplicate matcher and persisted alongside each
// MediaObject.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/models"
)

const (
	tensorWidth  = 50
	tensorHeight = 50
	tensorBytes  = tensorWidth * tensorHeight * 3
	tensorShape  = "(50, 50, 3)"
)

// Tensors holds the two independent fingerprints computed for one image,
// plus the source raster's dimensions before the 50x50 resize.
type Tensors struct {
	TensorPIL []byte
	TensorCV2 []byte
	HashPIL   string
	HashCV2   string

	Width  int
	Height int
}

// FingerprintImage decodes path with two independent decoders ("decoder A"
// using the stdlib image package plus golang.org/x/image's BMP/TIFF
// registrations, "decoder B" using github.com/disintegration/imaging's
// independent decode path), resizes each to exactly 50x50 with bicubic
// interpolation, and returns both raw tensors and their MD5 hex digests.
// Both tensors must be produced or the image is not considered
// fingerprinted.
func FingerprintImage(path string) (*Tensors, error) {
	tensorA, width, height, err := decodeAndResizeA(path)
	if err != nil {
		return nil, &ingesterr.FingerprintError{Path: path, Decoder: "A", Err: err}
	}
	tensorB, err := decodeAndResizeB(path)
	if err != nil {
		return nil, &ingesterr.FingerprintError{Path: path, Decoder: "B", Err: err}
	}

	hashA := md5.Sum(tensorA)
	hashB := md5.Sum(tensorB)

	return &Tensors{
		TensorPIL: tensorA,
		TensorCV2: tensorB,
		HashPIL:   hex.EncodeToString(hashA[:]),
		HashCV2:   hex.EncodeToString(hashB[:]),
		Width:     width,
		Height:    height,
	}, nil
}

// decodeAndResizeA is "decoder A": the stdlib image.Decode registry,
// extended with golang.org/x/image/bmp and /tiff for formats the stdlib
// doesn't register, resized with imaging's bicubic filter. Also reports
// the source raster's width and height before the resize.
func decodeAndResizeA(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		img, err = decodeUnregisteredFormat(f)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("decoder A: %w", err)
		}
	}

	bounds := img.Bounds()
	resized := imaging.Resize(img, tensorWidth, tensorHeight, imaging.CatmullRom)
	return rasterToTensor(resized), bounds.Dx(), bounds.Dy(), nil
}

// decodeUnregisteredFormat falls back to golang.org/x/image decoders for
// formats the stdlib image.Decode registry above didn't recognize.
func decodeUnregisteredFormat(f *os.File) (image.Image, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if img, err := bmp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return tiff.Decode(f)
}

// decodeAndResizeB is "decoder B": imaging.Open's independent decode path,
// resized with the same bicubic-family filter as decoder A. Any variance
// between the two tensors comes from the decode step disagreeing by a
// pixel or two, not from the resampling kernel.
func decodeAndResizeB(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decoder B: %w", err)
	}
	resized := imaging.Resize(img, tensorWidth, tensorHeight, imaging.CatmullRom)
	return rasterToTensor(resized), nil
}

// rasterToTensor serializes an image as a flat 7500-byte array in
// row-major C-order, channels last (R,G,B per pixel).
func rasterToTensor(img image.Image) []byte {
	bounds := img.Bounds()
	out := make([]byte, 0, tensorBytes)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	return out
}

// FingerprintMovie streams path in 8 KiB chunks through MD5 and returns the
// hex digest. No content parsing.
func FingerprintMovie(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ingesterr.FingerprintError{Path: path, Decoder: "movie-hash", Err: err}
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 8*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &ingesterr.FingerprintError{Path: path, Decoder: "movie-hash", Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ToImageTensor builds a models.ImageTensor row from a freshly-computed
// Tensors value and the canonical filename it will be stored under.
func ToImageTensor(filename string, t *Tensors) *models.ImageTensor {
	return &models.ImageTensor{
		Filename:    filename,
		TensorPIL:   t.TensorPIL,
		TensorCV2:   t.TensorCV2,
		HashPIL:     t.HashPIL,
		HashCV2:     t.HashCV2,
		TensorShape: tensorShape,
	}
}

// ToMovieHash builds a models.MovieHash row from a freshly-computed content
// hash and the canonical filename it will be stored under.
func ToMovieHash(filename, hash string) *models.MovieHash {
	return &models.MovieHash{Filename: filename, MediaHash: hash}
}
