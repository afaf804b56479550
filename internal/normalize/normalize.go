// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package normalize canonicalizes incoming files: magic-byte sniffing,
// extension correction, and conversion to a decodable form ahead of
// fingerprinting.
package normalize

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/chrisorr0264/cleo2/internal/ingesterr"
)

// Format is one member of the closed set of actual formats the sniffer can
// identify.
type Format string

const (
	FormatHEIC    Format = "heic"
	FormatHEIF    Format = "heif"
	FormatJPEG    Format = "jpg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatICO     Format = "ico"
	FormatTIFF    Format = "tiff"
	FormatPDF     Format = "pdf"
	FormatZIP     Format = "zip"
	FormatRAR     Format = "rar"
	FormatGZ      Format = "gz"
	FormatBZ2     Format = "bz2"
	FormatDOCX    Format = "docx"
	FormatDOC     Format = "doc"
	FormatUnknown Format = "unknown"
)

var heic4CCs = []string{"ftypheic", "ftypmif1", "ftypmsf1", "ftypheix", "ftypheim", "ftyphevc", "ftyphe"}

// imageFormats is the subset of Format considered an image for the
// convert-to-JPEG decision in Normalize.
var imageFormats = map[Format]bool{
	FormatHEIC: true, FormatHEIF: true, FormatJPEG: true, FormatPNG: true,
	FormatGIF: true, FormatBMP: true, FormatICO: true, FormatTIFF: true,
}

// Sniff maps the first 10 bytes of a file to its actual format. An empty
// header is a FormatError.
func Sniff(header []byte) (Format, error) {
	if len(header) == 0 {
		return FormatUnknown, &ingesterr.FormatError{Stage: "sniff", Err: fmt.Errorf("empty header")}
	}

	if f, ok := sniffHEIC(header); ok {
		return f, nil
	}

	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG, nil
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return FormatPNG, nil
	case bytes.HasPrefix(header, []byte("GIF87a")), bytes.HasPrefix(header, []byte("GIF89a")):
		return FormatGIF, nil
	case bytes.HasPrefix(header, []byte("BM")):
		return FormatBMP, nil
	case bytes.HasPrefix(header, []byte{0x00, 0x00, 0x01, 0x00}):
		return FormatICO, nil
	case bytes.HasPrefix(header, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(header, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return FormatTIFF, nil
	case bytes.HasPrefix(header, []byte("%PDF")):
		return FormatPDF, nil
	case bytes.HasPrefix(header, []byte{0x50, 0x4B, 0x03, 0x04}):
		if bytes.Contains(header, []byte("docx")) {
			return FormatDOCX, nil
		}
		return FormatZIP, nil
	case bytes.HasPrefix(header, []byte{0x52, 0x61, 0x72, 0x21}):
		return FormatRAR, nil
	case bytes.HasPrefix(header, []byte{0x1F, 0x8B}):
		return FormatGZ, nil
	case bytes.HasPrefix(header, []byte("BZh")):
		return FormatBZ2, nil
	case bytes.HasPrefix(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		return FormatDOC, nil
	}

	return FormatUnknown, nil
}

// sniffHEIC reads the leading 4 bytes as a 32-bit big-endian ftyp box
// length; if it matches one of the documented lengths, the bytes
// immediately following must start with one of the HEIC/HEIF 4CC markers.
func sniffHEIC(header []byte) (Format, bool) {
	if len(header) < 4 {
		return "", false
	}
	length := binary.BigEndian.Uint32(header[0:4])

	switch length {
	case 0x18, 0x24, 0x28, 0x2C, 0x20:
	default:
		return "", false
	}

	rest := header[4:]
	for _, cc := range heic4CCs {
		if bytes.HasPrefix(rest, []byte(cc)) {
			return FormatHEIC, true
		}
	}
	return "", false
}

// extensionFor returns the canonical lowercase extension (with leading dot)
// for a sniffed format.
func extensionFor(f Format) string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// Normalize sniffs path's actual format, corrects a mismatched extension in
// place, and converts the file to its canonical decodable form:
//   - bmp, tiff -> convert to JPEG, delete the original
//   - png, gif, jpg -> left as-is
//   - heic, heif, ico -> FormatError from the convert step: they are handed
//     to imaging.Open, which has no decoder registered for these formats
//   - unknown or non-image -> FormatError
//
// Returns the (possibly new) path. All renames/deletions are observable on
// the filesystem before Normalize returns.
func Normalize(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &ingesterr.FormatError{Path: path, Stage: "open", Err: err}
	}
	header := make([]byte, 10)
	n, _ := f.Read(header)
	f.Close()
	header = header[:n]

	format, err := Sniff(header)
	if err != nil {
		return "", err
	}
	if format == FormatUnknown || !imageFormats[format] {
		return "", &ingesterr.FormatError{Path: path, Stage: "sniff", Err: fmt.Errorf("unsupported or unknown format")}
	}

	path, err = correctExtension(path, format)
	if err != nil {
		return "", err
	}

	switch format {
	case FormatJPEG, FormatPNG, FormatGIF:
		return path, nil
	default: // heic, heif, bmp, ico, tiff
		return convertToJPEG(path, format)
	}
}

// correctExtension renames path in place if its current extension
// disagrees with the sniffed format, and returns the (possibly new) path.
func correctExtension(path string, format Format) (string, error) {
	wantExt := extensionFor(format)
	gotExt := strings.ToLower(filepath.Ext(path))
	if gotExt == wantExt || (wantExt == ".jpg" && gotExt == ".jpeg") {
		return path, nil
	}

	newPath := strings.TrimSuffix(path, filepath.Ext(path)) + wantExt
	if err := os.Rename(path, newPath); err != nil {
		return "", &ingesterr.IOError{Path: path, Op: "rename", Err: err}
	}
	return newPath, nil
}

// convertToJPEG decodes path with the decoder matching format, encodes it
// as JPEG alongside the original, and deletes the original.
func convertToJPEG(path string, format Format) (string, error) {
	img, err := decodeByFormat(path, format)
	if err != nil {
		return "", &ingesterr.FormatError{Path: path, Stage: "convert", Err: err}
	}

	newPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	out, err := os.Create(newPath)
	if err != nil {
		return "", &ingesterr.IOError{Path: newPath, Op: "create", Err: err}
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 90}); err != nil {
		out.Close()
		return "", &ingesterr.FormatError{Path: path, Stage: "convert", Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &ingesterr.IOError{Path: newPath, Op: "close", Err: err}
	}

	if err := os.Remove(path); err != nil {
		return "", &ingesterr.IOError{Path: path, Op: "remove", Err: err}
	}
	return newPath, nil
}

// decodeByFormat decodes an image file using the decoder appropriate to its
// sniffed format. Every other format goes to imaging.Open, which has no
// HEIC, HEIF or ICO decoder registered, so those files return an error.
func decodeByFormat(path string, format Format) (image.Image, error) {
	switch format {
	case FormatBMP:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return bmp.Decode(f)
	case FormatTIFF:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	default:
		return imaging.Open(path)
	}
}
