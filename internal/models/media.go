// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// MediaType identifies whether a MediaObject was ingested from the image or
// movie path.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeMovie MediaType = "movie"
)

// MediaObject is the canonical record of an ingested file. Exactly one of
// ImageTensorID, MovieHashID is set once processing succeeds, matching
// MediaType.
//
// A MediaObject is inserted with (OrigName, MediaType, audit fields) before
// the canonical name is known, since the name embeds the row's own id; it is
// then updated exactly once with name/path/metadata/location.
type MediaObject struct {
	ID              int64
	OrigName        string
	MediaType       MediaType
	NewName         string
	NewPath         string
	MediaCreateDate *time.Time

	Latitude  *float64
	Longitude *float64

	LocationClass       *string
	LocationType        *string
	LocationName        *string
	LocationDisplayName *string
	City                *string
	Province            *string
	Country             *string

	ImageTensorID *int64
	MovieHashID   *int64

	IsActive bool
	Width    *int
	Height   *int

	CreatedBy string
	CreatedIP string
}

// ImageTensor is the two-decoder fingerprint record for one image. Both
// tensor blobs are always exactly 7500 bytes (50*50*3, row-major, channels
// last); both hashes are 32-char lowercase hex MD5 over the corresponding
// blob.
type ImageTensor struct {
	ID          int64
	Filename    string
	TensorPIL   []byte
	TensorCV2   []byte
	HashPIL     string
	HashCV2     string
	TensorShape string
}

// MovieHash is the exact-content fingerprint record for one movie.
type MovieHash struct {
	ID        int64
	Filename  string
	MediaHash string
}

// MediaMetadata is one flattened key/value pair extracted from a media
// file's EXIF tags or probe output. Multiple rows exist per MediaObject.
type MediaMetadata struct {
	MediaObjectID int64
	ExifTag       string
	ExifData      string
}

// KnownFace is a named identity with one 128-dimension face encoding.
// Insertion is de-duplicated on Name.
type KnownFace struct {
	Name     string
	Encoding []float64 // always length 128
}

// IdentifiedFace attributes a face to a MediaObject. Rows are rewritten
// wholesale per image on each re-identification pass.
type IdentifiedFace struct {
	MediaObjectID int64
	FaceName      string
}

// InvalidFace is a user-blacklisted face bounding box. Any detection whose
// box equals a blacklisted tuple for the same MediaObjectID is ignored by
// the face labeler.
type InvalidFace struct {
	MediaObjectID int64
	Top           int
	Right         int
	Bottom        int
	Left          int
}

// FaceBox is a face bounding box in (top, right, bottom, left) order,
// matching the convention used throughout face detection libraries.
type FaceBox struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Tag is a free-form label, auto-created when a new face name is
// identified.
type Tag struct {
	ID   int64
	Name string
}

// TagToMedia links a Tag to a MediaObject. UNIQUE(MediaObjectID, TagID);
// duplicate inserts are no-ops.
type TagToMedia struct {
	MediaObjectID int64
	TagID         int64
}

// DuplicateMatch is one confirmed duplicate candidate returned by the
// duplicate matcher: the filename of the matching catalog entry and the
// minimum rotation MSE (images) that triggered the match, or 0 for an exact
// movie-hash match.
type DuplicateMatch struct {
	Filename string
	MinMSE   float64
}
