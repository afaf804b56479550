// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package facelabel detects faces in an image, compares them against
// known encodings, filters the user blacklist, and persists identities and
// tags.
//
// The face detection/embedding library itself is an external collaborator;
// this package depends only on the Detector interface below, which any
// such library's adapter can satisfy.
package facelabel

import (
	"context"
	"math"

	"github.com/chrisorr0264/cleo2/internal/models"
)

// Detection is one face found in an image: its bounding box and 128-D
// encoding.
type Detection struct {
	Box      models.FaceBox
	Encoding []float64
}

// Detector loads an image and returns every detected face. A decode
// failure must return an empty slice and nil error; an unreadable image
// simply has no faces.
type Detector interface {
	DetectFaces(path string) ([]Detection, error)
}

// Catalog is the subset of the catalog gateway the labeler needs.
type Catalog interface {
	LoadKnownFaces(ctx context.Context) ([]models.KnownFace, error)
	IsInvalidFaceLocation(ctx context.Context, mediaObjectID int64, box models.FaceBox) (bool, error)
	RewriteIdentifiedFaces(ctx context.Context, mediaObjectID int64, names []string) error
	LookupOrCreateTag(ctx context.Context, name string) (int64, error)
	LinkTagToMedia(ctx context.Context, mediaObjectID, tagID int64) error
}

const unknownIdentity = "Unknown"

// Labeler holds the in-memory known-faces list loaded once at worker
// start. A worker lives for one file, so the list can be at most one file
// stale.
type Labeler struct {
	detector Detector
	catalog  Catalog
	names    []string
	encodes  [][]float64
}

// New constructs a Labeler, loading all known faces into memory.
func New(ctx context.Context, detector Detector, catalog Catalog) (*Labeler, error) {
	faces, err := catalog.LoadKnownFaces(ctx)
	if err != nil {
		return nil, err
	}
	l := &Labeler{detector: detector, catalog: catalog}
	for _, f := range faces {
		l.names = append(l.names, f.Name)
		l.encodes = append(l.encodes, f.Encoding)
	}
	return l, nil
}

// Identified is one face the labeler matched to a known identity.
type Identified struct {
	Box  models.FaceBox
	Name string
}

// LabelFacesInImage detects faces, filters the blacklist, compares each
// encoding to the known list, keeps only confident matches, then persists
// identities and tags via the catalog.
func (l *Labeler) LabelFacesInImage(ctx context.Context, path string, mediaObjectID int64) ([]Identified, error) {
	detections, err := l.detector.DetectFaces(path)
	if err != nil {
		return nil, err
	}

	var identified []Identified
	for _, d := range detections {
		invalid, err := l.catalog.IsInvalidFaceLocation(ctx, mediaObjectID, d.Box)
		if err != nil {
			return nil, err
		}
		if invalid {
			continue
		}

		name := l.bestMatch(d.Encoding)
		if name == unknownIdentity {
			continue
		}
		identified = append(identified, Identified{Box: d.Box, Name: name})
	}

	names := make([]string, len(identified))
	for i, id := range identified {
		names[i] = id.Name
	}
	if err := l.catalog.RewriteIdentifiedFaces(ctx, mediaObjectID, names); err != nil {
		return nil, err
	}

	for _, name := range names {
		tagID, err := l.catalog.LookupOrCreateTag(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := l.catalog.LinkTagToMedia(ctx, mediaObjectID, tagID); err != nil {
			return nil, err
		}
	}

	return identified, nil
}

// bestMatch compares encoding against every known face, returning the
// identity with the minimum Euclidean distance when that distance clears
// the match threshold. Ties are broken by the lowest index: the strict <
// comparison keeps the earliest-loaded face on equal distances.
func (l *Labeler) bestMatch(encoding []float64) string {
	if len(l.names) == 0 {
		return unknownIdentity
	}

	bestIdx := -1
	bestDist := math.MaxFloat64
	for i, known := range l.encodes {
		dist := euclideanDistance(encoding, known)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	if bestIdx < 0 || !isMatch(bestDist) {
		return unknownIdentity
	}
	return l.names[bestIdx]
}

// matchThreshold is the standard face_recognition library default
// tolerance for "is this the same person" on 128-D encodings.
const matchThreshold = 0.6

func isMatch(distance float64) bool {
	return distance <= matchThreshold
}

func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
