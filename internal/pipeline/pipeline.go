// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline is the per-file orchestrator: it combines format
// normalization, fingerprinting, duplicate matching, metadata extraction,
// reverse geocoding, and face labeling into one ordered sequence,
// persisting through the catalog gateway throughout.
package pipeline

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/dedupe"
	"github.com/chrisorr0264/cleo2/internal/facelabel"
	"github.com/chrisorr0264/cleo2/internal/fingerprint"
	"github.com/chrisorr0264/cleo2/internal/geocode"
	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/logging"
	"github.com/chrisorr0264/cleo2/internal/metadata"
	"github.com/chrisorr0264/cleo2/internal/models"
	"github.com/chrisorr0264/cleo2/internal/normalize"
)

const unknownDate = "UnknownDate"

// Probe runs an external video probe and returns its raw JSON document.
// Deployments wire this to ffprobe or an equivalent; the pipeline only
// depends on this interface.
type Probe interface {
	ProbeMovie(ctx context.Context, path string) ([]byte, error)
}

// Catalog is the subset of the catalog gateway the pipeline needs; it is
// the union of dedupe.CandidateFetcher and facelabel.Catalog plus the
// MediaObject/metadata writes the pipeline itself performs. Satisfied by
// *catalog.DB.
type Catalog interface {
	InsertMediaObject(ctx context.Context, origName string, mediaType models.MediaType, createdBy, createdIP string) (int64, error)
	UpdateMediaObjectLocationAndName(ctx context.Context, obj *models.MediaObject) error
	InsertImageTensor(ctx context.Context, mediaObjectID int64, tensor *models.ImageTensor) (int64, error)
	InsertMovieHash(ctx context.Context, mediaObjectID int64, hash *models.MovieHash) (int64, error)
	InsertMetadataRows(ctx context.Context, rows []models.MediaMetadata) error
	FetchTensorCandidatesByHash(ctx context.Context, hashPIL, hashCV2 string) ([]models.ImageTensor, error)
	FetchMovieCandidatesByHash(ctx context.Context, mediaHash string) ([]models.MovieHash, error)
	LoadKnownFaces(ctx context.Context) ([]models.KnownFace, error)
	IsInvalidFaceLocation(ctx context.Context, mediaObjectID int64, box models.FaceBox) (bool, error)
	RewriteIdentifiedFaces(ctx context.Context, mediaObjectID int64, names []string) error
	LookupOrCreateTag(ctx context.Context, name string) (int64, error)
	LinkTagToMedia(ctx context.Context, mediaObjectID, tagID int64) error
}

// Processor handles exactly one (file path, declared media type) pair and
// then exits; worker isolation means a fresh Processor per file.
type Processor struct {
	cfg      *config.Config
	catalog  Catalog
	matcher  *dedupe.Matcher
	resolver *geocode.Resolver
	probe    Probe
	detector facelabel.Detector
}

// New builds a Processor wired to the full dependency graph.
func New(cfg *config.Config, db Catalog, probe Probe, detector facelabel.Detector) *Processor {
	return &Processor{
		cfg:      cfg,
		catalog:  db,
		matcher:  dedupe.New(db, cfg.Duplicate.ComparePoolSize, cfg.Duplicate.MSEThreshold),
		resolver: geocode.New(&cfg.Geocode),
		probe:    probe,
		detector: detector,
	}
}

// Process runs the full pipeline for path, dispatching on mediaType. Any
// stage error causes the file to move to the errors directory
// (best-effort) and a non-nil error is returned; the caller exits nonzero
// and partially persisted catalog rows are left for maintenance tooling.
func (p *Processor) Process(ctx context.Context, path string, mediaType models.MediaType) error {
	var err error
	switch mediaType {
	case models.MediaTypeImage:
		err = p.processImage(ctx, path)
	case models.MediaTypeMovie:
		err = p.processMovie(ctx, path)
	default:
		err = fmt.Errorf("unrecognized media type %q", mediaType)
	}

	if err != nil {
		p.moveToErrorsBestEffort(path)
	}
	return err
}

// processImage runs the image path. The MediaObject row is inserted
// before the canonical name is computed because the name embeds the row's
// id; the file move precedes the tensor insert so the stored filename
// reflects the final path; face labeling needs the file at its final
// location.
func (p *Processor) processImage(ctx context.Context, path string) error {
	// 1. Normalize
	path, err := normalize.Normalize(path)
	if err != nil {
		return err
	}

	// 2. Fingerprint
	tensors, err := fingerprint.FingerprintImage(path)
	if err != nil {
		return err
	}

	// 3-4. Prefilter + confirm duplicates
	dup, err := p.matcher.MatchImage(ctx, tensors)
	if err != nil {
		return err
	}
	if dup != nil {
		return p.quarantineDuplicate(path, dup, true)
	}

	// 5. Extract metadata
	extracted, err := metadata.ExtractImage(path)
	if err != nil {
		return err
	}

	// 6. Insert MediaObject
	createdIP := localOutboundIP()
	mediaObjectID, err := p.catalog.InsertMediaObject(ctx, filepath.Base(path), models.MediaTypeImage, "cleo-worker", createdIP)
	if err != nil {
		return err
	}

	// 7. Compute new name
	ext := strings.ToLower(filepath.Ext(path))
	newName := canonicalName(extracted.CreateDate, mediaObjectID, ext)

	// 8. Geocode
	loc := p.geocodeBestEffort(ctx, extracted)

	// 9. Update MediaObject
	obj := &models.MediaObject{
		ID:        mediaObjectID,
		NewName:   newName,
		NewPath:   filepath.Join(p.cfg.Directories.Images, newName),
		Latitude:  extracted.Latitude,
		Longitude: extracted.Longitude,
		Width:     &tensors.Width,
		Height:    &tensors.Height,
	}
	obj.MediaCreateDate = extracted.CreateDate
	applyLocation(obj, loc)
	if err := p.catalog.UpdateMediaObjectLocationAndName(ctx, obj); err != nil {
		return err
	}

	// 10. Insert metadata rows
	rows := metadata.ToMetadataRows(mediaObjectID, extracted.Flat)
	if err := p.catalog.InsertMetadataRows(ctx, rows); err != nil {
		return err
	}

	// 11. Move the file to its final location
	finalPath := filepath.Join(p.cfg.Directories.Images, newName)
	if err := moveFile(path, finalPath); err != nil {
		return err
	}

	// 12. Label faces
	if p.detector != nil {
		labeler, lerr := facelabel.New(ctx, p.detector, p.catalog)
		if lerr != nil {
			return lerr
		}
		if _, lerr := labeler.LabelFacesInImage(ctx, finalPath, mediaObjectID); lerr != nil {
			return lerr
		}
	}

	// 13. Insert image tensor row, link to MediaObject
	tensorRow := fingerprint.ToImageTensor(newName, tensors)
	if _, err := p.catalog.InsertImageTensor(ctx, mediaObjectID, tensorRow); err != nil {
		return err
	}

	logging.Ctx(ctx).Info().Str("path", finalPath).Int64("media_object_id", mediaObjectID).Msg("image ingested")
	return nil
}

// processMovie runs the movie path: same shape as the image path but with
// the streaming content hash and probe-based extractors, writing to the
// movies directory and a MovieHash row.
func (p *Processor) processMovie(ctx context.Context, path string) error {
	// 1. Normalize: movies have no format-conversion step in scope; the
	// file is used as-is.

	// 2. Fingerprint
	hash, err := fingerprint.FingerprintMovie(path)
	if err != nil {
		return err
	}

	// 3-4. Prefilter + confirm duplicates (exact match for movies)
	dup, err := p.matcher.MatchMovie(ctx, hash)
	if err != nil {
		return err
	}
	if dup != nil {
		return p.quarantineDuplicate(path, dup, false)
	}

	// 5. Extract metadata via the probe
	var extracted *metadata.Extracted
	if p.probe != nil {
		probeJSON, perr := p.probe.ProbeMovie(ctx, path)
		if perr == nil {
			extracted, _ = metadata.ExtractMovie(probeJSON)
		}
	}
	if extracted == nil {
		extracted = &metadata.Extracted{Flat: map[string]string{}}
	}

	// 6. Insert MediaObject
	createdIP := localOutboundIP()
	mediaObjectID, err := p.catalog.InsertMediaObject(ctx, filepath.Base(path), models.MediaTypeMovie, "cleo-worker", createdIP)
	if err != nil {
		return err
	}

	// 7. Compute new name
	ext := strings.ToLower(filepath.Ext(path))
	newName := canonicalName(extracted.CreateDate, mediaObjectID, ext)

	// 8. Geocode
	loc := p.geocodeBestEffort(ctx, extracted)

	// 9. Update MediaObject
	obj := &models.MediaObject{
		ID:        mediaObjectID,
		NewName:   newName,
		NewPath:   filepath.Join(p.cfg.Directories.Movies, newName),
		Latitude:  extracted.Latitude,
		Longitude: extracted.Longitude,
	}
	obj.MediaCreateDate = extracted.CreateDate
	applyLocation(obj, loc)
	if err := p.catalog.UpdateMediaObjectLocationAndName(ctx, obj); err != nil {
		return err
	}

	// 10. Insert metadata rows
	rows := metadata.ToMetadataRows(mediaObjectID, extracted.Flat)
	if err := p.catalog.InsertMetadataRows(ctx, rows); err != nil {
		return err
	}

	// 11. Move the file to movies_dir
	finalPath := filepath.Join(p.cfg.Directories.Movies, newName)
	if err := moveFile(path, finalPath); err != nil {
		return err
	}

	// 13. Insert movie hash row, link to MediaObject (no face labeling for movies)
	hashRow := fingerprint.ToMovieHash(newName, hash)
	if _, err := p.catalog.InsertMovieHash(ctx, mediaObjectID, hashRow); err != nil {
		return err
	}

	logging.Ctx(ctx).Info().Str("path", finalPath).Int64("media_object_id", mediaObjectID).Msg("movie ingested")
	return nil
}

// geocodeBestEffort reverse-geocodes extracted's coordinates if present.
// A GeocodeError is non-fatal: the pipeline proceeds with null location
// fields.
func (p *Processor) geocodeBestEffort(ctx context.Context, extracted *metadata.Extracted) *geocode.Location {
	if extracted.Latitude == nil || extracted.Longitude == nil {
		return nil
	}
	loc, err := p.resolver.Resolve(ctx, *extracted.Latitude, *extracted.Longitude)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("reverse geocode failed after retries, leaving location fields null")
		return nil
	}
	return loc
}

func applyLocation(obj *models.MediaObject, loc *geocode.Location) {
	if loc == nil {
		return
	}
	obj.LocationClass = &loc.Class
	obj.LocationType = &loc.Type
	obj.LocationName = &loc.Name
	obj.LocationDisplayName = &loc.DisplayName
	obj.City = &loc.City
	obj.Province = &loc.Province
	obj.Country = &loc.Country
}

// canonicalName builds "YYYY-MM-DD-NNNNNNN<ext>"; the date segment is the
// literal "UnknownDate" when createDate is nil.
func canonicalName(createDate *time.Time, mediaObjectID int64, ext string) string {
	datePart := unknownDate
	if createDate != nil {
		datePart = createDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%s-%07d%s", datePart, mediaObjectID, ext)
}

// quarantineDuplicate renames the incoming file to encode the duplicate it
// matched and moves it to the duplicates directory. No catalog record is
// created for a duplicate beyond what the filename encodes.
func (p *Processor) quarantineDuplicate(path string, dup *models.DuplicateMatch, hasMSE bool) error {
	origStem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dupStem := strings.TrimSuffix(dup.Filename, filepath.Ext(dup.Filename))
	ext := filepath.Ext(path)

	newName := dedupe.DuplicateFilename(origStem, dupStem, ext, dup.MinMSE, hasMSE)
	dest := filepath.Join(p.cfg.Directories.Duplicates, newName)

	if err := moveFile(path, dest); err != nil {
		return err
	}
	logging.Info().Str("path", path).Str("duplicate_of", dup.Filename).Msg("duplicate detected, file quarantined")
	return nil
}

// moveToErrorsBestEffort moves path to the errors directory, swallowing
// any failure: it runs only after a failure has already been decided, and
// the pipeline has nothing further to report if the move itself fails.
func (p *Processor) moveToErrorsBestEffort(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	dest := filepath.Join(p.cfg.Directories.Errors, filepath.Base(path))
	if err := moveFile(path, dest); err != nil {
		logging.Error().Str("path", path).Err(err).Msg("failed to move file to errors directory")
	}
}

// moveFile renames src to dst, wrapping any failure as an IOError.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return &ingesterr.IOError{Path: src, Op: "move", Err: err}
	}
	return nil
}

// localOutboundIP resolves the local outbound IP for the created_ip audit
// field by dialing a UDP socket to a public address without sending data,
// then reading the chosen local address. No traffic leaves the host.
func localOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}
