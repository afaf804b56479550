// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metadata extracts structured metadata from media files: EXIF
// tags for images, probe-JSON container tags for movies, and the
// flattened key/value form both paths share before persistence.
package metadata

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/models"
)

// separator joins flattened key segments. Kept exact for byte
// compatibility with historical metadata rows.
const separator = "_"

// dateTimeOriginalLayout is the EXIF DateTimeOriginal format.
const dateTimeOriginalLayout = "2006:01:02 15:04:05"

// Extracted holds everything metadata extraction discovers for one file
// ahead of catalog persistence.
type Extracted struct {
	// Flat is the dotted/underscored flattened tag map, ready for
	// MediaMetadata rows.
	Flat map[string]string

	CreateDate *time.Time
	Latitude   *float64
	Longitude  *float64
}

// ExtractImage reads EXIF tags from path, parses DateTimeOriginal and GPS
// coordinates, and flattens the remaining tags.
func ExtractImage(path string) (*Extracted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ingesterr.FormatError{Path: path, Stage: "exif", Err: err}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF data is common (e.g. a plain JPEG) and not fatal: return
		// an empty result rather than aborting the pipeline.
		return &Extracted{Flat: map[string]string{}}, nil
	}

	result := &Extracted{Flat: flattenExif(x)}

	if dt, err := parseDateTimeOriginal(x); err == nil {
		result.CreateDate = dt
	}

	if lat, long, err := gpsLatLong(x); err == nil {
		result.Latitude = &lat
		result.Longitude = &long
	}

	return result, nil
}

// parseDateTimeOriginal parses EXIF:DateTimeOriginal in its documented
// layout. This is the single date policy: no POSIX timestamp fallback;
// anything else leaves the creation date null.
func parseDateTimeOriginal(x *exif.Exif) (*time.Time, error) {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return nil, err
	}
	raw, err := tag.StringVal()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(dateTimeOriginalLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// gpsLatLong reads GPSLatitude/GPSLongitude plus their N/S, E/W reference
// tags and applies S/W negation to obtain signed decimal degrees.
func gpsLatLong(x *exif.Exif) (float64, float64, error) {
	lat, long, err := x.LatLong()
	if err != nil {
		return 0, 0, err
	}
	return lat, long, nil
}

// exifWalker adapts a plain function to goexif's exif.Walker interface.
type exifWalker func(name exif.FieldName, tag *tiff.Tag) error

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error { return w(name, tag) }

// flattenExif walks every decoded EXIF tag and renders it into the shared
// flattened string map.
func flattenExif(x *exif.Exif) map[string]string {
	out := map[string]string{}
	_ = x.Walk(exifWalker(func(name exif.FieldName, tag *tiff.Tag) error {
		out[string(name)] = tagString(tag)
		return nil
	}))
	return out
}

// tagString renders one EXIF tag as a string. ASCII tags use StringVal;
// everything else (rationals, int arrays) falls back to the tag's own
// String() rendering, which goexif already space-joins for multi-value
// tags.
func tagString(tag *tiff.Tag) string {
	if s, err := tag.StringVal(); err == nil {
		return s
	}
	return tag.String()
}

// MovieProbe is the subset of an ffprobe-style JSON document this package
// understands: the container-level creation time and per-stream location
// tag.
type MovieProbe struct {
	Format struct {
		Tags struct {
			CreationTime string `json:"creation_time"`
		} `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Tags struct {
			Location string `json:"location"`
		} `json:"tags"`
	} `json:"streams"`
}

// ExtractMovie parses a probe JSON document, extracting the creation
// timestamp and ISO-6709 location tag. Parse failures leave the
// corresponding field null rather than aborting.
func ExtractMovie(probeJSON []byte) (*Extracted, error) {
	var probe MovieProbe
	if err := json.Unmarshal(probeJSON, &probe); err != nil {
		return nil, &ingesterr.FormatError{Stage: "probe", Err: err}
	}

	result := &Extracted{Flat: FlattenJSON(probeJSON)}

	if probe.Format.Tags.CreationTime != "" {
		if t, err := parseISO8601(probe.Format.Tags.CreationTime); err == nil {
			result.CreateDate = &t
		}
	}

	for _, stream := range probe.Streams {
		if stream.Tags.Location == "" {
			continue
		}
		lat, long, ok := parseISO6709(stream.Tags.Location)
		if ok {
			result.Latitude = &lat
			result.Longitude = &long
			break
		}
	}

	return result, nil
}

// parseISO8601 parses a movie probe creation_time, tolerating a trailing Z.
func parseISO8601(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(raw, "Z"))
}

// parseISO6709 parses a simple "+LAT-LONG/" or "+LAT+LONG/" ISO-6709
// location string. It assumes a single sign-prefixed separator between lat
// and long; any form it can't confidently split is reported as not-ok
// (null fields) rather than guessed, since ISO-6709 permits longer forms
// this parser does not attempt.
func parseISO6709(raw string) (float64, float64, bool) {
	raw = strings.TrimSuffix(raw, "/")
	if len(raw) == 0 || (raw[0] != '+' && raw[0] != '-') {
		return 0, 0, false
	}

	// Find the second sign character, which starts the longitude field.
	secondSign := -1
	for i := 1; i < len(raw); i++ {
		if raw[i] == '+' || raw[i] == '-' {
			secondSign = i
			break
		}
	}
	if secondSign < 0 {
		return 0, 0, false
	}

	latStr := raw[:secondSign]
	longStr := raw[secondSign:]

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	long, err := strconv.ParseFloat(longStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, long, true
}

// FlattenJSON flattens an arbitrary JSON document to underscored keys:
// nested maps contribute "parent_child" keys, list elements contribute
// "parent_i" keys, and list leaves are space-joined when rendered as a
// single value.
func FlattenJSON(raw []byte) map[string]string {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]string{}
	}
	out := map[string]string{}
	flattenValue("", doc, out)
	return out
}

func flattenValue(prefix string, v interface{}, out map[string]string) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(joinKey(prefix, k), val[k], out)
		}
	case []interface{}:
		leaves := make([]string, 0, len(val))
		allLeaves := true
		for _, elem := range val {
			switch elem.(type) {
			case map[string]interface{}, []interface{}:
				allLeaves = false
			}
		}
		if allLeaves {
			for _, elem := range val {
				leaves = append(leaves, scalarString(elem))
			}
			out[prefix] = strings.Join(leaves, " ")
			return
		}
		for i, elem := range val {
			flattenValue(fmt.Sprintf("%s%s%d", prefix, separator, i), elem, out)
		}
	default:
		out[prefix] = scalarString(val)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + separator + key
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToMetadataRows converts a flattened tag map into MediaMetadata rows for
// the given media object.
func ToMetadataRows(mediaObjectID int64, flat map[string]string) []models.MediaMetadata {
	rows := make([]models.MediaMetadata, 0, len(flat))
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, models.MediaMetadata{MediaObjectID: mediaObjectID, ExifTag: k, ExifData: flat[k]})
	}
	return rows
}
