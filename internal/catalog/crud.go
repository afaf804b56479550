// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"database/sql"

	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/models"
)

// InsertMediaObject inserts a new MediaObject row with only the fields
// known before the canonical name is assigned, and returns the new id.
func (db *DB) InsertMediaObject(ctx context.Context, origName string, mediaType models.MediaType, createdBy, createdIP string) (int64, error) {
	var id int64
	err := db.withTx(ctx, "insert_media_object", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO media_objects (orig_name, media_type, is_active, created_by, created_ip)
			VALUES (?, ?, true, ?, ?)
			RETURNING id`,
			origName, string(mediaType), createdBy, createdIP).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateMediaObjectLocationAndName performs the single post-geocode update
// of a MediaObject with its canonical name, path, creation date, coordinates,
// and the seven reverse-geocoded location strings.
func (db *DB) UpdateMediaObjectLocationAndName(ctx context.Context, obj *models.MediaObject) error {
	return db.withTx(ctx, "update_media_object_location_and_name", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE media_objects SET
				new_name = ?,
				new_path = ?,
				media_create_date = ?,
				latitude = ?,
				longitude = ?,
				location_class = ?,
				location_type = ?,
				location_name = ?,
				location_display_name = ?,
				city = ?,
				province = ?,
				country = ?,
				width = ?,
				height = ?
			WHERE id = ?`,
			obj.NewName, obj.NewPath, obj.MediaCreateDate,
			obj.Latitude, obj.Longitude,
			obj.LocationClass, obj.LocationType, obj.LocationName, obj.LocationDisplayName,
			obj.City, obj.Province, obj.Country,
			obj.Width, obj.Height,
			obj.ID)
		return err
	})
}

// InsertImageTensor inserts the two-decoder fingerprint for one image and
// links it to the owning MediaObject. The cyclic MediaObject<->ImageTensor
// reference is resolved here, never by the caller: the tensor row is
// inserted first, then image_tensor_id is set in the same transaction.
func (db *DB) InsertImageTensor(ctx context.Context, mediaObjectID int64, tensor *models.ImageTensor) (int64, error) {
	var id int64
	err := db.withTx(ctx, "insert_image_tensor", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO image_tensors (filename, tensor_pil, tensor_cv2, hash_pil, hash_cv2, tensor_shape)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			tensor.Filename, tensor.TensorPIL, tensor.TensorCV2, tensor.HashPIL, tensor.HashCV2, tensor.TensorShape).Scan(&id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE media_objects SET image_tensor_id = ? WHERE id = ?`, id, mediaObjectID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertMovieHash inserts the exact-content fingerprint for one movie and
// links it to the owning MediaObject.
func (db *DB) InsertMovieHash(ctx context.Context, mediaObjectID int64, hash *models.MovieHash) (int64, error) {
	var id int64
	err := db.withTx(ctx, "insert_movie_hash", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO movie_hashes (filename, media_hash)
			VALUES (?, ?)
			RETURNING id`,
			hash.Filename, hash.MediaHash).Scan(&id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE media_objects SET movie_hash_id = ? WHERE id = ?`, id, mediaObjectID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertMetadataRows persists flattened EXIF/probe key-value pairs for a
// MediaObject. Rows are inserted in a single transaction.
func (db *DB) InsertMetadataRows(ctx context.Context, rows []models.MediaMetadata) error {
	if len(rows) == 0 {
		return nil
	}
	return db.withTx(ctx, "insert_metadata_rows", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO media_metadata (media_object_id, exif_tag, exif_data) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row.MediaObjectID, row.ExifTag, row.ExifData); err != nil {
				return err
			}
		}
		return nil
	})
}

// FetchTensorCandidatesByHash returns every ImageTensor row whose hash_pil
// or hash_cv2 equals either incoming hash, the duplicate matcher's
// prefilter stage.
func (db *DB) FetchTensorCandidatesByHash(ctx context.Context, hashPIL, hashCV2 string) ([]models.ImageTensor, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, filename, tensor_pil, tensor_cv2, hash_pil, hash_cv2, tensor_shape
		FROM image_tensors
		WHERE hash_pil = ? OR hash_cv2 = ? OR hash_pil = ? OR hash_cv2 = ?`,
		hashPIL, hashPIL, hashCV2, hashCV2)
	if err != nil {
		return nil, &ingesterr.CatalogError{Operation: "fetch_tensor_candidates_by_hash", Err: err}
	}
	defer rows.Close()

	var candidates []models.ImageTensor
	for rows.Next() {
		var t models.ImageTensor
		if err := rows.Scan(&t.ID, &t.Filename, &t.TensorPIL, &t.TensorCV2, &t.HashPIL, &t.HashCV2, &t.TensorShape); err != nil {
			return nil, &ingesterr.CatalogError{Operation: "fetch_tensor_candidates_by_hash", Err: err}
		}
		candidates = append(candidates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &ingesterr.CatalogError{Operation: "fetch_tensor_candidates_by_hash", Err: err}
	}
	return candidates, nil
}

// FetchMovieCandidatesByHash returns every MovieHash row with an exact
// media_hash match; the movie matcher is exact, no confirmation pass.
func (db *DB) FetchMovieCandidatesByHash(ctx context.Context, mediaHash string) ([]models.MovieHash, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, filename, media_hash FROM movie_hashes WHERE media_hash = ?`, mediaHash)
	if err != nil {
		return nil, &ingesterr.CatalogError{Operation: "fetch_movie_candidates_by_hash", Err: err}
	}
	defer rows.Close()

	var candidates []models.MovieHash
	for rows.Next() {
		var h models.MovieHash
		if err := rows.Scan(&h.ID, &h.Filename, &h.MediaHash); err != nil {
			return nil, &ingesterr.CatalogError{Operation: "fetch_movie_candidates_by_hash", Err: err}
		}
		candidates = append(candidates, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &ingesterr.CatalogError{Operation: "fetch_movie_candidates_by_hash", Err: err}
	}
	return candidates, nil
}

// LoadKnownFaces loads every (name, encoding) pair for the face labeler's
// in-memory known-faces list, loaded once per worker process.
func (db *DB) LoadKnownFaces(ctx context.Context) ([]models.KnownFace, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, encoding FROM known_faces ORDER BY name`)
	if err != nil {
		return nil, &ingesterr.CatalogError{Operation: "load_known_faces", Err: err}
	}
	defer rows.Close()

	var faces []models.KnownFace
	for rows.Next() {
		var name string
		var encBytes []byte
		if err := rows.Scan(&name, &encBytes); err != nil {
			return nil, &ingesterr.CatalogError{Operation: "load_known_faces", Err: err}
		}
		enc, err := decodeFloat64Slice(encBytes)
		if err != nil {
			return nil, &ingesterr.CatalogError{Operation: "load_known_faces", Err: err}
		}
		faces = append(faces, models.KnownFace{Name: name, Encoding: enc})
	}
	if err := rows.Err(); err != nil {
		return nil, &ingesterr.CatalogError{Operation: "load_known_faces", Err: err}
	}
	return faces, nil
}

// AddKnownFace inserts a new identity. Idempotent on name: re-adding an
// existing name is a no-op and never overwrites the stored encoding.
func (db *DB) AddKnownFace(ctx context.Context, name string, encoding []float64) error {
	return db.withTx(ctx, "add_known_face", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO known_faces (name, encoding) VALUES (?, ?)
			ON CONFLICT (name) DO NOTHING`,
			name, encodeFloat64Slice(encoding))
		return err
	})
}

// RewriteIdentifiedFaces replaces all IdentifiedFace and matching
// TagToMedia rows for a MediaObject with a freshly-identified name list, in
// four steps inside one transaction:
//
//	(a) delete all IdentifiedFace rows for media_object_id
//	(b) delete all TagToMedia rows for media_object_id whose tag name
//	    matches any PREVIOUSLY identified face name for that same object
//	(c) insert the new identities
//	(d) upsert tags and link them
//
// Step (b) needs the previously-identified names, so they are captured
// before step (a) deletes the rows they come from; reading them after the
// delete would query an already-empty table and orphan stale tag links.
func (db *DB) RewriteIdentifiedFaces(ctx context.Context, mediaObjectID int64, names []string) error {
	return db.withTx(ctx, "rewrite_identified_faces", func(tx *sql.Tx) error {
		previousNames, err := previousIdentifiedFaceNames(ctx, tx, mediaObjectID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM identified_faces WHERE media_object_id = ?`, mediaObjectID); err != nil {
			return err
		}

		if len(previousNames) > 0 {
			if err := deleteMatchingTagLinks(ctx, tx, mediaObjectID, previousNames); err != nil {
				return err
			}
		}

		for _, name := range names {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO identified_faces (media_object_id, face_name) VALUES (?, ?)`,
				mediaObjectID, name); err != nil {
				return err
			}

			tagID, err := lookupOrCreateTagTx(ctx, tx, name)
			if err != nil {
				return err
			}
			if err := linkTagToMediaTx(ctx, tx, mediaObjectID, tagID); err != nil {
				return err
			}
		}

		return nil
	})
}

func previousIdentifiedFaceNames(ctx context.Context, tx *sql.Tx, mediaObjectID int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT face_name FROM identified_faces WHERE media_object_id = ?`, mediaObjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func deleteMatchingTagLinks(ctx context.Context, tx *sql.Tx, mediaObjectID int64, names []string) error {
	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM tag_to_media
		WHERE media_object_id = ?
		AND tag_id IN (SELECT id FROM tags WHERE name = ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, mediaObjectID, name); err != nil {
			return err
		}
	}
	return nil
}

// LookupOrCreateTag returns the id of the tag with the given name, creating
// it if it does not already exist.
func (db *DB) LookupOrCreateTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.withTx(ctx, "lookup_or_create_tag", func(tx *sql.Tx) error {
		var err error
		id, err = lookupOrCreateTagTx(ctx, tx, name)
		return err
	})
	return id, err
}

func lookupOrCreateTagTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO tags (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	return id, err
}

// LinkTagToMedia links a tag to a media object, idempotent on
// (media_object_id, tag_id).
func (db *DB) LinkTagToMedia(ctx context.Context, mediaObjectID, tagID int64) error {
	return db.withTx(ctx, "link_tag_to_media", func(tx *sql.Tx) error {
		return linkTagToMediaTx(ctx, tx, mediaObjectID, tagID)
	})
}

func linkTagToMediaTx(ctx context.Context, tx *sql.Tx, mediaObjectID, tagID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tag_to_media (media_object_id, tag_id) VALUES (?, ?)
		ON CONFLICT (media_object_id, tag_id) DO NOTHING`,
		mediaObjectID, tagID)
	return err
}

// IsInvalidFaceLocation reports whether a detected face box matches a
// blacklisted InvalidFace tuple for the given media object.
func (db *DB) IsInvalidFaceLocation(ctx context.Context, mediaObjectID int64, box models.FaceBox) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invalid_faces
		WHERE media_object_id = ? AND top = ? AND "right" = ? AND bottom = ? AND "left" = ?`,
		mediaObjectID, box.Top, box.Right, box.Bottom, box.Left).Scan(&count)
	if err != nil {
		return false, &ingesterr.CatalogError{Operation: "is_invalid_face_location", Err: err}
	}
	return count > 0, nil
}
