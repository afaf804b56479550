// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with a generous timeout for DDL
// operations, which can be slow on first run against a cold file.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSequences creates the BIGINT surrogate-key generators. DuckDB has no
// native auto-increment column; CREATE SEQUENCE + nextval() is the
// documented substitute.
func (db *DB) createSequences() error {
	ctx, cancel := schemaContext()
	defer cancel()

	sequences := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_media_objects START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_image_tensors START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_movie_hashes START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS seq_tags START 1;`,
	}

	for _, query := range sequences {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create sequence: %s: %w", query, err)
		}
	}
	return nil
}

// createTables creates the core catalog tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS media_objects (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_media_objects'),
			orig_name TEXT NOT NULL,
			media_type TEXT NOT NULL CHECK (media_type IN ('image', 'movie')),
			new_name TEXT,
			new_path TEXT,
			media_create_date TIMESTAMP,
			latitude DOUBLE,
			longitude DOUBLE,
			location_class TEXT,
			location_type TEXT,
			location_name TEXT,
			location_display_name TEXT,
			city TEXT,
			province TEXT,
			country TEXT,
			image_tensor_id BIGINT,
			movie_hash_id BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT true,
			width INTEGER,
			height INTEGER,
			created_by TEXT,
			created_ip TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS image_tensors (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_image_tensors'),
			filename TEXT NOT NULL,
			tensor_pil BLOB NOT NULL,
			tensor_cv2 BLOB NOT NULL,
			hash_pil TEXT NOT NULL,
			hash_cv2 TEXT NOT NULL,
			tensor_shape TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS movie_hashes (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_movie_hashes'),
			filename TEXT NOT NULL,
			media_hash TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS media_metadata (
			media_object_id BIGINT NOT NULL,
			exif_tag TEXT NOT NULL,
			exif_data TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS known_faces (
			name TEXT PRIMARY KEY,
			encoding BLOB NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS identified_faces (
			media_object_id BIGINT NOT NULL,
			face_name TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS invalid_faces (
			media_object_id BIGINT NOT NULL,
			top INTEGER NOT NULL,
			"right" INTEGER NOT NULL,
			bottom INTEGER NOT NULL,
			"left" INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS tags (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_tags'),
			name TEXT NOT NULL UNIQUE
		);`,

		`CREATE TABLE IF NOT EXISTS tag_to_media (
			media_object_id BIGINT NOT NULL,
			tag_id BIGINT NOT NULL,
			UNIQUE (media_object_id, tag_id)
		);`,
	}
}

// createIndexes creates the indexes the duplicate prefilter, face labeler,
// and reap/report paths depend on for reasonable query latency.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_media_objects_media_type ON media_objects(media_type);`,
		`CREATE INDEX IF NOT EXISTS idx_media_objects_is_active ON media_objects(is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_image_tensors_hash_pil ON image_tensors(hash_pil);`,
		`CREATE INDEX IF NOT EXISTS idx_image_tensors_hash_cv2 ON image_tensors(hash_cv2);`,
		`CREATE INDEX IF NOT EXISTS idx_movie_hashes_media_hash ON movie_hashes(media_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_media_metadata_media_object_id ON media_metadata(media_object_id);`,
		`CREATE INDEX IF NOT EXISTS idx_identified_faces_media_object_id ON identified_faces(media_object_id);`,
		`CREATE INDEX IF NOT EXISTS idx_invalid_faces_media_object_id ON invalid_faces(media_object_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tag_to_media_media_object_id ON tag_to_media(media_object_id);`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
