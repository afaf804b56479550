// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package models defines the catalog data structures shared by the ingestion
pipeline and the catalog gateway.

These types mirror the schema persisted by internal/catalog: MediaObject is
the canonical per-file record; ImageTensor and MovieHash hold fingerprint
data; MediaMetadata holds flattened EXIF/probe key-value pairs; KnownFace,
IdentifiedFace, and InvalidFace support the face-labeling subsystem; Tag and
TagToMedia implement free-form tagging of media objects.

# Thread Safety

All models are plain data holders, safe for concurrent read access once
constructed. They carry no internal synchronization; callers own
serialization across goroutines.

See Also

  - internal/catalog: persists and queries these models
  - internal/pipeline: constructs and mutates these models during ingestion
*/
package models
