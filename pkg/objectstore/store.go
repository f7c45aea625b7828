// Package objectstore implements the Object Store: content-addressed
// storage for everything a job produces that is too large or too
// free-form for the Status Store's relational rows — drafts, diagrams,
// and the final artifact bundle. Every path is partitioned by
// (owner, job) so a leaked path from one job can never resolve into
// another owner's data.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("object not found")

// Store is the interface every stage handler uses to read and write job
// artifacts. S3Store is the production implementation; FSStore backs
// local development and tests.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// JobKey builds the canonical path for an object belonging to a job,
// matching the owner/job partitioning the status store enforces on rows.
func JobKey(ownerID, jobID, relPath string) string {
	return fmt.Sprintf("jobs/%s/%s/%s", ownerID, jobID, relPath)
}

// copyReader is a small helper so implementations can accept io.Reader
// without each one re-deriving the same byte-slice drain logic.
func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
