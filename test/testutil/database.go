// Package testutil provides shared PostgreSQL test infrastructure for
// package tests that exercise the Status Store and Queue Broker against a
// real database rather than a fake.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/docwriter/pkg/database"
)

var (
	sharedDB      *sqlx.DB
	containerOnce sync.Once
	containerErr  error
)

// tables lists every migrated table, in an order safe for TRUNCATE with
// foreign keys still enabled (children before parents, or CASCADE).
var tables = []string{
	"queue_messages", "document_index", "timeline_events", "final_artifacts",
	"diagram_assets", "diagram_specs", "rewrite_results", "verify_reports",
	"review_notes", "section_drafts", "plans", "intake_records", "jobs",
}

// NewTestDB returns a *sqlx.DB backed by a shared PostgreSQL testcontainer
// (started once per test binary) with all tables truncated before the
// test runs, giving each test a clean slate without paying container
// startup cost per test.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := sharedTestDB(t)

	ctx := context.Background()
	_, err := db.ExecContext(ctx, "TRUNCATE "+joinTables()+" CASCADE")
	require.NoError(t, err)

	return db
}

func sharedTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("docwriter_test"),
			postgres.WithUsername("docwriter_test"),
			postgres.WithPassword("docwriter_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = err
			return
		}
		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = err
			return
		}
		sharedDB, containerErr = database.NewClient(ctx, parseConnString(connStr))
	})
	require.NoError(t, containerErr)
	return sharedDB
}

func joinTables() string {
	out := ""
	for i, tbl := range tables {
		if i > 0 {
			out += ", "
		}
		out += tbl
	}
	return out
}
