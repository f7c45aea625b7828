package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/objectstore"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := objectstore.JobKey("owner-1", "job-1", "sections/intro.md")

	require.NoError(t, store.Put(ctx, key, []byte("hello"), "text/markdown"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	keys, err := store.List(ctx, objectstore.JobKey("owner-1", "job-1", ""))
	require.NoError(t, err)
	require.Contains(t, keys, key)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestJobKeyPartitionsByOwnerAndJob(t *testing.T) {
	a := objectstore.JobKey("owner-a", "job-1", "plan.json")
	b := objectstore.JobKey("owner-b", "job-1", "plan.json")
	require.NotEqual(t, a, b)
}
