package recent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMovesDuplicateToFront(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(5)

	for _, pid := range []string{"p1", "p2", "p3", "p2"} {
		require.NoError(t, store.Record(ctx, "scope-a", pid))
	}

	got, err := store.List(ctx, "scope-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3", "p1"}, got)
}

func TestRecordCapsList(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(3)

	for _, pid := range []string{"p1", "p2", "p3", "p4"} {
		require.NoError(t, store.Record(ctx, "scope-a", pid))
	}

	got, err := store.List(ctx, "scope-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"p4", "p3", "p2"}, got)
}

func TestPurgeScopeIsScoped(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory(5)
	require.NoError(t, store.Record(ctx, "scope-a", "p1"))
	require.NoError(t, store.Record(ctx, "scope-b", "p2"))

	require.NoError(t, store.PurgeScope(ctx, "scope-a"))

	gotA, err := store.List(ctx, "scope-a")
	require.NoError(t, err)
	assert.Empty(t, gotA)

	gotB, err := store.List(ctx, "scope-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, gotB)
}
