package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLTier(t *testing.T) *SQLTier {
	t.Helper()

	tier, err := NewSQLTier("sqlite3", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}

func TestSQLTier(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert And Get", func(t *testing.T) {
		tier := setupSQLTier(t)

		require.NoError(t, tier.Upsert(ctx, "k1", "e1", "histogram", []byte(`[1,2,3]`)))

		got, err := tier.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`[1,2,3]`), got)
	})

	t.Run("Missing Key", func(t *testing.T) {
		tier := setupSQLTier(t)

		_, err := tier.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = tier.GetRecord(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Upsert Replaces Whole Value", func(t *testing.T) {
		tier := setupSQLTier(t)

		require.NoError(t, tier.Upsert(ctx, "k1", "e1", "histogram", []byte(`"old"`)))
		require.NoError(t, tier.Upsert(ctx, "k1", "e1", "histogram", []byte(`"new"`)))

		got, err := tier.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`"new"`), got)

		rec, err := tier.GetRecord(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "e1", rec.MetadataID)
		assert.Equal(t, "histogram", rec.PropertyName)
		assert.False(t, rec.CreatedAt.IsZero())
		assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
	})

	t.Run("ListKeysByEntity", func(t *testing.T) {
		tier := setupSQLTier(t)

		require.NoError(t, tier.Upsert(ctx, "k1", "e1", "histogram", []byte("1")))
		require.NoError(t, tier.Upsert(ctx, "k2", "e1", "texture", []byte("2")))
		require.NoError(t, tier.Upsert(ctx, "k3", "e2", "histogram", []byte("3")))

		keys, err := tier.ListKeysByEntity(ctx, "e1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"k1", "k2"}, keys)

		keys, err = tier.ListKeysByEntity(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		tier := setupSQLTier(t)

		require.NoError(t, tier.Upsert(ctx, "k1", "e1", "histogram", []byte("1")))
		require.NoError(t, tier.Delete(ctx, "k1"))

		_, err := tier.Get(ctx, "k1")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting an absent key is not an error.
		assert.NoError(t, tier.Delete(ctx, "k1"))
	})
}
