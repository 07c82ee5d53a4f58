package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snake-market/internal/model"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "snake_scores.json"))

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "snake_scores.json")
	store := NewFileStore(path)

	played := time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)
	in := []model.ScoreRecord{
		{UserID: "76561198000000002@steam", LastKnownName: "Bob", TotalScore: 12, LastPlayed: played},
		{UserID: "76561198000000001@steam", LastKnownName: "Alice", TotalScore: 40, LastPlayed: played.Add(time.Minute)},
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Load returns records ordered by id.
	assert.Equal(t, "76561198000000001@steam", out[0].UserID)
	assert.Equal(t, "Alice", out[0].LastKnownName)
	assert.Equal(t, int64(40), out[0].TotalScore)
	assert.True(t, out[0].LastPlayed.Equal(played.Add(time.Minute)))
	assert.Equal(t, "Bob", out[1].LastKnownName)
	assert.True(t, out[1].LastPlayed.Equal(played))

	// No temp files are left next to the target.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_ReadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snake_scores.json")
	legacy := `{
  "76561198000000001@steam": {
    "UserId": "76561198000000001@steam",
    "LastKnownName": "Alice",
    "TotalScore": 55,
    "LastPlayed": "2024-11-02T18:20:31.1234567+01:00"
  },
  "2@northwood": {
    "LastKnownName": "Dev",
    "TotalScore": 3,
    "LastPlayed": "2024-11-02T18:20:31.1234567"
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	out, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "2@northwood", out[0].UserID, "user id falls back to the map key")
	assert.Equal(t, int64(3), out[0].TotalScore)
	assert.Equal(t, 2024, out[0].LastPlayed.Year())

	assert.Equal(t, int64(55), out[1].TotalScore)
	assert.Equal(t, 18, out[1].LastPlayed.Hour())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snake_scores.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestFileStore_EmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snake_scores.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	out, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(model.ScoreRecord{UserID: "a", TotalScore: 1})

	require.NoError(t, store.Save(ctx, []model.ScoreRecord{{UserID: "b", TotalScore: 2}}))
	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].UserID)
	assert.Equal(t, 1, store.Saves())
}
