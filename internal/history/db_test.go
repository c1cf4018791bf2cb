package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	var n int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(1) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLog_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Started(ctx, "g1", true))
	r, err := l.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, r.Status)
	assert.True(t, r.Daily)
	assert.Equal(t, clock, r.StartedAt)
	assert.Nil(t, r.FinishedAt)

	clock = clock.Add(time.Minute)
	require.NoError(t, l.Won(ctx, "g1", 18))
	require.NoError(t, l.Won(ctx, "g1", 40)) // ignored, already won

	r, err = l.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, StatusWon, r.Status)
	assert.Equal(t, 18, r.Presses)
	require.NotNil(t, r.FinishedAt)
	assert.Equal(t, clock, *r.FinishedAt)

	require.NoError(t, l.Restarted(ctx, "g1"))
	r, err = l.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, r.Status)
	assert.Equal(t, 1, r.Restarts)
	assert.Equal(t, 0, r.Presses)
	assert.Nil(t, r.FinishedAt)
}

func TestLog_GetMissing(t *testing.T) {
	_, err := openTemp(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLog_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Started(ctx, id, false))
		clock = clock.Add(time.Second)
	}

	recs, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
}
