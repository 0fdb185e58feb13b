package metadata

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "files_metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CheckVersion())

	n, err := db.CountFiles()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files_metadata.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "a.book"}))
	require.NoError(t, db.Close())

	// reopening must keep data and still pass the version check
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CheckVersion())

	n, err := db.CountFiles()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertPreservesID(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "a.book", MD5: "one"}))
	first, err := db.QueryFileStats("a.book")
	require.NoError(t, err)
	require.NotNil(t, first)

	// a play event now references the row
	require.NoError(t, db.AddPlayEvent("a.book", time.Now()))

	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "a.book", MD5: "two", Notes: "fixed"}))
	second, err := db.QueryFileStats("a.book")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "two", second.MD5)
	assert.Equal(t, "fixed", second.Notes)
	// the event survived the update
	assert.Equal(t, uint32(1), second.PlayCount)
}

func TestPlayEventAggregates(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "march.book"}))

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.AddPlayEvent("march.book", base.Add(time.Duration(i)*time.Hour)))
	}

	stats, err := db.QueryFileStats("march.book")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(5), stats.PlayCount)
	assert.Equal(t, uint32(0), stats.StarCount)
	assert.Equal(t, base.Add(4*time.Hour), stats.LatestPlayTime)
}

func TestStarEvents(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "waltz.mid"}))

	require.NoError(t, db.AddStarEvent("waltz.mid", time.Now()))
	require.NoError(t, db.AddStarEvent("waltz.mid", time.Now()))

	stats, err := db.QueryFileStats("waltz.mid")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(2), stats.StarCount)
	assert.Equal(t, uint32(0), stats.PlayCount)
}

func TestEventsForUnknownFile(t *testing.T) {
	db := openTestDB(t)

	err := db.AddPlayEvent("nope.mid", time.Now())
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = db.AddStarEvent("nope.mid", time.Now())
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = db.AddPlayEventsBatch("nope.mid", []time.Time{time.Now()})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestQueryUnknownFileIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.QueryFileStats("never-seen.book")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestLatestPlayTimeDefaultsToEpoch(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "quiet.mid"}))

	stats, err := db.QueryFileStats("quiet.mid")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(0), stats.PlayCount)
	assert.Equal(t, time.Unix(0, 0).UTC(), stats.LatestPlayTime)
}

func TestUpsertFileStatsBatch(t *testing.T) {
	db := openTestDB(t)

	list := make([]FileStats, 250)
	for i := range list {
		list[i] = FileStats{RelativePath: fmt.Sprintf("folder/file-%03d.book", i)}
	}
	require.NoError(t, db.UpsertFileStatsBatch(list))

	n, err := db.CountFiles()
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	// the batch form is still an upsert
	require.NoError(t, db.UpsertFileStatsBatch(list))
	n, err = db.CountFiles()
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)
}

func TestAddPlayEventsBatch(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "loop.mid"}))

	times := make([]time.Time, 150)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Minute)
	}
	require.NoError(t, db.AddPlayEventsBatch("loop.mid", times))

	n, err := db.CountPlayEvents()
	require.NoError(t, err)
	assert.Equal(t, int64(150), n)

	stats, err := db.QueryFileStats("loop.mid")
	require.NoError(t, err)
	assert.Equal(t, base.Add(149*time.Minute), stats.LatestPlayTime)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files_metadata.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.UpsertFileStats(FileStats{RelativePath: "keep.book"}))
	require.NoError(t, db.AddPlayEvent("keep.book", time.Now()))
	require.NoError(t, db.Checkpoint())
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	stats, err := db.QueryFileStats("keep.book")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(1), stats.PlayCount)
}
