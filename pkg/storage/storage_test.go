package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/codec/codectest"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/store"
)

func openCache(t *testing.T) *IndexCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache"), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func table(t *testing.T) *index.Table {
	t.Helper()
	data := codectest.Encode(t, codec.NewRecordCodec(nil),
		codectest.SPO(1), codectest.MRZ(0, 4, 2, 1, 2), codectest.MRZ(0, 4, 2, 0, 2), codectest.XMC("x", 3))
	tbl, err := index.Build(context.Background(), bytes.NewReader(data), int64(len(data)), index.Options{})
	require.NoError(t, err)
	return tbl
}

func TestIndexCache_RoundTrip(t *testing.T) {
	c := openCache(t)
	want := table(t)

	got, err := c.Load("/data/a.kmall|100|1|little")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Save("/data/a.kmall|100|1|little", want))
	got, err = c.Load("/data/a.kmall|100|1|little")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Entries(), got.Entries())
	assert.Equal(t, want.Report(), got.Report())
	assert.True(t, want.Pings().Equals(got.Pings()))
}

func TestIndexCache_SaveReplacesOlderVersions(t *testing.T) {
	c := openCache(t)
	tbl := table(t)

	require.NoError(t, c.Save("/data/a.kmall|100|1|little", tbl))
	require.NoError(t, c.Save("/data/ab.kmall|100|1|little", tbl))
	require.NoError(t, c.Save("/data/a.kmall|120|2|little", tbl))

	snaps, err := c.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "/data/a.kmall|120|2|little", snaps[0].Key)
	assert.Equal(t, "/data/ab.kmall|100|1|little", snaps[1].Key)
	assert.WithinDuration(t, time.Now(), snaps[0].Created, time.Minute)
	assert.Positive(t, snaps[0].Size)
	assert.NotEqual(t, snaps[0].ID, snaps[1].ID)

	got, err := c.Load("/data/a.kmall|100|1|little")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIndexCache_Invalidate(t *testing.T) {
	c := openCache(t)
	abs, err := filepath.Abs("survey.kmall")
	require.NoError(t, err)
	require.NoError(t, c.Save(abs+"|1|1|big", table(t)))

	require.NoError(t, c.Invalidate("survey.kmall"))
	snaps, err := c.Snapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestIndexCache_EvictsUndecodableEntries(t *testing.T) {
	c := openCache(t)
	require.NoError(t, c.db.Set([]byte(tablePrefix+"/x|1|1|little"), []byte("short"), pebble.NoSync))
	require.NoError(t, c.db.Set([]byte(tablePrefix+"/y|1|1|little"), append(make([]byte, idLength), "not zstd"...), pebble.NoSync))

	for _, key := range []string{"/x|1|1|little", "/y|1|1|little"} {
		got, err := c.Load(key)
		require.NoError(t, err)
		assert.Nil(t, got)
		_, _, err = c.db.Get([]byte(tablePrefix + key))
		assert.ErrorIs(t, err, pebble.ErrNotFound)
	}
}

func TestIndexCache_ServesFileReader(t *testing.T) {
	c := openCache(t)
	path := filepath.Join(t.TempDir(), "line.kmall")
	data := codectest.Encode(t, codec.NewRecordCodec(nil), codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2))
	require.NoError(t, os.WriteFile(path, data, 0600))

	count := func() int {
		r, err := store.OpenFile(store.ReaderConfig{FilePath: path, Cache: c})
		require.NoError(t, err)
		defer r.Close()
		n := 0
		it := r.Iterator(context.Background())
		for it.Next() {
			n++
		}
		require.NoError(t, it.Err())
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	snaps, err := c.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	// A changed file gets a new key and replaces the old table.
	data = append(data, codectest.Encode(t, codec.NewRecordCodec(nil), codectest.SPO(3))...)
	require.NoError(t, os.WriteFile(path, data, 0600))
	assert.Equal(t, 3, count())
	snaps, err = c.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("table0"), upperBound([]byte("table/")))
	assert.Equal(t, []byte{'b'}, upperBound([]byte{'a', 0xff}))
	assert.Nil(t, upperBound([]byte{0xff, 0xff}))
}
