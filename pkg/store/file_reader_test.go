package store

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/codec/codectest"
	"github.com/ssargent/kmall/pkg/index"
)

func writeKMALL(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "0001_20231114_120000.kmall")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// readAll drains a reader, summarising each logical record as it arrives
// since records are only valid until the next call.
func readAll(t *testing.T, next func(context.Context) (*LogicalRecord, error)) []string {
	t.Helper()
	var out []string
	for {
		lr, err := next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, describe(lr))
	}
}

func describe(lr *LogicalRecord) string {
	if lr.Ping == nil {
		return lr.Kind.String()
	}
	s := "ping"
	for range lr.Ping.MRZ {
		s += " MRZ"
	}
	for range lr.Ping.XMT {
		s += " XMT"
	}
	if lr.Ping.XMS != nil {
		s += " XMS"
	}
	for range lr.Ping.MWC {
		s += " MWC"
	}
	return s
}

type recorder struct {
	nav, heading, attitude, depth, heave int
}

func (r *recorder) AddNavigation(t, lon, lat, speed float64) { r.nav++ }
func (r *recorder) AddHeading(t, heading float64)            { r.heading++ }
func (r *recorder) AddAttitude(t, roll, pitch, heave float64) {
	r.attitude++
}
func (r *recorder) AddSensorDepth(t, depth float64) { r.depth++ }
func (r *recorder) AddHeave(t, heave float64)       { r.heave++ }

func (r *recorder) sinks() Sinks {
	return Sinks{Navigation: r, Heading: r, Attitude: r, SensorDepth: r, Heave: r}
}

func TestNewFileReader_NonExistentFile(t *testing.T) {
	reader, err := OpenFile(ReaderConfig{FilePath: "/non/existent/file.kmall"})
	assert.Error(t, err)
	assert.Nil(t, reader)
}

func TestFileReader_CanonicalOrder(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.SPO(10),
		codectest.MRZ(0, 1, 2, 1, 11.1),
		codectest.MRZ(0, 1, 2, 0, 11.0),
		codectest.XMC("line 12", 20),
		codectest.SPO(12),
	))

	rec := &recorder{}
	reader, err := OpenFile(ReaderConfig{FilePath: path, Sinks: rec.sinks()})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"XMC", "SPO", "ping MRZ MRZ", "SPO"}, readAll(t, reader.Next))
	assert.Equal(t, 2, rec.nav)

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.Decoded[codec.KindMRZ])
	assert.Equal(t, int64(1), stats.Pings)
	assert.Zero(t, stats.Dropped)
	assert.False(t, reader.Pending())

	// Exhausted readers keep reporting the end.
	_, err = reader.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestFileReader_SinksFedFromSensorRecords(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	var recs []codec.Record
	for _, r := range codectest.Samples(1) {
		if r.Kind().IsPingFragment() || r.Kind() == codec.KindUnknown {
			continue
		}
		recs = append(recs, r)
	}
	path := writeKMALL(t, codectest.Encode(t, c, recs...))

	rec := &recorder{}
	reader, err := OpenFile(ReaderConfig{FilePath: path, Sinks: rec.sinks()})
	require.NoError(t, err)
	defer reader.Close()
	readAll(t, reader.Next)

	// SPO, CPO and two SKM samples
	assert.Equal(t, 4, rec.nav)
	// two SKM samples and two SHA samples
	assert.Equal(t, 4, rec.heading)
	assert.Equal(t, 2, rec.attitude)
	assert.Equal(t, 1, rec.depth)
	assert.Equal(t, 1, rec.heave)
}

func TestFileReader_WaterColumnWithoutMarker(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.MRZ(0, 1, 1, 0, 1),
		codectest.MWC(0, 1, 1, 0, 1, codec.PhaseHighRes),
		codectest.MRZ(0, 2, 1, 0, 2),
		codectest.MWC(0, 2, 1, 0, 2, codec.PhaseHighRes),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"ping MRZ MWC", "ping MRZ MWC"}, readAll(t, reader.Next))
}

func TestFileReader_WaterColumnStartsMidFile(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.MRZ(0, 1, 1, 0, 1),
		codectest.MRZ(0, 2, 1, 0, 2),
		codectest.MRZ(0, 3, 1, 0, 3),
		codectest.MWC(0, 3, 1, 0, 3, codec.PhaseHighRes),
		codectest.MRZ(0, 4, 1, 0, 4),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"ping MRZ", "ping MRZ", "ping MRZ MWC", "ping MRZ"}, readAll(t, reader.Next))
	assert.Zero(t, reader.Stats().Dropped)
	assert.False(t, reader.Pending())

	// Rewinding plans the pings again.
	reader.Rewind()
	assert.Len(t, readAll(t, reader.Next), 4)
}

func TestFileReader_ExtensionFansWithoutSidescan(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.MRZ(0, 9, 2, 0, 5),
		codectest.XMT(9, 2, 0, 5),
		codectest.MRZ(0, 9, 2, 1, 5),
		codectest.XMT(9, 2, 1, 5),
		codectest.MRZ(0, 10, 1, 0, 6),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"ping MRZ MRZ XMT XMT", "ping MRZ"}, readAll(t, reader.Next))
	assert.Zero(t, reader.Stats().Dropped)
}

func TestFileReader_ExtensionPing(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.XMB(true, true),
		codectest.MWC(0, 7, 2, 1, 5, codec.PhaseNone),
		codectest.MWC(0, 7, 2, 0, 5, codec.PhaseNone),
		codectest.XMS(7, 5),
		codectest.XMT(7, 2, 0, 5),
		codectest.XMT(7, 2, 1, 5),
		codectest.MRZ(1, 7, 2, 1, 5),
		codectest.MRZ(1, 7, 2, 0, 5),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"XMB", "ping MRZ MRZ XMT XMT XMS MWC MWC"}, readAll(t, reader.Next))
}

func TestFileReader_DropsPartitionedRecords(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	split := codectest.MRZ(0, 1, 2, 1, 1)
	split.Partition = codec.Partition{NumOfDgms: 2, DgmNum: 1}
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.MRZ(0, 1, 2, 0, 1),
		split,
		codectest.SPO(2),
	))

	var dropped []*codec.RecordError
	reader, err := OpenFile(ReaderConfig{FilePath: path, OnDrop: func(e *codec.RecordError) { dropped = append(dropped, e) }})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"SPO"}, readAll(t, reader.Next))
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0], codec.ErrUnintelligible)
	assert.Equal(t, codec.KindMRZ, dropped[0].Kind)
	assert.Equal(t, int64(1), reader.Stats().Dropped)
	assert.True(t, reader.Pending(), "the partial ping is never delivered")
}

func TestFileReader_SurvivesCorruption(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	good := codectest.Encode(t, c, codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2))
	tail := codectest.Encode(t, c, codectest.SPO(3))
	data := append(append(append([]byte{}, good...), "not a datagram at all"...), tail...)
	path := writeKMALL(t, data)

	var events []index.Event
	reader, err := OpenFile(ReaderConfig{FilePath: path, Observer: func(e index.Event) { events = append(events, e) }})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"SPO", "ping MRZ", "SPO"}, readAll(t, reader.Next))
	stats := reader.Stats()
	assert.Equal(t, int64(len("not a datagram at all")), stats.Skipped)
	assert.Equal(t, int64(1), stats.Resyncs)
	require.Len(t, events, 1)
	assert.Equal(t, index.EventResync, events[0].Type)
}

func TestFileReader_SniffsBigEndian(t *testing.T) {
	c := codec.NewRecordCodec(binary.BigEndian)
	path := writeKMALL(t, codectest.Encode(t, c, codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2)))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"SPO", "ping MRZ"}, readAll(t, reader.Next))
}

func TestFileReader_IndexIdempotentAndClose(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c, codectest.SPO(1)))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, reader.Index(ctx))
	table := reader.Table()
	require.NoError(t, reader.Index(ctx))
	assert.Same(t, table, reader.Table())
	assert.Equal(t, path, reader.Path())

	require.NoError(t, reader.Close())
	assert.NoError(t, reader.Close())
	_, err = reader.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileReader_IteratorAndRewind(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2), codectest.XMC("x", 3),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	count := func() int {
		it := reader.Iterator(context.Background())
		defer it.Close()
		n := 0
		for it.Next() {
			assert.NotNil(t, it.Record())
			n++
		}
		assert.NoError(t, it.Err())
		assert.False(t, it.Next())
		return n
	}
	assert.Equal(t, 3, count())
	reader.Rewind()
	assert.Equal(t, 3, count())
}

type mapCache struct {
	tables      map[string]*index.Table
	loads, hits int
	saves       int
}

func (m *mapCache) Load(key string) (*index.Table, error) {
	m.loads++
	t, ok := m.tables[key]
	if ok {
		m.hits++
	}
	return t, nil
}

func (m *mapCache) Save(key string, t *index.Table) error {
	m.saves++
	m.tables[key] = t
	return nil
}

func TestFileReader_UsesIndexCache(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c, codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2)))
	cache := &mapCache{tables: make(map[string]*index.Table)}

	for i := 0; i < 2; i++ {
		reader, err := OpenFile(ReaderConfig{FilePath: path, Cache: cache})
		require.NoError(t, err)
		assert.Equal(t, []string{"SPO", "ping MRZ"}, readAll(t, reader.Next))
		require.NoError(t, reader.Close())
	}
	assert.Equal(t, 2, cache.loads)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.saves)
}

func TestFileReader_Explain(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	path := writeKMALL(t, codectest.Encode(t, c,
		codectest.SPO(1),
		codectest.MRZ(0, 1, 1, 0, 2),
		codectest.MRZ(0, 2, 1, 0, 3),
		codectest.XMC("x", 3),
	))

	reader, err := OpenFile(ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer reader.Close()

	res, err := reader.Explain(context.Background(), ExplainOptions{WithSamples: 2, WithPings: true})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Global.Records)
	assert.Equal(t, uint64(2), res.Global.PingCounters)
	assert.Equal(t, int64(2), res.Global.Pings)
	assert.Len(t, res.Diagnostics.Samples, 2)
	assert.Equal(t, "XMC", res.Diagnostics.Samples[0].Kind)
	assert.Len(t, res.Kinds, 3)
	assert.Equal(t, "MRZ", res.Kinds[0].Kind)
	assert.Equal(t, int64(1), res.Global.FirstTime.Unix())
	assert.Equal(t, int64(3), res.Global.LastTime.Unix())
	assert.Contains(t, res.Warnings, "no installation parameters")

	// Explain leaves the reader at the start.
	assert.Len(t, readAll(t, reader.Next), 4)
}
