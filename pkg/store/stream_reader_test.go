package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/codec/codectest"
	"github.com/ssargent/kmall/pkg/index"
)

func streamFixture(t *testing.T) ([]byte, int) {
	t.Helper()
	c := codec.NewRecordCodec(nil)
	garbage := []byte("\xab\xcd#ZZ garbage")
	var data []byte
	data = append(data, garbage...)
	data = append(data, codectest.Encode(t, c,
		codectest.SPO(1),
		codectest.MRZ(0, 1, 2, 1, 2),
		codectest.MRZ(0, 1, 2, 0, 2),
	)...)
	data = append(data, garbage...)
	data = append(data, codectest.Encode(t, c, codectest.XMC("end", 3))...)
	return data, len(garbage)
}

func TestStreamReader_ArrivalOrderWithGarbage(t *testing.T) {
	data, garbage := streamFixture(t)

	var events []index.Event
	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{Observer: func(e index.Event) { events = append(events, e) }})
	defer reader.Close()

	assert.Equal(t, []string{"SPO", "ping MRZ MRZ", "XMC"}, readAll(t, reader.Next))

	stats := reader.Stats()
	assert.Equal(t, int64(2*garbage), stats.Skipped)
	assert.Equal(t, int64(2), stats.Resyncs)
	assert.Equal(t, int64(1), stats.Pings)
	assert.Equal(t, int64(len(data)), reader.Offset())

	require.Len(t, events, 2)
	assert.Equal(t, index.Event{Type: index.EventResync, Offset: 0, Length: int64(garbage)}, events[0])
}

func TestStreamReader_OneByteAtATime(t *testing.T) {
	data, _ := streamFixture(t)
	reader := NewStreamReader(iotest.OneByteReader(bytes.NewReader(data)), ReaderConfig{BlockSize: 16})
	defer reader.Close()

	assert.Equal(t, []string{"SPO", "ping MRZ MRZ", "XMC"}, readAll(t, reader.Next))
}

func TestStreamReader_BigEndian(t *testing.T) {
	c := codec.NewRecordCodec(binary.BigEndian)
	data := codectest.Encode(t, c, codectest.SPO(1), codectest.MRZ(0, 1, 1, 0, 2))
	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{})

	assert.Equal(t, []string{"SPO", "ping MRZ"}, readAll(t, reader.Next))
}

func TestStreamReader_PartialPingAtEOF(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	data := codectest.Encode(t, c, codectest.MRZ(0, 9, 2, 0, 1))
	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{})

	_, err := reader.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.True(t, reader.Pending())
	assert.Zero(t, reader.Stats().Pings)
}

func TestStreamReader_TruncatedTail(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	spo := codectest.Encode(t, c, codectest.SPO(1))
	mrz := codectest.Encode(t, c, codectest.MRZ(0, 1, 1, 0, 2))
	cut := len(mrz) / 2
	data := append(append([]byte{}, spo...), mrz[:cut]...)

	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{})
	assert.Equal(t, []string{"SPO"}, readAll(t, reader.Next))

	stats := reader.Stats()
	assert.Equal(t, int64(1), stats.Corrupted)
	assert.Equal(t, int64(cut), stats.Skipped)
	assert.Equal(t, int64(len(data)), reader.Offset())
}

func TestStreamReader_BadTrailer(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	bad := codectest.Encode(t, c, codectest.SPO(1))
	bad[len(bad)-1] ^= 0xff
	data := append(bad, codectest.Encode(t, c, codectest.SPO(2))...)

	var dropped int
	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{OnDrop: func(*codec.RecordError) { dropped++ }})
	lr, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, lr.Time())
	assert.Equal(t, int64(1), reader.Stats().Corrupted)
	assert.Equal(t, int64(len(bad)), reader.Stats().Skipped)
	assert.Zero(t, dropped, "corrupt framing is skipped, not dropped")
}

func TestStreamReader_ReadError(t *testing.T) {
	c := codec.NewRecordCodec(nil)
	boom := errors.New("link down")
	r := io.MultiReader(bytes.NewReader(codectest.Encode(t, c, codectest.SPO(1))), iotest.ErrReader(boom))
	reader := NewStreamReader(r, ReaderConfig{})

	lr, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, codec.KindSPO, lr.Kind)

	_, err = reader.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStreamReader_ContextAndClose(t *testing.T) {
	data, _ := streamFixture(t)
	reader := NewStreamReader(bytes.NewReader(data), ReaderConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reader.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	it := reader.Iterator(context.Background())
	require.True(t, it.Next())
	assert.Equal(t, codec.KindSPO, it.Record().Kind)

	require.NoError(t, reader.Close())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrClosed)
}

func TestStreamReader_Empty(t *testing.T) {
	reader := NewStreamReader(bytes.NewReader(nil), ReaderConfig{})
	_, err := reader.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, reader.Stats().Skipped)
}
