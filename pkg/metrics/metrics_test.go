package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/store"
)

func TestMetrics_Session(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordEvent(index.Event{Type: index.EventResync, Length: 17})
	m.RecordEvent(index.Event{Type: index.EventResync, Length: 3})
	m.RecordEvent(index.Event{Type: index.EventCorruptHeader, Length: 1 << 30})
	m.RecordDropped(&codec.RecordError{Kind: codec.KindMRZ, Err: codec.ErrUnintelligible})
	m.RecordReader(store.ReaderStats{Decoded: map[codec.Kind]int64{codec.KindMRZ: 4, codec.KindSPO: 2}, Pings: 2})
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordWriter(map[codec.Kind]int64{codec.KindXMB: 1}, 128)

	assert.Equal(t, 20.0, testutil.ToFloat64(m.resyncBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corruptHeaders))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsDropped.WithLabelValues("MRZ", "unintelligible")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.recordsDecoded.WithLabelValues("MRZ")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pingsDelivered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(cacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsWritten.WithLabelValues("XMB")))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.bytesWritten))
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&codec.RecordError{Err: codec.ErrBadData}, "bad_data"},
		{fmt.Errorf("wrapped: %w", codec.ErrUnintelligible), "unintelligible"},
		{&codec.RecordError{Err: store.ErrStaleFragment}, "stale"},
		{codec.ErrInconsistent, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DropReason(tt.err))
		})
	}
}

func TestMetrics_InstrumentHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	h := m.InstrumentHandler("GET", "/api/v1/files", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/v1/files", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/files", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight.WithLabelValues("GET", "/api/v1/files")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordEvent(index.Event{})
	m.RecordCacheLookup(true)
	m.RecordReader(store.ReaderStats{})
	m.RecordHTTPRequest("GET", "/", 200, 0)

	called := false
	h := m.InstrumentHandler("GET", "/", func(http.ResponseWriter, *http.Request) { called = true })
	h(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.True(t, called)
}
