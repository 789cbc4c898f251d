package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ssargent/kmall/pkg/codec"
)

// ExplainOptions configures the explain operation
type ExplainOptions struct {
	WithSamples int  // number of leading entries to include
	WithPings   bool // count pings by reading the whole file
}

// ExplainResult summarises an indexed file
type ExplainResult struct {
	Global struct {
		Path           string        `json:"path"`
		FileSizeMB     float64       `json:"file_size_mb"`
		Records        int           `json:"records"`
		PingCounters   uint64        `json:"ping_counters"`
		Pings          int64         `json:"pings,omitempty"`
		WaterColumn    bool          `json:"water_column"`
		Extensions     bool          `json:"extensions"`
		FirstTime      time.Time     `json:"first_time"`
		LastTime       time.Time     `json:"last_time"`
		ScanTime       time.Duration `json:"scan_time"`
		SkippedBytes   int64         `json:"skipped_bytes"`
		CorruptHeaders int64         `json:"corrupt_headers"`
		ResyncEvents   int64         `json:"resync_events"`
	} `json:"global"`

	Kinds []KindStats `json:"kinds"`

	Diagnostics struct {
		Dropped int64    `json:"dropped,omitempty"`
		Samples []Sample `json:"samples,omitempty"`
	} `json:"diagnostics"`

	Warnings []string `json:"warnings,omitempty"`
}

// KindStats counts the datagrams of one kind.
type KindStats struct {
	Kind    string  `json:"kind"`
	Count   int     `json:"count"`
	Bytes   int64   `json:"bytes"`
	Percent float64 `json:"percent"`
}

// Sample is one index entry in explain output.
type Sample struct {
	Kind   string    `json:"kind"`
	Offset int64     `json:"offset"`
	Size   int64     `json:"size"`
	Ts     time.Time `json:"timestamp"`
	Ping   uint16    `json:"ping,omitempty"`
	Fan    uint8     `json:"fan,omitempty"`
}

// Explain gathers stats about the file, indexing it if needed.
func (r *FileReader) Explain(ctx context.Context, opts ExplainOptions) (*ExplainResult, error) {
	if err := r.Index(ctx); err != nil {
		return nil, err
	}
	res := &ExplainResult{}
	report := r.table.Report()
	res.Global.Path = r.config.FilePath
	res.Global.FileSizeMB = float64(report.FileSize) / (1024 * 1024)
	res.Global.Records = r.table.Len()
	res.Global.PingCounters = r.table.Pings().GetCardinality()
	stats := r.table.Stats()
	res.Global.WaterColumn = stats[codec.KindMWC] > 0
	res.Global.Extensions = stats[codec.KindXMS] > 0 || stats[codec.KindXMT] > 0
	res.Global.ScanTime = report.ScanTime
	res.Global.SkippedBytes = report.SkippedBytes
	res.Global.CorruptHeaders = report.CorruptHeaders
	res.Global.ResyncEvents = report.ResyncEvents

	counts := make(map[codec.Kind]*KindStats)
	var first, last float64
	for i, e := range r.table.Entries() {
		ks, ok := counts[e.Kind]
		if !ok {
			ks = &KindStats{Kind: e.Kind.String()}
			counts[e.Kind] = ks
		}
		ks.Count++
		ks.Bytes += e.Size()
		if i == 0 || e.Time < first {
			first = e.Time
		}
		if e.Time > last {
			last = e.Time
		}
		if i < opts.WithSamples {
			res.Diagnostics.Samples = append(res.Diagnostics.Samples, Sample{
				Kind:   e.Kind.String(),
				Offset: e.Offset,
				Size:   e.Size(),
				Ts:     toTime(e.Time),
				Ping:   e.PingCounter,
				Fan:    e.FanIndex,
			})
		}
	}
	if r.table.Len() > 0 {
		res.Global.FirstTime = toTime(first)
		res.Global.LastTime = toTime(last)
	}
	for _, ks := range counts {
		if report.FileSize > 0 {
			ks.Percent = 100 * float64(ks.Bytes) / float64(report.FileSize)
		}
		res.Kinds = append(res.Kinds, *ks)
	}
	sort.Slice(res.Kinds, func(i, j int) bool { return res.Kinds[i].Bytes > res.Kinds[j].Bytes })

	if opts.WithPings {
		pings, dropped := r.stats.Pings, r.stats.Dropped
		r.Rewind()
		for {
			if _, err := r.Next(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
		}
		res.Global.Pings = r.stats.Pings - pings
		res.Diagnostics.Dropped = r.stats.Dropped - dropped
		r.Rewind()
	}

	if report.SkippedBytes > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d bytes outside valid datagrams in %d runs", report.SkippedBytes, report.ResyncEvents))
	}
	if counts[codec.KindMRZ] == nil {
		res.Warnings = append(res.Warnings, "no bathymetry datagrams")
	}
	if counts[codec.KindIIP] == nil {
		res.Warnings = append(res.Warnings, "no installation parameters")
	}
	return res, nil
}

func toTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9)).UTC()
}
