// Package logging provides the structured logger used by the kmall tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/store"
)

// Config controls log output.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // optional rotating log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`

	// Resync and drop diagnostics beyond this rate are counted, not
	// logged. Zero disables the limit.
	DiagnosticsPerSecond float64 `yaml:"diagnostics_per_second"`
	DiagnosticsBurst     int     `yaml:"diagnostics_burst"`
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:                "info",
		Format:               "text",
		MaxSizeMB:            100,
		MaxBackups:           5,
		MaxAgeDays:           28,
		DiagnosticsPerSecond: 10,
		DiagnosticsBurst:     50,
	}
}

// diagnostics is shared by a logger and every logger derived from it.
type diagnostics struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// Logger wraps slog.Logger with kmall-specific fields and helpers.
type Logger struct {
	*slog.Logger
	diag   *diagnostics
	closer io.Closer
}

// New builds a logger writing to w and, when cfg.File is set, to a
// rotating log file as well.
func New(cfg Config, w io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	diag := &diagnostics{limiter: rate.NewLimiter(rate.Inf, 0)}
	if cfg.DiagnosticsPerSecond > 0 {
		diag.limiter = rate.NewLimiter(rate.Limit(cfg.DiagnosticsPerSecond), max(cfg.DiagnosticsBurst, 1))
	}
	return &Logger{Logger: slog.New(handler), diag: diag, closer: closer}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		diag:   &diagnostics{limiter: rate.NewLimiter(rate.Inf, 0)},
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), diag: l.diag}
}

// WithSession tags records with a reader or writer session id.
func (l *Logger) WithSession(id string) *Logger { return l.with("session", id) }

// WithFile tags records with the file being processed.
func (l *Logger) WithFile(path string) *Logger { return l.with("file", path) }

// allow reports whether a diagnostic may be logged now.
func (l *Logger) allow() bool {
	if l.diag.limiter.Allow() {
		return true
	}
	l.diag.suppressed.Add(1)
	return false
}

// LogResync logs a scan diagnostic, subject to the diagnostic rate limit.
func (l *Logger) LogResync(e index.Event) {
	if !l.allow() {
		return
	}
	switch e.Type {
	case index.EventResync:
		l.Warn("skipped bytes outside datagrams", "offset", e.Offset, "length", e.Length)
	case index.EventCorruptHeader:
		l.Warn("corrupt datagram header", "offset", e.Offset, "declared", e.Length, "kind", e.Kind.String())
	}
}

// LogDropped logs a record that could not be used, subject to the
// diagnostic rate limit.
func (l *Logger) LogDropped(err *codec.RecordError) {
	if !l.allow() {
		return
	}
	l.Warn("dropped record", "kind", err.Kind.String(), "offset", err.Offset, "error", err.Err)
}

// LogIndex summarises an index table.
func (l *Logger) LogIndex(t *index.Table) {
	r := t.Report()
	l.Info("indexed",
		"records", t.Len(),
		"pings", t.Pings().GetCardinality(),
		"skipped_bytes", r.SkippedBytes,
		"resyncs", r.ResyncEvents,
		"corrupt_headers", r.CorruptHeaders,
		"duration", r.ScanTime,
	)
}

// LogPing logs a delivered ping at debug level.
func (l *Logger) LogPing(p *store.Ping) {
	l.Debug("ping",
		"counter", p.PingCounter,
		"time", p.Time,
		"mrz", fmt.Sprintf("%d/%d", p.MRZRead, p.MRZNeeded),
		"mwc", fmt.Sprintf("%d/%d", p.MWCRead, p.MWCNeeded),
		"xmt", len(p.XMT),
		"xms", p.XMS != nil,
	)
}

// Suppressed returns the number of diagnostics dropped by the rate limit.
func (l *Logger) Suppressed() int64 { return l.diag.suppressed.Load() }

// Close closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
