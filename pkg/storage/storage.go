// Package storage persists index tables between runs so that a file only
// has to be scanned again when it changes.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/metrics"
)

const (
	tablePrefix = "table/"
	idLength    = len(ksuid.Nil)
)

// IndexCache stores index tables in a pebble database, keyed by the
// reader's cache key (absolute path, size, modification time and byte
// order). Each value is the ksuid of the snapshot that wrote it followed
// by the zstd-compressed table. It is safe for concurrent use.
type IndexCache struct {
	db      *pebble.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	metrics *metrics.Metrics
}

// Snapshot describes one cached table.
type Snapshot struct {
	Key     string      `json:"key"`
	ID      ksuid.KSUID `json:"id"`
	Created time.Time   `json:"created"`
	Size    int         `json:"size"` // compressed bytes
}

// Open opens or creates the cache in dir. m may be nil.
func Open(dir string, m *metrics.Metrics) (*IndexCache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open index cache: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}
	return &IndexCache{db: db, encoder: encoder, decoder: decoder, metrics: m}, nil
}

// Load returns the table cached under key, or nil when there is none. An
// entry that no longer decodes is evicted and reported as a miss.
func (c *IndexCache) Load(key string) (*index.Table, error) {
	value, closer, err := c.db.Get([]byte(tablePrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		c.metrics.RecordCacheLookup(false)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	t, err := c.decode(value)
	if err != nil {
		c.metrics.RecordCacheLookup(false)
		return nil, c.db.Delete([]byte(tablePrefix+key), pebble.NoSync)
	}
	c.metrics.RecordCacheLookup(true)
	return t, nil
}

func (c *IndexCache) decode(value []byte) (*index.Table, error) {
	if len(value) < idLength {
		return nil, index.ErrBadTable
	}
	raw, err := c.decoder.DecodeAll(value[idLength:], nil)
	if err != nil {
		return nil, err
	}
	t := &index.Table{}
	if err := t.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return t, nil
}

// Save stores t under key. Tables cached for earlier versions of the same
// file are removed.
func (c *IndexCache) Save(key string, t *index.Table) error {
	raw, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	id := ksuid.New()
	value := c.encoder.EncodeAll(raw, id.Bytes())

	batch := c.db.NewBatch()
	defer batch.Close()
	if path, ok := pathOf(key); ok {
		lower, upper := prefixRange(path)
		if err := batch.DeleteRange(lower, upper, nil); err != nil {
			return err
		}
	}
	if err := batch.Set([]byte(tablePrefix+key), value, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

// Invalidate removes every table cached for the file at path.
func (c *IndexCache) Invalidate(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	lower, upper := prefixRange(abs)
	return c.db.DeleteRange(lower, upper, pebble.NoSync)
}

// Snapshots lists the cached tables in key order.
func (c *IndexCache) Snapshots() ([]Snapshot, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(tablePrefix),
		UpperBound: upperBound([]byte(tablePrefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		if len(value) < idLength {
			continue
		}
		id, err := ksuid.FromBytes(value[:idLength])
		if err != nil {
			continue
		}
		out = append(out, Snapshot{
			Key:     strings.TrimPrefix(string(iter.Key()), tablePrefix),
			ID:      id,
			Created: id.Time(),
			Size:    len(value) - idLength,
		})
	}
	return out, iter.Error()
}

// Close closes the database.
func (c *IndexCache) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return c.db.Close()
}

// pathOf returns the file path part of a cache key.
func pathOf(key string) (string, bool) {
	i := strings.IndexByte(key, '|')
	if i < 0 {
		return "", false
	}
	return key[:i], true
}

// prefixRange returns the key range holding every table of path.
func prefixRange(path string) (lower, upper []byte) {
	lower = []byte(tablePrefix + path + "|")
	return lower, upperBound(lower)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
