package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/logging"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/store"
)

// DirFilesConfig configures a DirFiles
type DirFilesConfig struct {
	DataDir   string
	Order     codec.ByteOrder // nil sniffs each file
	BlockSize int
	ChunkSize int
	Cache     store.IndexCache // optional
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// DirFiles serves the KMALL files under one directory. Names are resolved
// inside that directory only.
type DirFiles struct {
	config DirFilesConfig
}

// NewDirFiles creates a DirFiles
func NewDirFiles(config DirFilesConfig) *DirFiles {
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &DirFiles{config: config}
}

// IsKMALL reports whether name carries a KMALL file extension.
func IsKMALL(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".kmall", ".kmwcd":
		return true
	}
	return false
}

// List returns the KMALL files under the data directory, sorted by name.
func (d *DirFiles) List() ([]FileInfo, error) {
	var out []FileInfo
	err := filepath.WalkDir(d.config.DataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !IsKMALL(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.config.DataDir, path)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Name: filepath.ToSlash(rel), Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// resolve maps an API file name to a path inside the data directory.
func (d *DirFiles) resolve(name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) || !IsKMALL(local) {
		return "", ErrInvalidName
	}
	path := filepath.Join(d.config.DataDir, local)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrFileNotFound
	}
	return path, err
}

func (d *DirFiles) open(name string) (*store.FileReader, *logging.Logger, error) {
	path, err := d.resolve(name)
	if err != nil {
		return nil, nil, err
	}
	log := d.config.Logger.WithFile(name).WithSession(ksuid.New().String())
	r, err := store.OpenFile(store.ReaderConfig{
		FilePath:  path,
		Order:     d.config.Order,
		ChunkSize: d.config.ChunkSize,
		BlockSize: d.config.BlockSize,
		Cache:     d.config.Cache,
		Observer: func(e index.Event) {
			log.LogResync(e)
			d.config.Metrics.RecordEvent(e)
		},
		OnDrop: func(e *codec.RecordError) {
			log.LogDropped(e)
			d.config.Metrics.RecordDropped(e)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return r, log, nil
}

// Explain indexes a file and summarises its contents.
func (d *DirFiles) Explain(ctx context.Context, name string, opts store.ExplainOptions) (*store.ExplainResult, error) {
	r, log, err := d.open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := r.Index(ctx); err != nil {
		return nil, err
	}
	log.LogIndex(r.Table())
	d.config.Metrics.RecordIndex(r.Table())
	res, err := r.Explain(ctx, opts)
	if err != nil {
		return nil, err
	}
	res.Global.Path = name
	return res, nil
}

// Records reads up to limit logical records of a file.
func (d *DirFiles) Records(ctx context.Context, name string, limit int) ([]store.Summary, error) {
	r, log, err := d.open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]store.Summary, 0, min(limit, DefaultRecordLimit))
	for len(out) < limit {
		lr, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if lr.Ping != nil {
			log.LogPing(lr.Ping)
		}
		out = append(out, store.Summarize(lr))
	}
	d.config.Metrics.RecordReader(r.Stats())
	return out, nil
}
