package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/api"
	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/codec/codectest"
	"github.com/ssargent/kmall/pkg/config"
	"github.com/ssargent/kmall/pkg/di"
	"github.com/ssargent/kmall/pkg/logging"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/storage"
	"github.com/ssargent/kmall/pkg/store"
)

// execute runs the root command with args against a fresh container and
// returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetFlags(rootCmd)
	if container == nil {
		SetContainer(di.NewContainer())
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func surveyFile(t *testing.T, dir string) string {
	t.Helper()
	c := codec.NewRecordCodec(nil)
	path := filepath.Join(dir, "0001_20231114_120000.kmall")
	data := codectest.Encode(t, c,
		codectest.XMC("line 1", 10),
		codectest.SPO(10.5),
		codectest.MRZ(0, 1, 2, 1, 11.1),
		codectest.MRZ(0, 1, 2, 0, 11),
		codectest.SPO(12),
	)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func lines(s string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func kindCounts(t *testing.T, path string) map[codec.Kind]int {
	t.Helper()
	r, err := store.OpenFile(store.ReaderConfig{FilePath: path})
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Index(context.Background()))
	return r.Table().Stats()
}

func TestInfoCommand(t *testing.T) {
	out, err := execute(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "MBF_KEMKMALL (261)")
	assert.Contains(t, out, "MRZ")

	out, err = execute(t, "info", "--json")
	require.NoError(t, err)
	var info codec.FormatInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 261, info.ID)
}

func TestIndexCommand(t *testing.T) {
	dir := t.TempDir()
	path := surveyFile(t, dir)

	t.Run("summary", func(t *testing.T) {
		out, err := execute(t, "index", path)
		require.NoError(t, err)
		assert.Contains(t, out, path+": 5 records, 1 ping counters, 0 bytes skipped")
		assert.Contains(t, out, "MRZ")
		assert.NotContains(t, out, "OFFSET")
	})

	t.Run("entries", func(t *testing.T) {
		out, err := execute(t, "index", "--entries", path)
		require.NoError(t, err)
		assert.Contains(t, out, "OFFSET")
		assert.Contains(t, out, "1/2")
	})

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(dir, "missing.kmall")
		out, err := execute(t, "index", "--workers", "2", path, missing)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 files")
		assert.Contains(t, out, path+": 5 records")
		assert.Contains(t, out, missing+": ")
	})
}

func TestIndexCommand_Cache(t *testing.T) {
	dir := t.TempDir()
	path := surveyFile(t, dir)

	cfg := config.DefaultConfig()
	cfg.Reader.CacheDir = filepath.Join(dir, "cache")
	configPath := filepath.Join(dir, "kmall.yaml")
	require.NoError(t, config.SaveConfig(cfg, configPath))

	for i := 0; i < 2; i++ {
		out, err := execute(t, "--config", configPath, "index", "--cache", path)
		require.NoError(t, err)
		assert.Contains(t, out, "5 records")
	}

	cache, err := storage.Open(cfg.Reader.CacheDir, nil)
	require.NoError(t, err)
	defer cache.Close()
	snapshots, err := cache.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestListCommand(t *testing.T) {
	path := surveyFile(t, t.TempDir())

	out, err := execute(t, "list", path)
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 4)
	assert.Contains(t, got[0], `XMC "line 1"`)
	assert.Contains(t, got[1], "SPO")
	assert.Contains(t, got[2], "PING     1 fans=2 soundings=4")
	assert.Contains(t, got[3], "SPO")

	out, err = execute(t, "list", "-n", "2", path)
	require.NoError(t, err)
	assert.Len(t, lines(out), 2)

	out, err = execute(t, "list", "--json", path)
	require.NoError(t, err)
	var kinds []string
	for _, line := range lines(out) {
		var s store.Summary
		require.NoError(t, json.Unmarshal([]byte(line), &s))
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []string{"XMC", "SPO", "PING", "SPO"}, kinds)
}

func TestCopyCommand(t *testing.T) {
	dir := t.TempDir()
	c := codec.NewRecordCodec(nil)
	in := filepath.Join(dir, "in.kmall")
	data := codectest.Encode(t, c,
		codectest.XMB(false, false),
		codectest.SPO(10),
		codectest.MRZ(0, 3, 1, 0, 11),
	)
	data = append(data, []byte("not a datagram")...)
	data = append(data, codectest.Encode(t, c, codectest.SPO(12))...)
	require.NoError(t, os.WriteFile(in, data, 0600))

	out := filepath.Join(dir, "sub", "out.kmall")
	stdout, err := execute(t, "copy", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 pings")

	counts := kindCounts(t, out)
	assert.Equal(t, 1, counts[codec.KindXMB])
	assert.Equal(t, 2, counts[codec.KindSPO])
	assert.Equal(t, 1, counts[codec.KindMRZ])

	// The copy is clean.
	listed, err := execute(t, "index", out)
	require.NoError(t, err)
	assert.Contains(t, listed, "0 bytes skipped")
}

func TestCommentCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "notes.kmall")

	stdout, err := execute(t, "comment", "--echosounder", "2040", out, "line 12 start", "speed reduced")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 comments")

	counts := kindCounts(t, out)
	assert.Equal(t, 1, counts[codec.KindXMB])
	assert.Equal(t, 2, counts[codec.KindXMC])

	listed, err := execute(t, "list", out)
	require.NoError(t, err)
	assert.Contains(t, listed, `"line 12 start"`)
	assert.Contains(t, listed, `"speed reduced"`)
}

func TestGlobalFlags(t *testing.T) {
	_, err := execute(t, "--byte-order", "middle", "info")
	assert.Error(t, err)

	_, err = execute(t, "--log-level", "chatty", "info")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "info")
	assert.Error(t, err)

	logFile := filepath.Join(t.TempDir(), "kmall.log")
	path := surveyFile(t, t.TempDir())
	_, err = execute(t, "--log-file", logFile, "--log-format", "json", "index", path)
	require.NoError(t, err)
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), path)
}

type fakeStarter struct {
	files  api.Files
	config api.ServerConfig
}

func (f *fakeStarter) StartServer(ctx context.Context, files api.Files, config api.ServerConfig,
	m *metrics.Metrics, log *logging.Logger) error {
	f.files = files
	f.config = config
	return nil
}

type fakeFactory struct{ starter *fakeStarter }

func (f *fakeFactory) CreateServerStarter() api.ServerStarter { return f.starter }

func TestServeCommand(t *testing.T) {
	dir := t.TempDir()
	surveyFile(t, dir)

	starter := &fakeStarter{}
	c := di.NewContainer()
	c.SetServerFactory(&fakeFactory{starter: starter})
	SetContainer(c)
	defer SetContainer(nil)

	_, err := execute(t, "serve", "--data-dir", dir, "--port", "9300", "--api-key", "secret")
	require.NoError(t, err)
	assert.Equal(t, 9300, starter.config.Port)
	assert.Equal(t, "127.0.0.1", starter.config.Bind)
	assert.Equal(t, "secret", starter.config.APIKey)
	assert.NotNil(t, starter.config.Gatherer)

	files, err := starter.files.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "0001_20231114_120000.kmall", files[0].Name)

	_, err = execute(t, "serve", "--data-dir", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
