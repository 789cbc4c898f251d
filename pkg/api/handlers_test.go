package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/codec/codectest"
	"github.com/ssargent/kmall/pkg/metrics"
)

// setupTestServer creates a server over a data directory holding one
// survey file with a single two-swath ping.
func setupTestServer(t *testing.T, apiKey string) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()

	c := codec.NewRecordCodec(nil)
	data := codectest.Encode(t, c,
		codectest.XMC("line 7", 10),
		codectest.SPO(10.5),
		codectest.MRZ(0, 1, 2, 0, 11),
		codectest.MRZ(0, 1, 2, 1, 11.1),
		codectest.SPO(12),
	)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "line07"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line07", "0007_survey.kmall"), data, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a survey"), 0600))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	files := NewDirFiles(DirFilesConfig{DataDir: dir, Metrics: m})
	server := NewServer(files, ServerConfig{APIKey: apiKey, Gatherer: reg}, m, nil)
	return NewRouter(server), dir
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var response APIResponse
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func TestServer_handleHealth(t *testing.T) {
	h, _ := setupTestServer(t, "")

	w, response := get(t, h, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)
	assert.Equal(t, map[string]interface{}{"status": "healthy"}, response.Data)
}

func TestServer_handleFormat(t *testing.T) {
	h, _ := setupTestServer(t, "")

	w, response := get(t, h, "/api/v1/format", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)
	assert.Contains(t, w.Body.String(), "MBF_KEMKMALL")
}

func TestServer_handleListFiles(t *testing.T) {
	h, _ := setupTestServer(t, "")

	w, _ := get(t, h, "/api/v1/files", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []FileInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, "line07/0007_survey.kmall", response.Data[0].Name)
	assert.Positive(t, response.Data[0].Size)
}

func TestServer_handleIndex(t *testing.T) {
	h, _ := setupTestServer(t, "")

	w, _ := get(t, h, "/api/v1/files/index/line07/0007_survey.kmall?samples=2&pings=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data struct {
			Global struct {
				Path    string `json:"path"`
				Records int    `json:"records"`
				Pings   int64  `json:"pings"`
			} `json:"global"`
			Diagnostics struct {
				Samples []json.RawMessage `json:"samples"`
			} `json:"diagnostics"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "line07/0007_survey.kmall", response.Data.Global.Path)
	assert.Equal(t, 5, response.Data.Global.Records)
	assert.Equal(t, int64(1), response.Data.Global.Pings)
	assert.Len(t, response.Data.Diagnostics.Samples, 2)
}

func TestServer_handleRecords(t *testing.T) {
	h, _ := setupTestServer(t, "")

	w, _ := get(t, h, "/api/v1/files/records/line07/0007_survey.kmall", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data []struct {
			Kind      string `json:"kind"`
			Soundings int    `json:"soundings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	kinds := make([]string, 0, len(response.Data))
	for _, s := range response.Data {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []string{"XMC", "SPO", "PING", "SPO"}, kinds)
	assert.Equal(t, 4, response.Data[2].Soundings)

	w, _ = get(t, h, "/api/v1/files/records/line07/0007_survey.kmall?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Data, 2)
}

func TestServer_BadRequests(t *testing.T) {
	h, _ := setupTestServer(t, "")

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"missing file", "/api/v1/files/index/line07/missing.kmall", http.StatusNotFound},
		{"not a kmall file", "/api/v1/files/index/notes.txt", http.StatusBadRequest},
		{"escapes data dir", "/api/v1/files/records/../secret.kmall", http.StatusBadRequest},
		{"directory", "/api/v1/files/index/line07", http.StatusBadRequest},
		{"bad samples", "/api/v1/files/index/line07/0007_survey.kmall?samples=-1", http.StatusBadRequest},
		{"bad pings", "/api/v1/files/index/line07/0007_survey.kmall?pings=maybe", http.StatusBadRequest},
		{"zero limit", "/api/v1/files/records/line07/0007_survey.kmall?limit=0", http.StatusBadRequest},
		{"limit too large", "/api/v1/files/records/line07/0007_survey.kmall?limit=10001", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := get(t, h, tt.path, nil)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			assert.False(t, response.Success)
			assert.NotEmpty(t, response.Error)
		})
	}
}

func TestServer_CorruptFileIsServed(t *testing.T) {
	h, dir := setupTestServer(t, "")

	c := codec.NewRecordCodec(nil)
	data := codectest.Encode(t, c, codectest.SPO(1))
	data = append(data, []byte("garbage between datagrams")...)
	data = append(data, codectest.Encode(t, c, codectest.SPO(2))...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "damaged.kmall"), data, 0600))

	w, _ := get(t, h, "/api/v1/files/index/damaged.kmall", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data struct {
			Global struct {
				Records      int   `json:"records"`
				SkippedBytes int64 `json:"skipped_bytes"`
			} `json:"global"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Data.Global.Records)
	assert.Positive(t, response.Data.Global.SkippedBytes)
}
