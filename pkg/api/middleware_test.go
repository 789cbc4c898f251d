package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/logging"
)

func TestAPIKeyMiddleware(t *testing.T) {
	h, _ := setupTestServer(t, "survey-key")

	tests := []struct {
		name           string
		path           string
		key            string
		expectedStatus int
		expectedError  string
	}{
		{"file list with key", "/api/v1/files", "survey-key", http.StatusOK, ""},
		{"index with key", "/api/v1/files/index/line07/0007_survey.kmall", "survey-key", http.StatusOK, ""},
		{"records with key", "/api/v1/files/records/line07/0007_survey.kmall?limit=1", "survey-key", http.StatusOK, ""},
		{"file list without key", "/api/v1/files", "", http.StatusUnauthorized, "Missing X-API-Key header"},
		{"index with wrong key", "/api/v1/files/index/line07/0007_survey.kmall", "wrong-key", http.StatusUnauthorized, "Invalid API key"},
		{"missing file is not revealed", "/api/v1/files/records/missing.kmall", "", http.StatusUnauthorized, "Missing X-API-Key header"},
		{"metrics stay open", "/metrics", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header map[string]string
			if tt.key != "" {
				header = map[string]string{"X-API-Key": tt.key}
			}
			w, response := get(t, h, tt.path, header)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedError, response.Error)
			if tt.expectedStatus == http.StatusUnauthorized {
				assert.False(t, response.Success)
			}
		})
	}
}

func TestSendSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	sendSuccess(w, []FileInfo{{Name: "line07/0007_survey.kmall", Size: 512}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":[{"name":"line07/0007_survey.kmall","size":512,"modified":"0001-01-01T00:00:00Z"}]}`, w.Body.String())
}

func TestSendError(t *testing.T) {
	tests := []struct {
		message    string
		statusCode int
	}{
		{ErrInvalidName.Error(), http.StatusBadRequest},
		{ErrFileNotFound.Error(), http.StatusNotFound},
		{"index failed", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			w := httptest.NewRecorder()
			sendError(w, tt.message, tt.statusCode)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"success":false,"error":"`+tt.message+`"}`, w.Body.String())
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.Format = "json"
	log, err := logging.New(cfg, &buf)
	require.NoError(t, err)

	handler := requestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "nope", http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/files", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, buf.String(), `"msg":"http request"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/v1/files"`)
}
