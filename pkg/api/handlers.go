package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/logging"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/store"
)

// Server holds the API server state
type Server struct {
	files   Files
	config  ServerConfig
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewServer creates a new API server
func NewServer(files Files, config ServerConfig, m *metrics.Metrics, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		files:   files,
		config:  config,
		metrics: m,
		logger:  log,
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleFormat godoc
//
//	@Summary		Describe the datagram format
//	@Description	Capability metadata of the KMALL format: kinds, limits and byte order
//	@Tags			format
//	@Produce		json
//	@Success		200	{object}	codec.FormatInfo
//	@Router			/format [get]
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, codec.DescribeFormat())
}

// handleListFiles godoc
//
//	@Summary		List files
//	@Description	List the KMALL files in the data directory
//	@Tags			files
//	@Produce		json
//	@Success		200	{array}		FileInfo
//	@Failure		500	{object}	map[string]string
//	@Router			/files [get]
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List()
	if err != nil {
		s.logger.Error("list files", "error", err)
		sendError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}
	sendSuccess(w, files)
}

// handleIndex godoc
//
//	@Summary		Index a file
//	@Description	Index a file and report per-kind counts and scan diagnostics
//	@Tags			files
//	@Produce		json
//	@Param			name	path		string	true	"File name relative to the data directory"
//	@Param			samples	query		int		false	"Leading index entries to include"
//	@Param			pings	query		bool	false	"Count complete pings"
//	@Success		200		{object}	store.ExplainResult
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/files/index/{name} [get]
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	opts := store.ExplainOptions{WithSamples: 10}
	q := r.URL.Query()
	if v := q.Get("samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, "samples must be a non-negative integer", http.StatusBadRequest)
			return
		}
		opts.WithSamples = n
	}
	if v := q.Get("pings"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, "pings must be a boolean", http.StatusBadRequest)
			return
		}
		opts.WithPings = b
	}

	result, err := s.files.Explain(r.Context(), fileName(r), opts)
	if err != nil {
		s.sendFileError(w, err)
		return
	}
	sendSuccess(w, result)
}

// handleRecords godoc
//
//	@Summary		Read records
//	@Description	Read logical records of a file in canonical order, pings reassembled
//	@Tags			files
//	@Produce		json
//	@Param			name	path		string	true	"File name relative to the data directory"
//	@Param			limit	query		int		false	"Maximum number of records"
//	@Success		200		{array}		store.Summary
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/files/records/{name} [get]
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecordLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxRecordLimit {
			sendError(w, fmt.Sprintf("limit must be between 1 and %d", MaxRecordLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.files.Records(r.Context(), fileName(r), limit)
	if err != nil {
		s.sendFileError(w, err)
		return
	}
	sendSuccess(w, records)
}

// fileName returns the file name route parameter. Names may contain
// slashes, so the route captures the rest of the path.
func fileName(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func (s *Server) sendFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrFileNotFound):
		sendError(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("file request", "error", err)
		sendError(w, fmt.Sprintf("Failed to read file: %v", err), http.StatusInternalServerError)
	}
}
