// Package server implements the bondvox HTTP API.
//
// Routes:
//
//	POST /transcribe   multipart upload (field "file") → transcription + quote
//	POST /parse        {"text": "..."} → quote
//	POST /corrections  trader correction → stored sample
//	GET  /healthz      liveness (when a health handler is set)
//	GET  /readyz       readiness (when a health handler is set)
//	GET  /metrics      Prometheus scrape (when a metrics handler is set)
//	     /mcp          MCP streamable HTTP (when an MCP handler is set)
//
// Every response body is JSON. Errors use the shape {"error": "..."}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/bondvox/internal/health"
	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/internal/pipeline"
	"github.com/MrWong99/bondvox/internal/quote"
	"github.com/MrWong99/bondvox/internal/samples"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// DefaultMaxUploadBytes bounds a /transcribe request body.
const DefaultMaxUploadBytes int64 = 25 << 20

// maxJSONBytes bounds the JSON request bodies.
const maxJSONBytes int64 = 64 << 10

// errNoAudio is the message returned when /transcribe carries no file.
const errNoAudio = "No audio file provided"

// Service is what the HTTP handlers need from the quote pipeline.
// [*pipeline.Pipeline] implements it.
type Service interface {
	ParseText(ctx context.Context, text string) quote.Outcome
	Transcribe(ctx context.Context, audio stt.Audio) (*pipeline.Result, error)
	RecordCorrection(ctx context.Context, in pipeline.CorrectionInput) (samples.Sample, error)
}

var _ Service = (*pipeline.Pipeline)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithMaxUploadBytes limits the /transcribe request body. Default: 25 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMCP mounts the MCP handler at path.
func WithMCP(path string, h http.Handler) Option {
	return func(s *Server) {
		s.mcpPath = path
		s.mcpHandler = h
	}
}

// WithMetrics records HTTP request latencies on m. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server routes HTTP requests to a [Service].
type Server struct {
	svc            Service
	maxUpload      int64
	health         *health.Handler
	metricsHandler http.Handler
	mcpPath        string
	mcpHandler     http.Handler
	metrics        *observe.Metrics

	handler http.Handler
}

// New builds the route table. The returned server is immutable.
func New(svc Service, opts ...Option) *Server {
	s := &Server{svc: svc, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("POST /corrections", s.handleCorrection)

	quiet := []string{}
	if s.health != nil {
		s.health.Register(mux)
		quiet = append(quiet, "/healthz", "/readyz")
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
		quiet = append(quiet, "/metrics")
	}
	if s.mcpHandler != nil && s.mcpPath != "" {
		mux.Handle(s.mcpPath, s.mcpHandler)
	}

	s.handler = observe.Middleware(s.metrics, observe.WithQuietPaths(quiet...))(mux)
	return s
}

// Handler returns the root handler with tracing and metrics middleware.
func (s *Server) Handler() http.Handler { return s.handler }

type transcribeResponse struct {
	Transcription string `json:"transcription"`
	Corrected     string `json:"corrected"`
	Quote         string `json:"quote"`
	Pattern       string `json:"pattern"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
		default:
			writeError(w, http.StatusBadRequest, errNoAudio)
		}
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errNoAudio)
		return
	}

	res, err := s.svc.Transcribe(r.Context(), stt.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		observe.Logger(r.Context()).Error("transcription failed", "filename", header.Filename, "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrNoTranscriber) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{
		Transcription: res.Transcription,
		Corrected:     res.Corrected,
		Quote:         res.Quote,
		Pattern:       string(res.Pattern),
	})
}

type parseRequest struct {
	Text string `json:"text"`
}

type parseResponse struct {
	Quote   string `json:"quote"`
	Pattern string `json:"pattern"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out := s.svc.ParseText(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, parseResponse{Quote: out.Quote, Pattern: string(out.Pattern)})
}

type correctionRequest struct {
	Transcription  string `json:"transcription"`
	Quote          string `json:"quote"`
	CorrectedQuote string `json:"corrected_quote"`
	Pattern        string `json:"pattern"`
}

type correctionResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Transcription) == "" || strings.TrimSpace(req.CorrectedQuote) == "" {
		writeError(w, http.StatusBadRequest, "transcription and corrected_quote are required")
		return
	}

	smp, err := s.svc.RecordCorrection(r.Context(), pipeline.CorrectionInput{
		Transcription:  req.Transcription,
		Quote:          req.Quote,
		CorrectedQuote: req.CorrectedQuote,
		Pattern:        req.Pattern,
	})
	switch {
	case errors.Is(err, pipeline.ErrSamplesDisabled):
		writeError(w, http.StatusServiceUnavailable, "sample storage is disabled")
		return
	case errors.Is(err, samples.ErrInvalidSample):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		observe.Logger(r.Context()).Error("failed to record correction", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to record correction")
		return
	}
	writeJSON(w, http.StatusCreated, correctionResponse{ID: smp.ID})
}

// decodeJSON reads a bounded JSON body into v. On failure it writes a 400
// and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
