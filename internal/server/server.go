// Package server exposes the enrichment pipelines over HTTP: upload a CSV, download the
// enriched CSV.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shpitdev/product-data-enhancer/internal/app"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/schema"
)

const (
	// DownloadFilename is the attachment name of every enriched CSV.
	DownloadFilename = "processed_data.csv"

	maxUploadBytes = 32 << 20
)

// Server serves the standardize and extract pipelines. Every request is its own run.
type Server struct {
	deps app.Deps
}

// New returns a Server that runs every request with deps. deps.Source is set per request.
func New(deps app.Deps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/operations", s.handleOperations)
	for _, c := range schema.Contracts() {
		mux.HandleFunc("/v1/"+string(c.Operation), s.handleRun(c.Operation))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

type operationInfo struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Path     string   `json:"path"`
	Required []string `json:"required_columns"`
	Added    []string `json:"added_columns"`
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	contracts := schema.Contracts()
	out := make([]operationInfo, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, operationInfo{
			Name:     string(c.Operation),
			Title:    c.Title,
			Path:     "/v1/" + string(c.Operation),
			Required: c.Required,
			Added:    c.Added,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"operations": out})
}

func (s *Server) handleRun(op schema.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		body, source, err := readUpload(w, r)
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, redact.Secrets(err.Error()), status)
			return
		}
		defer func() {
			_ = body.Close()
		}()

		deps := s.deps
		deps.Source = source

		var out bytes.Buffer
		sum, err := app.Process(r.Context(), op, body, &out, deps)
		if err != nil {
			http.Error(w, redact.Secrets(err.Error()), statusFor(err))
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/csv; charset=utf-8")
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": DownloadFilename}))
		h.Set("X-Run-Id", sum.RunID)
		h.Set("X-Rows", strconv.Itoa(sum.Rows))
		h.Set("X-Degraded-Rows", strconv.Itoa(sum.Degraded))
		_, _ = w.Write(out.Bytes())
	}
}

// readUpload returns the CSV body of r: the "file" part of a multipart form, or the raw body.
func readUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "request body", nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("parse multipart form: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("multipart field %q: %w", "file", err)
	}
	name := strings.TrimSpace(hdr.Filename)
	if name == "" {
		name = "upload"
	}
	return f, name, nil
}

func statusFor(err error) int {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var ie *app.InputError
	if errors.As(err, &ie) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
