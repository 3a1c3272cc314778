// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitbasket/internal/archive"
	"github.com/fruitsalade/fruitbasket/internal/config"
	"github.com/fruitsalade/fruitbasket/internal/events"
	"github.com/fruitsalade/fruitbasket/internal/files"
	"github.com/fruitsalade/fruitbasket/internal/fserr"
	"github.com/fruitsalade/fruitbasket/internal/logging"
	"github.com/fruitsalade/fruitbasket/internal/metrics"
	"github.com/fruitsalade/fruitbasket/internal/preview"
	"github.com/fruitsalade/fruitbasket/internal/protocol"
	"github.com/fruitsalade/fruitbasket/internal/ratelimit"
	"github.com/fruitsalade/fruitbasket/internal/roots"
	"github.com/fruitsalade/fruitbasket/internal/safepath"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// Server is the HTTP server.
type Server struct {
	roots   *roots.Resolver
	files   *files.Service
	archive *archive.Builder

	defaultFolderType string
	thumbMaxSize      int

	// SSE
	broadcaster *events.Broadcaster

	// Download limits (nil = unlimited)
	zipLimiter *ratelimit.Limiter
}

// NewServer creates a new server.
func NewServer(
	resolver *roots.Resolver,
	fileService *files.Service,
	builder *archive.Builder,
	broadcaster *events.Broadcaster,
	zipLimiter *ratelimit.Limiter,
	cfg *config.Config,
) *Server {
	s := &Server{
		roots:             resolver,
		files:             fileService,
		archive:           builder,
		broadcaster:       broadcaster,
		zipLimiter:        zipLimiter,
		defaultFolderType: "outputs",
		thumbMaxSize:      preview.DefaultMaxSize,
	}
	if cfg != nil {
		if cfg.DefaultFolderType != "" {
			s.defaultFolderType = cfg.DefaultFolderType
		}
		if cfg.ThumbMaxSize > 0 {
			s.thumbMaxSize = cfg.ThumbMaxSize
		}
	}
	return s
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/files", s.handleList)
	mux.HandleFunc("DELETE /api/files", s.handleDelete)
	mux.HandleFunc("PATCH /api/files", s.handleUpdate)
	mux.HandleFunc("GET /api/files/view", s.handleView)
	mux.HandleFunc("GET /api/files/thumb", s.handleThumb)

	var zip http.Handler = http.HandlerFunc(s.handleDownloadZip)
	if s.zipLimiter != nil {
		zip = ratelimit.Middleware(s.zipLimiter)(zip)
	}
	mux.Handle("GET /api/files/download-zip", zip)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Metrics sits directly on the mux to read the matched pattern.
	return logging.Middleware(metrics.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.HealthResponse{
		Status:      "ok",
		FolderTypes: s.roots.FolderTypes(),
	})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// publishEvent publishes an event to the broadcaster if available.
func (s *Server) publishEvent(eventType, folderType, p, newPath string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(events.Event{
		Type:       eventType,
		FolderType: folderType,
		Path:       p,
		NewPath:    newPath,
	})
}

// ─── Files ──────────────────────────────────────────────────────────────────

func (s *Server) folderType(v string) string {
	if v == "" {
		return s.defaultFolderType
	}
	return v
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folderType := s.folderType(q.Get("folder_type"))

	entries, err := s.files.List(folderType, q.Get("folder_path"))
	metrics.RecordFileOperation("list", err)
	if err != nil {
		s.sendFileError(w, r, "list", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.ListResponse{Files: entries})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req protocol.DeleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	folderType := s.folderType(req.FolderType)

	err := s.files.Delete(folderType, req.FolderPath, req.Filename)
	metrics.RecordFileOperation("delete", err)
	if err != nil {
		s.sendFileError(w, r, "delete", err)
		return
	}

	p := displayPath(req.FolderPath, req.Filename)
	logging.WithContext(r.Context()).Info("file deleted",
		zap.String("folder_type", folderType),
		zap.String("path", p))

	s.publishEvent(events.EventDelete, folderType, p, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req protocol.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	folderType := s.folderType(req.FolderType)

	var upd *files.Update
	if req.NewData != nil {
		upd = &files.Update{Filename: req.NewData.Filename, Notes: req.NewData.Notes}
	}

	final, err := s.files.Update(folderType, req.FolderPath, req.Filename, upd)
	metrics.RecordFileOperation("update", err)
	if err != nil {
		s.sendFileError(w, r, "update", err)
		return
	}

	p := displayPath(req.FolderPath, req.Filename)
	logging.WithContext(r.Context()).Info("file updated",
		zap.String("folder_type", folderType),
		zap.String("path", p),
		zap.String("final", final),
		zap.Bool("notes", upd.Notes != ""))

	if final != p {
		s.publishEvent(events.EventRename, folderType, p, final)
	}
	if upd.Notes != "" {
		s.publishEvent(events.EventNotes, folderType, final, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folderType := s.folderType(q.Get("folder_type"))

	res, err := s.files.View(folderType, q.Get("folder_path"), q.Get("filename"))
	metrics.RecordFileOperation("view", err)
	if err != nil {
		s.sendFileError(w, r, "view", err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	n, _ := w.Write(res.Data)
	metrics.RecordView(int64(n))
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folderType := s.folderType(q.Get("folder_type"))

	size := s.thumbMaxSize
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, http.StatusBadRequest, "size must be a positive integer")
			return
		}
		size = n
	}
	size = preview.ClampSize(size, s.thumbMaxSize)

	f, err := s.files.OpenImage(folderType, q.Get("folder_path"), q.Get("filename"))
	if err != nil {
		metrics.RecordFileOperation("thumb", err)
		s.sendFileError(w, r, "thumb", err)
		return
	}
	defer f.Close()

	start := time.Now()
	thumb, err := preview.Generate(f, size)
	metrics.RecordThumbnail(time.Since(start), err == nil)
	if err != nil {
		err = fmt.Errorf("%s: %v: %w", q.Get("filename"), err, fserr.ErrValidation)
		metrics.RecordFileOperation("thumb", err)
		s.sendFileError(w, r, "thumb", err)
		return
	}
	metrics.RecordFileOperation("thumb", nil)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(thumb.Data)
}

func (s *Server) handleDownloadZip(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folderType := s.folderType(q.Get("folder_type"))

	a, err := s.archive.Build(folderType, q.Get("folder_path"))
	metrics.RecordFileOperation("zip", err)
	if err != nil {
		s.sendFileError(w, r, "zip", err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name + ".zip"}))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Write(a.Data)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// displayPath joins the decoded folder path and filename into the slash
// separated path reported in events and logs.
func displayPath(folderPath, filename string) string {
	p := path.Join(
		strings.ReplaceAll(safepath.Decode(folderPath), `\`, "/"),
		strings.ReplaceAll(safepath.Decode(filename), `\`, "/"),
	)
	return strings.TrimPrefix(p, "/")
}

// sendFileError maps a file operation error onto its HTTP status. Details
// carry the error class only; server paths are never echoed back.
func (s *Server) sendFileError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := fserr.HTTPStatus(err)
	log := logging.WithContext(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Warn(op+" rejected", zap.Int("status", code), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Details: fserr.Reason(err),
	})
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
