// Package handler exposes the document service over HTTP.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const (
	msgSuccess         = "Success!"
	msgFormatForbidden = "File format not allowed!"

	// multipart parts beyond this are spooled to temporary files
	multipartMemory = 32 << 20
)

// DocumentService is the behaviour the handlers need from *service.Service.
type DocumentService interface {
	Upload(ctx context.Context, filename string, content []byte) (*service.UploadResult, error)
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Search(ctx context.Context, query string, limit int) (*service.SearchResponse, error)
	Status(ctx context.Context, key string) (*catalog.Entry, error)
	Reconcile(ctx context.Context) (*service.ReconcileReport, error)
	CacheStats() cache.Stats
}

type Handler struct {
	svc            DocumentService
	maxUploadBytes int64
	logger         *slog.Logger
}

func New(svc DocumentService, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         slog.Default().With("component", "api-handler"),
	}
}

// Upload accepts a multipart form with a "file" field. A request without a
// file, or with an empty filename, is redirected back to its own URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			http.Redirect(w, r, r.URL.String(), http.StatusSeeOther)
		default:
			h.writeError(w, http.StatusBadRequest, "malformed multipart body")
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// no file part, or a part whose filename is empty
		http.Redirect(w, r, r.URL.String(), http.StatusSeeOther)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		log.Error("reading upload failed", "error", err)
		h.writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	res, err := h.svc.Upload(ctx, header.Filename, content)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("upload failed",
			"filename", header.Filename,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "upload failed")
		return
	}
	switch res.Reason {
	case document.ReasonEmptyFilename:
		http.Redirect(w, r, r.URL.String(), http.StatusSeeOther)
	case document.ReasonUnsupportedFormat:
		h.writeText(w, http.StatusUnsupportedMediaType, msgFormatForbidden)
	default:
		h.writeText(w, http.StatusOK, msgSuccess)
	}
}

func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("filename")
	content, err := h.svc.Retrieve(r.Context(), key)
	if err != nil {
		h.fail(w, r, "retrieve failed", err)
		return
	}
	w.Header().Set("Content-Type", contentType(key))
	http.ServeContent(w, r, key, time.Time{}, bytes.NewReader(content))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("filename")); err != nil {
		h.fail(w, r, "delete failed", err)
		return
	}
	h.writeText(w, http.StatusOK, msgSuccess)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	resp, err := h.svc.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Status(r.Context(), r.PathValue("filename"))
	if err != nil {
		h.fail(w, r, "status lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, "reconcile failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

// fail maps err to a status code. Not-found and bad input are expected and
// logged at info; everything else is an error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if statusCode >= http.StatusInternalServerError {
		log.Error(msg, "path", r.URL.Path, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, msg)
		return
	}
	log.Info(msg, "path", r.URL.Path, "error", err, "status_code", statusCode)
	h.writeError(w, statusCode, err.Error())
}

func contentType(key string) string {
	switch ext := filepath.Ext(key); ext {
	case ".txt", ".text":
		return "text/plain; charset=utf-8"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

func (h *Handler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
