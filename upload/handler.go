// Package upload accepts audio files over HTTP and hands them off to
// the transcription pipeline.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

// processTimeout bounds the background transcribe-and-forward run for a
// single upload.
const processTimeout = 5 * time.Minute

// Processor consumes an accepted upload. Called off the request
// goroutine, after the client already got its 200.
type Processor interface {
	Process(ctx context.Context, audio []byte, filename string) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, audio []byte, filename string) error

func (f ProcessorFunc) Process(ctx context.Context, audio []byte, filename string) error {
	return f(ctx, audio, filename)
}

var allowedExtensions = map[string]struct{}{
	".flac": {},
	".mp3":  {},
	".mp4":  {},
	".mpeg": {},
	".mpga": {},
	".m4a":  {},
	".ogg":  {},
	".wav":  {},
	".webm": {},
}

var allowedContentTypes = map[string]struct{}{
	"audio/flac":               {},
	"audio/mpeg":               {},
	"audio/mp3":                {},
	"audio/mp4":                {},
	"audio/m4a":                {},
	"audio/x-m4a":              {},
	"audio/ogg":                {},
	"audio/wav":                {},
	"audio/x-wav":              {},
	"audio/wave":               {},
	"audio/webm":               {},
	"video/mp4":                {},
	"video/webm":               {},
	"application/octet-stream": {},
}

// Handler implements POST /{uuid}/upload. The path UUID acts as a
// routing secret on top of the bearer token.
type Handler struct {
	pathUUID  string
	maxBytes  int64
	processor Processor
	logger    core.Logger
	metrics   core.MetricsRecorder

	// background is swapped in tests to run the processor inline.
	background func(func())
}

func NewHandler(cfg core.Config, processor Processor, logger core.Logger) *Handler {
	return &Handler{
		pathUUID:  strings.TrimSpace(cfg.Auth.PathUUID),
		maxBytes:  cfg.Upload.MaxSizeBytes(),
		processor: processor,
		logger:    glog.Ensure(logger),
		metrics:   core.NopMetricsRecorder{},
		background: func(run func()) {
			go run()
		},
	}
}

// WithMetrics attaches a metrics recorder; the default is a no-op.
func (h *Handler) WithMetrics(recorder core.MetricsRecorder) *Handler {
	if h != nil && recorder != nil {
		h.metrics = recorder
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.processor == nil {
		writeJSONError(w, http.StatusInternalServerError, "upload pipeline not initialized")
		return
	}
	if r.PathValue("uuid") != h.pathUUID || h.pathUUID == "" {
		writeJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	audio, filename, err := h.readUpload(r)
	if err != nil {
		status, detail := core.HTTPStatus(err), err.Error()
		if richErr := uploadErrorDetail(err); richErr != "" {
			detail = richErr
		}
		h.logger.Warn("rejected upload", "filename", filename, "error", err)
		writeJSONError(w, status, detail)
		return
	}

	h.logger.Info("accepted upload", "filename", filename, "bytes", len(audio))
	h.metrics.IncCounter(r.Context(), "upload.accepted", 1, nil)

	h.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.processor.Process(ctx, audio, filename); err != nil {
			h.logger.Error("upload processing failed", "filename", filename, "error", err)
			h.metrics.IncCounter(ctx, "upload.process_failed", 1, nil)
			return
		}
		h.metrics.IncCounter(ctx, "upload.processed", 1, nil)
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) readUpload(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		if isBodyTooLarge(err) {
			return nil, "", payloadTooLargeError(h.maxBytes)
		}
		return nil, "", badUploadError("request is not valid multipart form data")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", badUploadError("missing file field")
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if err := validateFile(header, filename); err != nil {
		return nil, filename, err
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, filename, payloadTooLargeError(h.maxBytes)
		}
		return nil, filename, badUploadError("failed reading uploaded file")
	}
	if len(audio) == 0 {
		return nil, filename, badUploadError("uploaded file is empty")
	}
	if int64(len(audio)) > h.maxBytes {
		return nil, filename, payloadTooLargeError(h.maxBytes)
	}
	return audio, filename, nil
}

func validateFile(header *multipart.FileHeader, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return badUploadError("unsupported file extension " + ext)
	}
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		return nil
	}
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		contentType = strings.TrimSpace(mediaType)
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return badUploadError("unsupported content type " + contentType)
	}
	return nil
}

func isBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

var _ http.Handler = (*Handler)(nil)
