package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/krasnov-dev/voicepipe/internal/domain"
	"github.com/krasnov-dev/voicepipe/internal/usecase"

	"github.com/google/uuid"
)

type Usecase interface {
	Upload(ctx context.Context, userID uint64, file io.Reader, filename, contentType string, size int64) (domain.AudioTask, error)
	Transcribe(ctx context.Context, id uint64) error
	Task(ctx context.Context, id uint64) (domain.AudioTask, error)
	TasksByUser(ctx context.Context, userID uint64) ([]domain.AudioTask, error)
	Status(ctx context.Context, id uint64) (domain.StatusResponse, error)
	Delete(ctx context.Context, id uint64) error
}

type URLResolver interface {
	URLFor(key string) (string, bool)
}

type handler struct {
	maxUploadBytesMb int64
	usecase          Usecase
	urls             URLResolver
}

func NewHandler(maxUploadBytesMb int64, uc Usecase, urls URLResolver) *handler {
	return &handler{
		maxUploadBytesMb: maxUploadBytesMb << 20,
		usecase:          uc,
		urls:             urls,
	}
}

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "upload"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytesMb)

	if err := r.ParseMultipartForm(h.maxUploadBytesMb); err != nil {
		logger.Error("ParseMultipartForm", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}

	userID, err := strconv.ParseUint(r.FormValue("user_id"), 10, 64)
	if err != nil || userID == 0 {
		logger.Warn("missing or invalid user_id field")
		writeError(w, http.StatusBadRequest, "field `user_id` is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("missing file field")
		writeError(w, http.StatusBadRequest, "field `file` is required")
		return
	}
	defer file.Close()

	logger = logger.With(
		slog.String("file_name", header.Filename),
		slog.Uint64("user_id", userID),
	)

	task, err := h.usecase.Upload(
		r.Context(),
		userID,
		file,
		header.Filename,
		header.Header.Get("Content-Type"),
		header.Size,
	)
	if err != nil {
		if errors.Is(err, usecase.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported audio format")
			return
		}
		if errors.Is(err, domain.ErrDispatchFailed) {
			// The task is stored, only the job failed to leave. Report the
			// id so the client can retry via /transcribe.
			logger.Error("dispatch failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusAccepted, domain.UploadResponse{
				ID:       task.ID,
				FileName: task.FileName,
				Status:   task.Status,
			})
			return
		}
		logger.Error("Upload usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot create transcription task")
		return
	}

	resp := domain.UploadResponse{
		ID:       task.ID,
		FileName: task.FileName,
		Status:   task.Status,
	}
	if url, ok := h.urls.URLFor(task.FilePath); ok {
		resp.DownloadURL = url
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "list"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "query parameter `user_id` is required")
		return
	}

	tasks, err := h.usecase.TasksByUser(r.Context(), userID)
	if err != nil {
		logger.Error("TasksByUser", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}
	if tasks == nil {
		tasks = []domain.AudioTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// audio routes everything under /audio/{id}[/...] by method and suffix.
func (h *handler) audio(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/audio/")
	idPart, action, _ := strings.Cut(rest, "/")

	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid audio ID")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case action == "result" && r.Method == http.MethodGet:
		h.result(w, r, id)
	case action == "transcribe" && r.Method == http.MethodPost:
		h.transcribe(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "")
	}
}

func (h *handler) get(w http.ResponseWriter, r *http.Request, id uint64) {
	task, err := h.usecase.Task(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("Task", slog.Uint64("task_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *handler) result(w http.ResponseWriter, r *http.Request, id uint64) {
	resp, err := h.usecase.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("Status", slog.Uint64("task_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}

	switch resp.Status {
	case domain.StatusSucceeded:
		writeJSON(w, http.StatusOK, resp)
	case domain.StatusFailed:
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (h *handler) transcribe(w http.ResponseWriter, r *http.Request, id uint64) {
	if err := h.usecase.Transcribe(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("Transcribe", slog.Uint64("task_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot dispatch transcription job")
		return
	}
	writeJSON(w, http.StatusAccepted, domain.StatusResponse{
		ID:     id,
		Status: domain.StatusProcessing,
	})
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request, id uint64) {
	if err := h.usecase.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("Delete", slog.Uint64("task_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
