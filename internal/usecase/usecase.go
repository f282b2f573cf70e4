package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/krasnov-dev/voicepipe/internal/domain"
	objectstore "github.com/krasnov-dev/voicepipe/internal/infra/store/object"
)

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (objectstore.PutInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	URLFor(key string) (string, bool)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t domain.AudioTask) error
	TaskByID(ctx context.Context, id uint64) (domain.AudioTask, error)
	UpdateTaskStatus(ctx context.Context, id uint64, status domain.TaskStatus) error
	TasksByUser(ctx context.Context, userID uint64) ([]domain.AudioTask, error)
	DeleteTask(ctx context.Context, id uint64) error
	ResultByAudioID(ctx context.Context, audioID uint64) (domain.TranscriptionResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.AudioTask) error
}

type IDSource interface {
	Next() (uint64, error)
}

var allowedExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
}

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type Usecase struct {
	objects    ObjectStore
	tasks      TaskStore
	dispatcher Dispatcher
	ids        IDSource
}

func New(objects ObjectStore, tasks TaskStore, dispatcher Dispatcher, ids IDSource) *Usecase {
	return &Usecase{
		objects:    objects,
		tasks:      tasks,
		dispatcher: dispatcher,
		ids:        ids,
	}
}

// Upload stores the audio object, records a PENDING task and dispatches the
// transcription job. A failed dispatch leaves the task PENDING for a later
// explicit Transcribe; the upload itself is not rolled back.
func (uc *Usecase) Upload(ctx context.Context, userID uint64, file io.Reader, filename, contentType string, size int64) (domain.AudioTask, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return domain.AudioTask{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	id, err := uc.ids.Next()
	if err != nil {
		return domain.AudioTask{}, fmt.Errorf("assign task id: %w", err)
	}

	key := fmt.Sprintf("audio/%d%s", id, ext)
	info, err := uc.objects.Put(ctx, key, file, size, contentType)
	if err != nil {
		return domain.AudioTask{}, fmt.Errorf("store audio: %w", err)
	}

	task := domain.AudioTask{
		ID:          id,
		UserID:      userID,
		FileName:    filename,
		FilePath:    info.Key,
		FileSize:    info.Size,
		ContentType: contentType,
		Status:      domain.StatusPending,
	}
	if err := uc.tasks.CreateTask(ctx, task); err != nil {
		if delErr := uc.objects.Delete(ctx, info.Key); delErr != nil {
			slog.Warn("cleanup of stored audio failed",
				slog.String("key", info.Key),
				slog.String("error", delErr.Error()),
			)
		}
		return domain.AudioTask{}, fmt.Errorf("create task: %w", err)
	}

	if err := uc.Transcribe(ctx, id); err != nil {
		slog.Error("dispatch after upload failed, task stays pending",
			slog.Uint64("task_id", id),
			slog.String("error", err.Error()),
		)
		return task, err
	}

	task.Status = domain.StatusProcessing
	return task, nil
}

// Transcribe dispatches (or re-dispatches) the job for an existing task and
// marks it PROCESSING.
func (uc *Usecase) Transcribe(ctx context.Context, id uint64) error {
	task, err := uc.tasks.TaskByID(ctx, id)
	if err != nil {
		return err
	}

	if err := uc.dispatcher.Dispatch(ctx, task); err != nil {
		return err
	}

	if err := uc.tasks.UpdateTaskStatus(ctx, id, domain.StatusProcessing); err != nil {
		slog.Warn("mark task processing failed",
			slog.Uint64("task_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (uc *Usecase) Task(ctx context.Context, id uint64) (domain.AudioTask, error) {
	return uc.tasks.TaskByID(ctx, id)
}

func (uc *Usecase) TasksByUser(ctx context.Context, userID uint64) ([]domain.AudioTask, error) {
	return uc.tasks.TasksByUser(ctx, userID)
}

// Status assembles the read model for polling clients: current status plus
// the result text once a result row exists.
func (uc *Usecase) Status(ctx context.Context, id uint64) (domain.StatusResponse, error) {
	task, err := uc.tasks.TaskByID(ctx, id)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	resp := domain.StatusResponse{
		ID:     task.ID,
		Status: task.Status,
	}

	result, err := uc.tasks.ResultByAudioID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			return resp, nil
		}
		return domain.StatusResponse{}, err
	}

	switch task.Status {
	case domain.StatusSucceeded:
		resp.ResultText = result.ResultText
	case domain.StatusFailed:
		resp.Error = result.ResultText
	}
	return resp, nil
}

// Delete removes the task row, its result and the stored object.
func (uc *Usecase) Delete(ctx context.Context, id uint64) error {
	task, err := uc.tasks.TaskByID(ctx, id)
	if err != nil {
		return err
	}

	if err := uc.tasks.DeleteTask(ctx, id); err != nil {
		return err
	}

	if err := uc.objects.Delete(ctx, task.FilePath); err != nil {
		slog.Warn("delete stored audio failed",
			slog.String("key", task.FilePath),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
