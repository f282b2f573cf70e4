// Package ingest consumes transcription results from the message transport,
// persists them idempotently, drives the task status machine and pushes the
// completion notification to the uploading user's live connection.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/krasnov-dev/voicepipe/internal/async"
	"github.com/krasnov-dev/voicepipe/internal/domain"
	"github.com/krasnov-dev/voicepipe/internal/infra/mq"
)

// Outcome classifies one message's handling so the policy of a non-crashing
// consumer loop stays assertable instead of being buried in logs.
type Outcome int

const (
	// OutcomeHandled: result persisted (or confirmed already persisted).
	OutcomeHandled Outcome = iota
	// OutcomeMalformed: payload undecodable or invalid, discarded for good.
	OutcomeMalformed
	// OutcomeTransient: persistence unavailable, the message was not applied.
	OutcomeTransient
)

type TaskStore interface {
	TaskByID(ctx context.Context, id uint64) (domain.AudioTask, error)
	UpdateTaskStatus(ctx context.Context, id uint64, status domain.TaskStatus) error
	ResultByAudioID(ctx context.Context, audioID uint64) (domain.TranscriptionResult, error)
	UpsertResult(ctx context.Context, r domain.TranscriptionResult) error
}

type Notifier interface {
	SendToUser(userID uint64, payload []byte)
}

type IDSource interface {
	Next() (uint64, error)
}

type Ingestor struct {
	store TaskStore
	hub   Notifier
	ids   IDSource
	exec  *async.Executor
}

func New(store TaskStore, hub Notifier, ids IDSource, exec *async.Executor) *Ingestor {
	return &Ingestor{
		store: store,
		hub:   hub,
		ids:   ids,
		exec:  exec,
	}
}

// Handler adapts OnMessage to the transport boundary. Every outcome is
// acknowledged: malformed payloads must not be redelivered, and persistence
// hiccups are logged and swallowed rather than handed back to the transport's
// retry machinery.
func (ing *Ingestor) Handler() mq.Handler {
	return func(ctx context.Context, payload []byte) mq.ConsumeResult {
		ing.OnMessage(ctx, payload)
		return mq.Ack
	}
}

// OnMessage applies one result message:
//
//	PENDING/PROCESSING + "success" -> upsert result, task SUCCEEDED
//	PENDING/PROCESSING + other     -> upsert result, task FAILED
//	SUCCEEDED/FAILED   + any       -> upsert result, status unchanged
//
// The upsert preserves the synthetic id of an existing row for the same
// audioId, so redelivery rewrites in place and never duplicates.
func (ing *Ingestor) OnMessage(ctx context.Context, raw []byte) Outcome {
	var msg domain.TranscriptionResultMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Error("result message undecodable, discarding",
			slog.String("payload", string(raw)),
			slog.String("error", err.Error()),
		)
		return OutcomeMalformed
	}
	if msg.AudioID == 0 {
		slog.Error("result message without audio id, discarding",
			slog.String("payload", string(raw)),
		)
		return OutcomeMalformed
	}

	rec := domain.TranscriptionResult{
		AudioID:    msg.AudioID,
		ResultText: msg.ResultText,
		Status:     msg.Status,
		StartTime:  msg.StartTime,
		EndTime:    msg.EndTime,
	}

	existing, err := ing.store.ResultByAudioID(ctx, msg.AudioID)
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case errors.Is(err, domain.ErrResultNotFound):
		id, idErr := ing.ids.Next()
		if idErr != nil {
			slog.Error("cannot assign result id",
				slog.Uint64("audio_id", msg.AudioID),
				slog.String("error", idErr.Error()),
			)
			return OutcomeTransient
		}
		rec.ID = id
	default:
		slog.Error("result lookup failed",
			slog.Uint64("audio_id", msg.AudioID),
			slog.String("error", err.Error()),
		)
		return OutcomeTransient
	}

	if err := ing.store.UpsertResult(ctx, rec); err != nil {
		slog.Error("result upsert failed",
			slog.Uint64("audio_id", msg.AudioID),
			slog.String("payload", string(raw)),
			slog.String("error", err.Error()),
		)
		return OutcomeTransient
	}

	task, err := ing.store.TaskByID(ctx, msg.AudioID)
	if err != nil {
		// Result kept; the task row is gone or unreadable, nothing left to
		// transition or notify.
		slog.Error("task lookup after result upsert failed",
			slog.Uint64("audio_id", msg.AudioID),
			slog.String("error", err.Error()),
		)
		return OutcomeHandled
	}

	if !task.Status.Terminal() {
		next := domain.StatusFailed
		if msg.Status == domain.ResultStatusSuccess {
			next = domain.StatusSucceeded
		}
		if err := ing.store.UpdateTaskStatus(ctx, task.ID, next); err != nil {
			slog.Error("task status update failed",
				slog.Uint64("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			return OutcomeHandled
		}
	}

	ing.notify(task.UserID, msg)

	slog.Info("transcription result ingested",
		slog.Uint64("audio_id", msg.AudioID),
		slog.String("status", msg.Status),
	)
	return OutcomeHandled
}

// notify pushes the completion event off the consumer path. A user who is
// offline, a full executor queue or a broken connection never fails the
// pipeline.
func (ing *Ingestor) notify(userID uint64, msg domain.TranscriptionResultMessage) {
	note := domain.CompletionNotification{
		AudioID: msg.AudioID,
		Status:  domain.ResultStatusFailure,
		Message: "transcription failed",
	}
	if msg.Status == domain.ResultStatusSuccess {
		note.Status = domain.ResultStatusSuccess
		note.Message = "transcription completed"
	}

	payload, err := json.Marshal(note)
	if err != nil {
		slog.Error("marshal completion notification",
			slog.Uint64("audio_id", msg.AudioID),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := async.Run(ing.exec, func() error {
		ing.hub.SendToUser(userID, payload)
		return nil
	}); err != nil {
		slog.Warn("completion notification not scheduled",
			slog.Uint64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
