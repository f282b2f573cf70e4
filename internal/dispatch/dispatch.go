// Package dispatch turns a persisted audio task into a transcription job
// message and hands it to the message transport.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/krasnov-dev/voicepipe/internal/domain"
	"github.com/krasnov-dev/voicepipe/internal/infra/mq"
)

// URLResolver assembles the fully-qualified storage locator for a stored
// object key.
type URLResolver interface {
	URLFor(key string) (string, bool)
}

type Dispatcher struct {
	pub   mq.Publisher
	urls  URLResolver
	topic string
	tag   string
}

func New(pub mq.Publisher, urls URLResolver, topic, tag string) *Dispatcher {
	return &Dispatcher{
		pub:   pub,
		urls:  urls,
		topic: topic,
		tag:   tag,
	}
}

// Dispatch publishes the job for the worker. The message carries the task id
// and the full storage URL so the worker needs no storage configuration of
// its own. Publish failures wrap domain.ErrDispatchFailed; the caller decides
// whether to roll back the enclosing task creation.
func (d *Dispatcher) Dispatch(ctx context.Context, task domain.AudioTask) error {
	fileURL, ok := d.urls.URLFor(task.FilePath)
	if !ok {
		return fmt.Errorf("%w: task %d has no storage locator", domain.ErrDispatchFailed, task.ID)
	}

	msg := domain.TranscriptionJobMessage{
		ID:       task.ID,
		FilePath: fileURL,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal job for task %d: %w", domain.ErrDispatchFailed, task.ID, err)
	}

	if err := d.pub.Publish(ctx, d.topic, d.tag, payload); err != nil {
		return fmt.Errorf("%w: task %d: %w", domain.ErrDispatchFailed, task.ID, err)
	}

	slog.Info("transcription job dispatched",
		slog.Uint64("task_id", task.ID),
		slog.String("topic", d.topic),
		slog.String("tag", d.tag),
	)
	return nil
}
