package taskstore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/krasnov-dev/voicepipe/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Store persists audio tasks and transcription results as one hash per
// record. Single-row operations rely on redis' per-command atomicity;
// multi-field writes go through a TxPipeline.
type Store struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) CreateTask(ctx context.Context, t domain.AudioTask) error {
	now := time.Now()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(t.ID), map[string]any{
		"user_id":      strconv.FormatUint(t.UserID, 10),
		"file_name":    t.FileName,
		"file_path":    t.FilePath,
		"file_size":    strconv.FormatInt(t.FileSize, 10),
		"content_type": t.ContentType,
		"status":       int(t.Status),
		"created_at":   now.UnixNano(),
		"updated_at":   now.UnixNano(),
	})
	pipe.ZAdd(ctx, userTasksKey(t.UserID), redis.Z{
		Score:  float64(now.Unix()),
		Member: strconv.FormatUint(t.ID, 10),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis create task %d: %w", t.ID, err)
	}
	return nil
}

func (s *Store) TaskByID(ctx context.Context, id uint64) (domain.AudioTask, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.AudioTask{}, fmt.Errorf("redis get task %d: %w", id, err)
	}
	if len(res) == 0 {
		return domain.AudioTask{}, domain.ErrTaskNotFound
	}

	return taskFromHash(id, res), nil
}

// UpdateTaskStatus advances the task's status. Terminal states are never
// regressed: a redelivered result arriving after SUCCEEDED/FAILED leaves the
// task untouched.
func (s *Store) UpdateTaskStatus(ctx context.Context, id uint64, status domain.TaskStatus) error {
	cur, err := s.TaskByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() && cur.Status != status {
		slog.Debug("status update skipped, task already terminal",
			slog.Uint64("task_id", id),
			slog.String("status", cur.Status.String()),
		)
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(id), "status", int(status))
	pipe.HSet(ctx, taskKey(id), "updated_at", time.Now().UnixNano())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis update task %d status: %w", id, err)
	}
	return nil
}

func (s *Store) TasksByUser(ctx context.Context, userID uint64) ([]domain.AudioTask, error) {
	ids, err := s.rdb.ZRevRange(ctx, userTasksKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list tasks for user %d: %w", userID, err)
	}

	tasks := make([]domain.AudioTask, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		t, err := s.TaskByID(ctx, id)
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Store) DeleteTask(ctx context.Context, id uint64) error {
	t, err := s.TaskByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.Del(ctx, resultKey(id))
	pipe.ZRem(ctx, userTasksKey(t.UserID), strconv.FormatUint(id, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete task %d: %w", id, err)
	}
	return nil
}

func (s *Store) ResultByAudioID(ctx context.Context, audioID uint64) (domain.TranscriptionResult, error) {
	res, err := s.rdb.HGetAll(ctx, resultKey(audioID)).Result()
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("redis get result for audio %d: %w", audioID, err)
	}
	if len(res) == 0 {
		return domain.TranscriptionResult{}, domain.ErrResultNotFound
	}

	return resultFromHash(audioID, res), nil
}

// UpsertResult writes the result row keyed by its audioId. Callers preserve
// the synthetic id of an existing row, so redelivery rewrites in place and a
// duplicate row can never appear.
func (s *Store) UpsertResult(ctx context.Context, r domain.TranscriptionResult) error {
	now := time.Now()
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, resultKey(r.AudioID), map[string]any{
		"id":          strconv.FormatUint(r.ID, 10),
		"result_text": r.ResultText,
		"status":      r.Status,
		"start_time":  r.StartTime.UnixNano(),
		"end_time":    r.EndTime.UnixNano(),
		"created_at":  created.UnixNano(),
		"updated_at":  now.UnixNano(),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert result for audio %d: %w", r.AudioID, err)
	}
	return nil
}

func taskFromHash(id uint64, res map[string]string) domain.AudioTask {
	t := domain.AudioTask{
		ID:          id,
		FileName:    res["file_name"],
		FilePath:    res["file_path"],
		ContentType: res["content_type"],
	}

	if v, err := strconv.ParseUint(res["user_id"], 10, 64); err == nil {
		t.UserID = v
	}
	if v, err := strconv.ParseInt(res["file_size"], 10, 64); err == nil {
		t.FileSize = v
	}
	if v, err := strconv.Atoi(res["status"]); err == nil {
		t.Status = domain.TaskStatus(v)
	}
	if v, err := strconv.ParseInt(res["created_at"], 10, 64); err == nil {
		t.CreatedAt = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(res["updated_at"], 10, 64); err == nil {
		t.UpdatedAt = time.Unix(0, v)
	}

	return t
}

func resultFromHash(audioID uint64, res map[string]string) domain.TranscriptionResult {
	r := domain.TranscriptionResult{
		AudioID:    audioID,
		ResultText: res["result_text"],
		Status:     res["status"],
	}

	if v, err := strconv.ParseUint(res["id"], 10, 64); err == nil {
		r.ID = v
	}
	if v, err := strconv.ParseInt(res["start_time"], 10, 64); err == nil {
		r.StartTime = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(res["end_time"], 10, 64); err == nil {
		r.EndTime = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(res["created_at"], 10, 64); err == nil {
		r.CreatedAt = time.Unix(0, v)
	}
	if v, err := strconv.ParseInt(res["updated_at"], 10, 64); err == nil {
		r.UpdatedAt = time.Unix(0, v)
	}

	return r
}

func taskKey(id uint64) string {
	return "audio:task:" + strconv.FormatUint(id, 10)
}

func resultKey(audioID uint64) string {
	return "audio:result:" + strconv.FormatUint(audioID, 10)
}

func userTasksKey(userID uint64) string {
	return "audio:user:" + strconv.FormatUint(userID, 10)
}
