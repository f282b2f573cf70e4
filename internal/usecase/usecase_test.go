package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/krasnov-dev/voicepipe/internal/domain"
	objectstore "github.com/krasnov-dev/voicepipe/internal/infra/store/object"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (objectstore.PutInfo, error) {
	if m.putErr != nil {
		return objectstore.PutInfo{}, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return objectstore.PutInfo{}, err
	}
	m.objects[key] = data
	return objectstore.PutInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memObjects) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, 0, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memObjects) URLFor(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	return "http://store/bucket/" + key, true
}

type memTasks struct {
	tasks     map[uint64]domain.AudioTask
	createErr error
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[uint64]domain.AudioTask)}
}

func (m *memTasks) CreateTask(_ context.Context, t domain.AudioTask) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *memTasks) TaskByID(_ context.Context, id uint64) (domain.AudioTask, error) {
	t, ok := m.tasks[id]
	if !ok {
		return domain.AudioTask{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (m *memTasks) UpdateTaskStatus(_ context.Context, id uint64, status domain.TaskStatus) error {
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.Status = status
	m.tasks[id] = t
	return nil
}

func (m *memTasks) TasksByUser(_ context.Context, userID uint64) ([]domain.AudioTask, error) {
	var out []domain.AudioTask
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) DeleteTask(_ context.Context, id uint64) error {
	if _, ok := m.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTasks) ResultByAudioID(_ context.Context, audioID uint64) (domain.TranscriptionResult, error) {
	return domain.TranscriptionResult{}, domain.ErrResultNotFound
}

type memDispatcher struct {
	dispatched []uint64
	err        error
}

func (m *memDispatcher) Dispatch(_ context.Context, task domain.AudioTask) error {
	if m.err != nil {
		return m.err
	}
	m.dispatched = append(m.dispatched, task.ID)
	return nil
}

type fixedIDs struct{ id uint64 }

func (f *fixedIDs) Next() (uint64, error) {
	f.id++
	return f.id + 1000, nil
}

func newUsecase() (*Usecase, *memObjects, *memTasks, *memDispatcher) {
	objects := newMemObjects()
	tasks := newMemTasks()
	disp := &memDispatcher{}
	uc := New(objects, tasks, disp, &fixedIDs{})
	return uc, objects, tasks, disp
}

func TestUploadStoresTaskAndDispatches(t *testing.T) {
	t.Parallel()

	uc, objects, tasks, disp := newUsecase()

	task, err := uc.Upload(context.Background(), 7,
		bytes.NewReader([]byte("RIFF....")), "meeting.WAV", "audio/wav", 8)
	require.NoError(t, err)

	assert.Equal(t, uint64(1001), task.ID)
	assert.Equal(t, domain.StatusProcessing, task.Status)
	assert.Equal(t, "audio/1001.wav", task.FilePath)
	assert.Contains(t, objects.objects, "audio/1001.wav")

	stored := tasks.tasks[1001]
	assert.Equal(t, uint64(7), stored.UserID)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Equal(t, []uint64{1001}, disp.dispatched)
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	uc, objects, tasks, _ := newUsecase()

	_, err := uc.Upload(context.Background(), 7,
		bytes.NewReader([]byte("x")), "notes.txt", "text/plain", 1)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, objects.objects)
	assert.Empty(t, tasks.tasks)
}

func TestUploadDispatchFailureLeavesTaskPending(t *testing.T) {
	t.Parallel()

	uc, _, tasks, disp := newUsecase()
	disp.err = domain.ErrDispatchFailed

	task, err := uc.Upload(context.Background(), 7,
		bytes.NewReader([]byte("x")), "a.mp3", "audio/mpeg", 1)
	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	assert.Equal(t, domain.StatusPending, tasks.tasks[task.ID].Status)
}

func TestUploadCleansUpObjectOnCreateFailure(t *testing.T) {
	t.Parallel()

	uc, objects, tasks, _ := newUsecase()
	tasks.createErr = errors.New("redis down")

	_, err := uc.Upload(context.Background(), 7,
		bytes.NewReader([]byte("x")), "a.flac", "audio/flac", 1)
	require.Error(t, err)
	assert.Empty(t, objects.objects)
	assert.NotEmpty(t, objects.deleted)
}

func TestTranscribeMarksProcessing(t *testing.T) {
	t.Parallel()

	uc, _, tasks, disp := newUsecase()
	tasks.tasks[5] = domain.AudioTask{ID: 5, FilePath: "audio/5.wav", Status: domain.StatusFailed}

	require.NoError(t, uc.Transcribe(context.Background(), 5))
	assert.Equal(t, []uint64{5}, disp.dispatched)
	assert.Equal(t, domain.StatusProcessing, tasks.tasks[5].Status)
}

func TestTranscribeUnknownTask(t *testing.T) {
	t.Parallel()

	uc, _, _, disp := newUsecase()

	err := uc.Transcribe(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Empty(t, disp.dispatched)
}

func TestStatusWithoutResult(t *testing.T) {
	t.Parallel()

	uc, _, tasks, _ := newUsecase()
	tasks.tasks[5] = domain.AudioTask{ID: 5, Status: domain.StatusProcessing}

	resp, err := uc.Status(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, resp.Status)
	assert.Empty(t, resp.ResultText)
}

func TestDeleteRemovesTaskAndObject(t *testing.T) {
	t.Parallel()

	uc, objects, tasks, _ := newUsecase()
	objects.objects["audio/5.wav"] = []byte("x")
	tasks.tasks[5] = domain.AudioTask{ID: 5, FilePath: "audio/5.wav"}

	require.NoError(t, uc.Delete(context.Background(), 5))
	assert.Empty(t, tasks.tasks)
	assert.Empty(t, objects.objects)
}
