package domain

import (
	"errors"
	"time"
)

type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusProcessing
	StatusSucceeded
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status may never change again.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

const (
	ResultStatusSuccess = "success"
	ResultStatusFailure = "failure"
)

type AudioTask struct {
	ID     uint64 `json:"id,string"`
	UserID uint64 `json:"user_id,string"`

	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`

	Status TaskStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranscriptionResult is keyed by a synthetic id; AudioID is unique across
// rows, redelivered results update the existing row in place.
type TranscriptionResult struct {
	ID      uint64 `json:"id,string"`
	AudioID uint64 `json:"audio_id,string"`

	ResultText string `json:"result_text"`
	Status     string `json:"status"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranscriptionJobMessage is the wire record published for the worker.
// Immutable after publish.
type TranscriptionJobMessage struct {
	ID       uint64 `json:"id"`
	FilePath string `json:"filePath"`
}

// TranscriptionResultMessage is the wire record produced by the worker.
// Untrusted input, validated before use.
type TranscriptionResultMessage struct {
	AudioID    uint64    `json:"audioId"`
	ResultText string    `json:"resultText"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
}

// CompletionNotification is pushed to the uploading user's live connection
// once a result has been persisted.
type CompletionNotification struct {
	AudioID uint64 `json:"audioId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type UploadResponse struct {
	ID          uint64     `json:"id,string"`
	FileName    string     `json:"file_name"`
	Status      TaskStatus `json:"status"`
	DownloadURL string     `json:"download_url,omitempty"`
}

type StatusResponse struct {
	ID         uint64     `json:"id,string"`
	Status     TaskStatus `json:"status"`
	ResultText string     `json:"result_text,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrResultNotFound = errors.New("transcription result not found")
	ErrDispatchFailed = errors.New("dispatch transcription job")
)
