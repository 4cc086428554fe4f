package job

import "time"

// QueueStatus tracks a queued file-translation job through its lifecycle.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueRunning QueueStatus = "running"
	QueueSuccess QueueStatus = "success"
	QueueFailed  QueueStatus = "failed"
)

// EnqueueRequest asks for one input file to be translated into one target
// language. DedupeKey collapses repeat requests for the same work while a
// previous job for it is still pending or running.
type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   Payload
}

// Payload is everything a worker needs to run a file translation.
type Payload struct {
	InputFile      string `json:"input_file"`
	OutputFile     string `json:"output_file"`
	TargetLanguage string `json:"target_language"`
	ResumeFrom     string `json:"resume_from,omitempty"`
}

// TranslationJob is one scheduled file translation.
type TranslationJob struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	DedupeKey string      `json:"dedupe_key"`
	Payload   Payload     `json:"payload"`
	Status    QueueStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
