// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber turns one captured audio recording into raw transcript text.
// CareVoice uses batch transcription (upload, submit, poll) rather than
// streaming: the mobile client records a complete utterance and hands the
// bytes to the gateway, which forwards them to the transcription service.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package stt

import (
	"context"
	"errors"
	"io"
	"time"
)

// Typed transcription failures. Callers match these with [errors.Is] to
// choose the spoken degradation message.
var (
	// ErrUploadFailed indicates the audio bytes could not be delivered to
	// the transcription service.
	ErrUploadFailed = errors.New("stt: audio upload failed")

	// ErrTranscription indicates the service accepted the job but reported
	// a terminal error for it.
	ErrTranscription = errors.New("stt: transcription failed")

	// ErrQueueTimeout indicates the job sat continuously queued for longer
	// than the configured queue budget without entering processing.
	ErrQueueTimeout = errors.New("stt: job queued too long")

	// ErrPollBudgetExhausted indicates the poll attempt budget ran out
	// before the job reached a terminal status.
	ErrPollBudgetExhausted = errors.New("stt: poll budget exhausted")
)

// JobStatus is the lifecycle state of a remote transcription job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Job describes a transcription job submitted to the remote service.
// QueuedSince is the time the job was first observed in the queued status;
// it is zero until then and is reset whenever the job enters processing.
type Job struct {
	ID          string
	Status      JobStatus
	QueuedSince time.Time
}

// Transcript is the result of a completed transcription.
type Transcript struct {
	// Text is the raw transcript as returned by the service, before any
	// normalisation.
	Text string

	// Confidence is the service-reported confidence in [0, 1], or 0 when
	// the service does not report one.
	Confidence float64
}

// Transcriber converts one recorded utterance into text.
type Transcriber interface {
	// Transcribe uploads the audio read from r and blocks until the remote
	// job reaches a terminal state, the poll budget is exhausted, or ctx is
	// cancelled. The language is fixed at construction time.
	Transcribe(ctx context.Context, r io.Reader) (Transcript, error)
}
