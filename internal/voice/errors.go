package voice

import "errors"

var (
	// ErrBusy means a final utterance arrived while one was already being
	// processed. The new utterance is dropped, never queued.
	ErrBusy = errors.New("voice: session is processing")

	// ErrNotIdle means StartListening was called outside the Idle state.
	ErrNotIdle = errors.New("voice: session is not idle")

	// ErrPermissionDenied means the client reported that microphone access
	// was refused.
	ErrPermissionDenied = errors.New("voice: microphone permission denied")

	// ErrRecognitionStart means the client could not start audio capture.
	ErrRecognitionStart = errors.New("voice: recognition failed to start")
)
