package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/carevoice/carevoice/pkg/provider/stt"
)

// Transcriber implements [stt.Transcriber] with automatic failover across
// multiple transcription backends. The recorded utterance is buffered once
// so each backend receives the full audio from the start.
type Transcriber struct {
	chain *Chain[stt.Transcriber]
}

var _ stt.Transcriber = (*Transcriber)(nil)

// NewTranscriber creates a failover Transcriber with primary as the
// preferred backend.
func NewTranscriber(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *Transcriber {
	return &Transcriber{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback registers an additional transcription backend, tried when the
// earlier ones fail or have open breakers.
func (t *Transcriber) AddFallback(name string, backend stt.Transcriber) {
	t.chain.Add(name, backend)
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, r io.Reader) (stt.Transcript, error) {
	audio, err := io.ReadAll(r)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("resilience: read audio: %w", err)
	}
	return RunChain(t.chain, func(backend stt.Transcriber) (stt.Transcript, error) {
		return backend.Transcribe(ctx, bytes.NewReader(audio))
	})
}
