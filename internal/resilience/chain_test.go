package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/carevoice/carevoice/pkg/provider/stt"
)

func TestChainPrimarySucceeds(t *testing.T) {
	c := NewChain("primary", 1, BreakerConfig{})
	c.Add("secondary", 2)

	var used int
	err := c.Run(func(v int) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != 1 {
		t.Errorf("used backend %d, want primary (1)", used)
	}
}

func TestChainFailsOver(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("secondary", "b")

	got, err := RunChain(c, func(v string) (string, error) {
		if v == "a" {
			return "", errTest
		}
		return "ok-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok-b" {
		t.Errorf("result = %q, want %q", got, "ok-b")
	}
}

func TestChainAllFail(t *testing.T) {
	c := NewChain("primary", 1, BreakerConfig{})
	c.Add("secondary", 2)

	err := c.Run(func(int) error { return errTest })
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestChainSkipsOpenBreaker(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{TripAfter: 1, CoolDown: time.Hour})
	c.Add("secondary", "b")

	// Trip the primary's breaker.
	_ = c.Run(func(v string) error {
		if v == "a" {
			return errTest
		}
		return nil
	})

	var calls []string
	err := c.Run(func(v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want only the secondary", calls)
	}
}

type stubTranscriber struct {
	text string
	err  error
	got  []byte
}

func (s *stubTranscriber) Transcribe(_ context.Context, r io.Reader) (stt.Transcript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return stt.Transcript{}, err
	}
	s.got = data
	if s.err != nil {
		return stt.Transcript{}, s.err
	}
	return stt.Transcript{Text: s.text}, nil
}

func TestTranscriberFailover(t *testing.T) {
	primary := &stubTranscriber{err: errTest}
	secondary := &stubTranscriber{text: "xin chào"}

	tr := NewTranscriber("primary", primary, BreakerConfig{})
	tr.AddFallback("secondary", secondary)

	got, err := tr.Transcribe(context.Background(), strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "xin chào" {
		t.Errorf("text = %q, want %q", got.Text, "xin chào")
	}

	// Both backends must have seen the complete audio.
	for name, s := range map[string]*stubTranscriber{"primary": primary, "secondary": secondary} {
		if !bytes.Equal(s.got, []byte("audio-bytes")) {
			t.Errorf("%s saw %q, want full audio", name, s.got)
		}
	}
}
