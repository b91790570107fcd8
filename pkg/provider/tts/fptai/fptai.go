// Package fptai provides an FPT.AI-backed Vietnamese TTS synthesizer using
// the HMI TTS REST API. It implements the tts.Synthesizer interface.
//
// The API is asynchronous: POST /hmi/tts/v5 returns a URL where the encoded
// audio will appear shortly; the provider fetches that URL with a short
// retry loop and returns the bytes.
package fptai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carevoice/carevoice/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.fpt.ai/hmi/tts/v5"
	defaultVoice   = "banmai"

	fetchRetries    = 8
	fetchRetryDelay = 500 * time.Millisecond
)

// Option is a functional option for configuring the FPT.AI Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithVoice sets the default voice (e.g., "banmai", "leminh", "thuminh").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithHTTPClient replaces the HTTP client used for synthesis and fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Synthesizer backed by the FPT.AI TTS API.
type Provider struct {
	apiKey     string
	baseURL    string
	voice      string
	httpClient *http.Client
}

var _ tts.Synthesizer = (*Provider)(nil)

// New creates a new FPT.AI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fptai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		voice:      defaultVoice,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisResponse is the JSON returned by the synthesis endpoint. Async
// carries the URL where the rendered audio will become available.
type synthesisResponse struct {
	Async   string `json:"async"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// Synthesize implements tts.Synthesizer.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SpeakOptions) ([]byte, error) {
	audioURL, err := p.requestSynthesis(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	return p.fetchAudio(ctx, audioURL)
}

// requestSynthesis submits the text and returns the URL the audio will be
// served from.
func (p *Provider) requestSynthesis(ctx context.Context, text string, opts tts.SpeakOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("fptai: create request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)

	voice := opts.VoiceID
	if voice == "" {
		voice = p.voice
	}
	req.Header.Set("voice", voice)

	// FPT speed runs from -3 (slowest) to 3 (fastest), 0 being normal.
	// Map the [0.5, 2.0] rate range onto it, keeping 1.0 at 0.
	if opts.Rate > 0 && opts.Rate != 1.0 {
		speed := int((opts.Rate - 1.0) * 3)
		if speed < -3 {
			speed = -3
		}
		if speed > 3 {
			speed = 3
		}
		req.Header.Set("speed", strconv.Itoa(speed))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fptai: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fptai: synthesis: unexpected status %d", resp.StatusCode)
	}

	var sr synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("fptai: synthesis: decode response: %w", err)
	}
	if sr.Error != 0 {
		return "", fmt.Errorf("fptai: synthesis: service error %d: %s", sr.Error, sr.Message)
	}
	if sr.Async == "" {
		return "", errors.New("fptai: synthesis: empty audio URL")
	}
	return sr.Async, nil
}

// fetchAudio downloads the rendered audio, retrying briefly because the
// service returns the URL before the file exists.
func (p *Provider) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	var lastStatus int
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fptai: fetch audio: %w", ctx.Err())
			case <-time.After(fetchRetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
		if err != nil {
			return nil, fmt.Errorf("fptai: create fetch request: %w", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fptai: fetch audio: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("fptai: read audio body: %w", err)
			}
			return data, nil
		}
		lastStatus = resp.StatusCode
		resp.Body.Close()
	}
	return nil, fmt.Errorf("fptai: audio not ready after %d attempts (last status %d)", fetchRetries, lastStatus)
}
