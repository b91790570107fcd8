// Package whisper provides a batch transcriber backed by a local
// whisper.cpp server (whisper-server's POST /inference endpoint). It is
// used as the secondary transcriber behind the hosted service: the recorded
// utterance is submitted as one multipart request and the text comes back
// in the same response, so there is no job polling.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/carevoice/carevoice/pkg/provider/stt"
)

const (
	defaultLanguage = "vi"
	defaultTimeout  = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language hint forwarded to the whisper.cpp server.
// Defaults to "vi".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

var _ stt.Transcriber = (*Provider)(nil)

// New creates a Provider that connects to the whisper.cpp server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber. The audio read from r must be a
// complete WAV recording; it is posted to /inference as multipart form data.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader) (stt.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return stt.Transcript{}, fmt.Errorf("%w: %v", stt.ErrUploadFailed, err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("%w: server returned HTTP %d", stt.ErrTranscription, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Transcript{}, fmt.Errorf("%w: parse response: %v", stt.ErrTranscription, err)
	}

	return stt.Transcript{Text: result.Text}, nil
}
