// Package assemblyai provides an AssemblyAI-backed batch transcriber using
// the upload / submit / poll REST API. It implements the stt.Transcriber
// interface.
//
// The protocol has three legs, each with its own timeout:
//
//  1. POST /upload — deliver raw audio bytes, receiving an upload URL.
//  2. POST /transcript — submit a transcription job for that upload with a
//     fixed language code, receiving a job id.
//  3. GET /transcript/{id} — poll the job status until it turns completed
//     or error, the poll budget runs out, or the job sits continuously
//     queued for longer than the queue budget.
//
// The poll loop runs on an injected [clock.Clock] so queue-timeout behaviour
// is testable without real delays.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carevoice/carevoice/pkg/clock"
	"github.com/carevoice/carevoice/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.assemblyai.com/v2"
	defaultLanguage = "vi"

	defaultUploadTimeout = 15 * time.Second
	defaultSubmitTimeout = 10 * time.Second
	defaultPollTimeout   = 5 * time.Second
	defaultPollInterval  = 2 * time.Second
	defaultMaxPolls      = 20
	defaultQueueBudget   = 15 * time.Second
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint. Used by tests to point the
// provider at an httptest server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithLanguage fixes the BCP-47 language code submitted with every job.
// Defaults to "vi".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client used for all three protocol legs.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithClock replaces the time source driving the poll loop.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) {
		p.clock = c
	}
}

// WithPollInterval sets the delay between status polls. Default: 2s.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.pollInterval = d
	}
}

// WithMaxPolls sets the poll attempt budget. Default: 20.
func WithMaxPolls(n int) Option {
	return func(p *Provider) {
		p.maxPolls = n
	}
}

// WithQueueBudget sets the continuous-queued duration after which a job is
// abandoned with [stt.ErrQueueTimeout]. Default: 15s.
func WithQueueBudget(d time.Duration) Option {
	return func(p *Provider) {
		p.queueBudget = d
	}
}

// WithTextFilter installs a filter applied to completed transcript text
// before it is returned, typically to strip the app's own prompt phrases
// that bled back into the microphone.
func WithTextFilter(f func(string) string) Option {
	return func(p *Provider) {
		p.textFilter = f
	}
}

// Provider implements stt.Transcriber backed by the AssemblyAI REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	language     string
	httpClient   *http.Client
	clock        clock.Clock
	pollInterval time.Duration
	maxPolls     int
	queueBudget  time.Duration
	textFilter   func(string) string
}

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		language:     defaultLanguage,
		httpClient:   &http.Client{},
		clock:        clock.System{},
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
		queueBudget:  defaultQueueBudget,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`

	// Confidence is reported once the job completes.
	Confidence float64 `json:"confidence"`
}

// Transcribe implements stt.Transcriber. It uploads the audio read from r,
// submits a transcription job, and polls until the job reaches a terminal
// status or a budget runs out.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader) (stt.Transcript, error) {
	audioURL, err := p.upload(ctx, r)
	if err != nil {
		return stt.Transcript{}, err
	}

	job, err := p.submit(ctx, audioURL)
	if err != nil {
		return stt.Transcript{}, err
	}

	return p.poll(ctx, job)
}

// upload delivers the raw audio bytes and returns the service-side URL that
// identifies them.
func (p *Provider) upload(ctx context.Context, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultUploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/upload", r)
	if err != nil {
		return "", fmt.Errorf("assemblyai: create upload request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", stt.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", stt.ErrUploadFailed, resp.StatusCode)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", stt.ErrUploadFailed, err)
	}
	if ur.UploadURL == "" {
		return "", fmt.Errorf("%w: empty upload_url", stt.ErrUploadFailed)
	}
	return ur.UploadURL, nil
}

// submit creates the transcription job and returns its initial state.
func (p *Provider) submit(ctx context.Context, audioURL string) (stt.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultSubmitTimeout)
	defer cancel()

	body, err := json.Marshal(submitRequest{
		AudioURL:     audioURL,
		LanguageCode: p.language,
	})
	if err != nil {
		return stt.Job{}, fmt.Errorf("assemblyai: marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return stt.Job{}, fmt.Errorf("assemblyai: create submit request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Job{}, fmt.Errorf("assemblyai: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Job{}, fmt.Errorf("assemblyai: submit: unexpected status %d", resp.StatusCode)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return stt.Job{}, fmt.Errorf("assemblyai: submit: decode response: %w", err)
	}
	if sr.ID == "" {
		return stt.Job{}, errors.New("assemblyai: submit: empty job id")
	}
	return stt.Job{ID: sr.ID, Status: stt.StatusQueued}, nil
}

// poll drives the job to a terminal state. The queue timer starts when the
// job is first observed queued and is reset whenever it enters processing;
// exceeding the queue budget while continuously queued fails the job even
// when poll attempts remain.
func (p *Provider) poll(ctx context.Context, job stt.Job) (stt.Transcript, error) {
	for attempt := 0; attempt < p.maxPolls; attempt++ {
		st, err := p.fetchStatus(ctx, job.ID)
		if err != nil {
			return stt.Transcript{}, err
		}

		switch stt.JobStatus(st.Status) {
		case stt.StatusCompleted:
			text := st.Text
			if p.textFilter != nil {
				text = p.textFilter(text)
			}
			return stt.Transcript{Text: text, Confidence: st.Confidence}, nil

		case stt.StatusError:
			return stt.Transcript{}, fmt.Errorf("%w: %s", stt.ErrTranscription, st.Error)

		case stt.StatusQueued:
			now := p.clock.Now()
			if job.QueuedSince.IsZero() {
				job.QueuedSince = now
			} else if now.Sub(job.QueuedSince) > p.queueBudget {
				return stt.Transcript{}, fmt.Errorf("%w: job %s queued for %s", stt.ErrQueueTimeout, job.ID, now.Sub(job.QueuedSince))
			}
			job.Status = stt.StatusQueued

		case stt.StatusProcessing:
			job.QueuedSince = time.Time{}
			job.Status = stt.StatusProcessing

		default:
			return stt.Transcript{}, fmt.Errorf("%w: unknown status %q", stt.ErrTranscription, st.Status)
		}

		select {
		case <-ctx.Done():
			return stt.Transcript{}, fmt.Errorf("assemblyai: poll: %w", ctx.Err())
		case <-p.clock.After(p.pollInterval):
		}
	}

	return stt.Transcript{}, fmt.Errorf("%w: job %s after %d attempts", stt.ErrPollBudgetExhausted, job.ID, p.maxPolls)
}

// fetchStatus performs one status poll with its own per-call timeout.
func (p *Provider) fetchStatus(ctx context.Context, jobID string) (statusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return statusResponse{}, fmt.Errorf("assemblyai: create status request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return statusResponse{}, fmt.Errorf("assemblyai: status poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusResponse{}, fmt.Errorf("assemblyai: status poll: unexpected status %d", resp.StatusCode)
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return statusResponse{}, fmt.Errorf("assemblyai: status poll: decode response: %w", err)
	}
	return st, nil
}
