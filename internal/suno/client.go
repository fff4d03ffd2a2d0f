package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL      = "https://api.sunoapi.org/api/v1"
	DefaultTitle        = "Melody Agents Song"
	DefaultModel        = "V3_5"
	DefaultMaxWait      = 300 * time.Second
	DefaultPollInterval = 10 * time.Second

	// The service requires a callback URL even though completion is
	// observed by polling here.
	DefaultCallbackURL = "https://example.com/callback"

	submitTimeout = 30 * time.Second
	pollTimeout   = 10 * time.Second
	maxBodyBytes  = 1 << 20
)

// StatusFunc observes status changes of a task. It is called once per
// distinct raw status, in the polling goroutine.
type StatusFunc func(taskID, raw string, status JobStatus)

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	Title        string
	Model        string
	CallbackURL  string
	MaxWait      time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
	OnStatus     StatusFunc
}

// Client drives song generation tasks on the remote service from
// submission to a terminal status. It holds only read-only configuration and
// is safe for concurrent use; every call owns its own polling state.
type Client struct {
	apiKey       string
	baseURL      string
	title        string
	model        string
	callbackURL  string
	maxWait      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zerolog.Logger
	onStatus     StatusFunc

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = DefaultTitle
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	callback := strings.TrimSpace(opts.CallbackURL)
	if callback == "" {
		callback = DefaultCallbackURL
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// per-request deadlines come from submitTimeout/pollTimeout
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		title:        title,
		model:        model,
		callbackURL:  callback,
		maxWait:      maxWait,
		pollInterval: interval,
		httpClient:   httpClient,
		logger:       logger,
		onStatus:     opts.OnStatus,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// MaxWait returns the wall-clock budget of one Wait call.
func (c *Client) MaxWait() time.Duration { return c.maxWait }

// Generate submits content with the given style, waits for the task to
// finish and returns its songs. A task that succeeds without songs yields an
// empty Result and a nil error. Failures are *Error values; cancelling ctx
// returns the context error.
func (c *Client) Generate(ctx context.Context, content, style string) (*Result, error) {
	return c.GenerateWithStatus(ctx, content, style, nil)
}

// GenerateWithStatus is Generate with an extra observer for this call only.
// It is invoked after the client-wide OnStatus.
func (c *Client) GenerateWithStatus(ctx context.Context, content, style string, onStatus StatusFunc) (*Result, error) {
	c.logger.Info().
		Str("style", style).
		Int("content_len", len(content)).
		Msg("suno: starting song generation")

	taskID, err := c.Submit(ctx, c.NewRequest(content, style))
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("task_id", taskID).Dur("max_wait", c.maxWait).Msg("suno: task created")

	return c.wait(ctx, taskID, onStatus)
}

// NewRequest builds the create-task body with the client's fixed defaults:
// custom mode on, vocals on.
func (c *Client) NewRequest(content, style string) JobRequest {
	return JobRequest{
		Prompt:       content,
		Style:        style,
		Title:        c.title,
		CustomMode:   true,
		Instrumental: false,
		Model:        c.model,
		CallBackURL:  c.callbackURL,
	}
}

// Submit issues a single create-task call and returns the task id.
// It never retries.
func (c *Client) Submit(ctx context.Context, req JobRequest) (string, error) {
	if c.apiKey == "" {
		return "", &Error{Kind: KindSubmission, Reason: "api key is required", Err: ErrMissingAPIKey}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Kind: KindSubmission, Reason: "encode request", Err: err}
	}

	rctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(rctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindSubmission, Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var decoded generateResponse
	if err := c.doJSON(httpReq, "submit", &decoded); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("suno: submit: %w", ctxErr)
		}
		return "", &Error{Kind: KindSubmission, Reason: err.Error(), Err: err}
	}
	if decoded.Code != http.StatusOK {
		return "", &Error{Kind: KindSubmission, Reason: apiMessage(decoded.Msg)}
	}
	if decoded.Data == nil || strings.TrimSpace(decoded.Data.TaskID) == "" {
		return "", &Error{Kind: KindSubmission, Reason: "response has no task id"}
	}
	return decoded.Data.TaskID, nil
}

// Wait polls the task every poll interval until it reaches a terminal status
// or the wait budget is spent. Transport errors are retried within the
// budget; an application error code aborts immediately.
func (c *Client) Wait(ctx context.Context, taskID string) (*Result, error) {
	return c.wait(ctx, taskID, nil)
}

func (c *Client) wait(ctx context.Context, taskID string, onStatus StatusFunc) (*Result, error) {
	start := c.now()
	lastStatus := ""
	remaining := func() time.Duration { return c.maxWait - c.now().Sub(start) }

	for left := remaining(); left > 0; left = remaining() {
		rec, err := c.fetchRecord(ctx, taskID, min(pollTimeout, left))
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("suno: wait for task %s: %w", taskID, ctxErr)
			}
			var te *transportError
			if !errors.As(err, &te) {
				return nil, err
			}
			c.logger.Warn().Err(err).Str("task_id", taskID).Msg("suno: polling error, retrying")

		default:
			raw := rec.Status
			if raw == "" {
				raw = "UNKNOWN"
			}
			status := ParseStatus(raw)
			if raw != lastStatus {
				lastStatus = raw
				c.logger.Info().Str("task_id", taskID).Str("status", raw).Msg("suno: status changed")
				if c.onStatus != nil {
					c.onStatus(taskID, raw, status)
				}
				if onStatus != nil {
					onStatus(taskID, raw, status)
				}
			}

			switch status {
			case StatusSucceeded:
				return c.extract(taskID, rec), nil
			case StatusFailed:
				msg := strings.TrimSpace(rec.ErrorMessage)
				if msg == "" {
					msg = "unknown error"
				}
				return nil, &Error{Kind: KindJob, TaskID: taskID, Reason: msg}
			}
		}

		// never sleep past the budget
		left = remaining()
		if left <= 0 {
			break
		}
		if err := c.sleep(ctx, min(c.pollInterval, left)); err != nil {
			return nil, fmt.Errorf("suno: wait for task %s: %w", taskID, err)
		}
	}

	return nil, &Error{
		Kind:   KindTimeout,
		TaskID: taskID,
		Reason: fmt.Sprintf("song generation took longer than %ds", int(c.maxWait/time.Second)),
	}
}

func (c *Client) fetchRecord(ctx context.Context, taskID string, timeout time.Duration) (*recordInfo, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + "/generate/record-info?" + url.Values{"taskId": {taskID}}.Encode()
	httpReq, err := http.NewRequestWithContext(rctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindPoll, TaskID: taskID, Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var decoded recordInfoResponse
	if err := c.doJSON(httpReq, "poll", &decoded); err != nil {
		return nil, err
	}
	if decoded.Code != http.StatusOK {
		return nil, &Error{Kind: KindPoll, TaskID: taskID, Reason: apiMessage(decoded.Msg)}
	}
	if decoded.Data == nil {
		return &recordInfo{}, nil
	}
	return decoded.Data, nil
}

// doJSON sends req and decodes a 2xx JSON body into out. Every failure is a
// *transportError.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{op: op, err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &transportError{op: op, err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		if msg == "" {
			return &transportError{op: op, err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		return &transportError{op: op, err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &transportError{op: op, err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) extract(taskID string, rec *recordInfo) *Result {
	songs := rec.Response.SunoData
	res := &Result{TaskID: taskID, Artifacts: make([]Artifact, len(songs))}
	copy(res.Artifacts, songs)
	if res.Empty() {
		c.logger.Warn().Str("task_id", taskID).Msg("suno: task succeeded without songs")
	} else {
		c.logger.Info().Str("task_id", taskID).Int("songs", len(songs)).Msg("suno: task succeeded")
	}
	return res
}

func apiMessage(msg string) string {
	if m := strings.TrimSpace(msg); m != "" {
		return m
	}
	return "unknown error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
