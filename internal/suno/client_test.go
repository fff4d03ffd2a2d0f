package suno

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
	onNap  func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if f.onNap != nil {
		f.onNap()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
	f.sleeps = append(f.sleeps, d)
	return nil
}

// Advance moves the clock without sleeping, e.g. to model a slow request.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func (f *fakeClock) Elapsed(since time.Time) time.Duration {
	return f.Now().Sub(since)
}

// fakeService serves the two remote endpoints. pollHandler gets the 1-based
// poll number.
type fakeService struct {
	t *testing.T

	mu          sync.Mutex
	submits     int
	polls       int
	submitBody  JobRequest
	submitAuth  string
	pollAuth    string
	pollTaskIDs []string

	submitHandler func(w http.ResponseWriter)
	pollHandler   func(n int, w http.ResponseWriter)
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/generate":
		s.submits++
		s.submitAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&s.submitBody); err != nil {
			s.t.Errorf("decode submit body: %v", err)
		}
		s.submitHandler(w)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/generate/record-info":
		s.polls++
		s.pollAuth = r.Header.Get("Authorization")
		s.pollTaskIDs = append(s.pollTaskIDs, r.URL.Query().Get("taskId"))
		s.pollHandler(s.polls, w)
	default:
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeService) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *fakeService) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func acceptTask(id string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		writeJSON(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{"taskId": id}})
	}
}

func record(status string, extra map[string]any) map[string]any {
	data := map[string]any{"taskId": "T1", "status": status}
	for k, v := range extra {
		data[k] = v
	}
	return map[string]any{"code": 200, "msg": "success", "data": data}
}

func newTestClient(t *testing.T, svc *fakeService, opts Options) (*Client, *fakeClock) {
	t.Helper()
	svc.t = t
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL + "/api/v1"
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	if opts.MaxWait == 0 {
		opts.MaxWait = 300 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Second
	}
	c := NewClient(opts)
	clock := newFakeClock()
	c.now = clock.Now
	c.sleep = clock.Sleep
	return c, clock
}

func TestGenerate_PendingThenSuccess(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			if n < 3 {
				writeJSON(w, record("PENDING", nil))
				return
			}
			writeJSON(w, record("SUCCESS", map[string]any{
				"response": map[string]any{
					"sunoData": []any{
						map[string]any{"title": "X", "duration": 120.5, "audioUrl": "http://a", "imageUrl": "http://b"},
					},
				},
			}))
		},
	}

	type change struct {
		raw    string
		status JobStatus
	}
	var changes []change
	c, clock := newTestClient(t, svc, Options{
		OnStatus: func(taskID, raw string, status JobStatus) {
			if taskID != "T1" {
				t.Errorf("status callback task id = %q", taskID)
			}
			changes = append(changes, change{raw, status})
		},
	})

	res, err := c.Generate(context.Background(), "some lyrics", "Epic Orchestral")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.TaskID != "T1" {
		t.Fatalf("task id = %q, want T1", res.TaskID)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(res.Artifacts))
	}
	got := res.Artifacts[0]
	if got.Title != "X" || got.DurationSeconds != 120.5 || got.AudioURL != "http://a" || got.ImageURL != "http://b" {
		t.Fatalf("unexpected artifact: %+v", got)
	}
	if res.Empty() || res.Err() != nil {
		t.Fatalf("result should not be empty")
	}

	if svc.submitCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", svc.submitCount())
	}
	if svc.pollCount() != 3 {
		t.Fatalf("expected 3 polls, got %d", svc.pollCount())
	}
	for i, id := range svc.pollTaskIDs {
		if id != "T1" {
			t.Fatalf("poll %d used task id %q", i+1, id)
		}
	}
	if len(clock.sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(clock.sleeps))
	}
	for _, d := range clock.sleeps {
		if d != 10*time.Second {
			t.Fatalf("sleep = %s, want 10s", d)
		}
	}

	// repeated PENDING is reported once
	if len(changes) != 2 {
		t.Fatalf("expected 2 status changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].raw != "PENDING" || changes[0].status != StatusPending {
		t.Fatalf("first change = %+v", changes[0])
	}
	if changes[1].raw != "SUCCESS" || changes[1].status != StatusSucceeded {
		t.Fatalf("second change = %+v", changes[1])
	}
}

func TestGenerate_SubmitsFixedDefaults(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("SUCCESS", nil))
		},
	}
	c, _ := newTestClient(t, svc, Options{APIKey: "secret"})

	if _, err := c.Generate(context.Background(), "la la la", "Motivational Pop"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	body := svc.submitBody
	if body.Prompt != "la la la" || body.Style != "Motivational Pop" {
		t.Fatalf("unexpected prompt/style: %+v", body)
	}
	if !body.CustomMode || body.Instrumental {
		t.Fatalf("expected custom mode with vocals, got %+v", body)
	}
	if body.Model != DefaultModel || body.Title != DefaultTitle || body.CallBackURL != DefaultCallbackURL {
		t.Fatalf("unexpected defaults: %+v", body)
	}
	if svc.submitAuth != "Bearer secret" || svc.pollAuth != "Bearer secret" {
		t.Fatalf("unexpected auth headers: submit=%q poll=%q", svc.submitAuth, svc.pollAuth)
	}
}

func TestGenerate_SubmissionRejected(t *testing.T) {
	svc := &fakeService{
		submitHandler: func(w http.ResponseWriter) {
			writeJSON(w, map[string]any{"code": 500, "msg": "bad key"})
		},
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("SUCCESS", nil))
		},
	}
	c, _ := newTestClient(t, svc, Options{})

	res, err := c.Generate(context.Background(), "lyrics", "Pop")
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Reason != "bad key" {
		t.Fatalf("expected reason %q, got %v", "bad key", err)
	}
	if svc.pollCount() != 0 {
		t.Fatalf("expected no polls, got %d", svc.pollCount())
	}
}

func TestGenerate_SubmissionTransportFailure(t *testing.T) {
	svc := &fakeService{
		submitHandler: func(w http.ResponseWriter) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		},
		pollHandler: func(n int, w http.ResponseWriter) {},
	}
	c, _ := newTestClient(t, svc, Options{})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if svc.submitCount() != 1 || svc.pollCount() != 0 {
		t.Fatalf("submits=%d polls=%d, want 1 and 0", svc.submitCount(), svc.pollCount())
	}
}

func TestGenerate_MissingTaskID(t *testing.T) {
	svc := &fakeService{
		submitHandler: func(w http.ResponseWriter) {
			writeJSON(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{}})
		},
		pollHandler: func(n int, w http.ResponseWriter) {},
	}
	c, _ := newTestClient(t, svc, Options{})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
}

func TestSubmit_MissingAPIKey(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})

	_, err := c.Submit(context.Background(), c.NewRequest("lyrics", "Pop"))
	if !errors.Is(err, ErrSubmissionFailed) || !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing api key submission error, got %v", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("RUNNING", nil))
		},
	}
	c, clock := newTestClient(t, svc, Options{MaxWait: 30 * time.Second, PollInterval: 10 * time.Second})
	start := clock.Now()

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "30s") {
		t.Fatalf("timeout error should name the budget: %v", err)
	}
	if svc.pollCount() != 3 {
		t.Fatalf("expected 3 polls within 30s at 10s interval, got %d", svc.pollCount())
	}
	if elapsed := clock.Elapsed(start); elapsed > 40*time.Second {
		t.Fatalf("elapsed %s exceeds max wait plus one interval", elapsed)
	}
}

func TestGenerate_TimeoutWithSlowPolls(t *testing.T) {
	tests := []struct {
		name      string
		spent     []time.Duration // clock advance during each poll
		wantPolls int
		wantTotal time.Duration
		lastSleep time.Duration
	}{
		{"slow last poll", []time.Duration{9 * time.Second, 0, 9500 * time.Millisecond}, 3, 38500 * time.Millisecond, 10 * time.Second},
		{"sleep cut to budget", []time.Duration{9 * time.Second, 0, 0}, 3, 30 * time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var clock *fakeClock
			svc := &fakeService{
				submitHandler: acceptTask("T1"),
				pollHandler: func(n int, w http.ResponseWriter) {
					if n <= len(tt.spent) {
						clock.Advance(tt.spent[n-1])
					}
					writeJSON(w, record("RUNNING", nil))
				},
			}
			c, clk := newTestClient(t, svc, Options{MaxWait: 30 * time.Second, PollInterval: 10 * time.Second})
			clock = clk
			start := clock.Now()

			_, err := c.Generate(context.Background(), "lyrics", "Pop")
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			elapsed := clock.Elapsed(start)
			if elapsed > 40*time.Second {
				t.Fatalf("elapsed %s exceeds max wait plus one interval", elapsed)
			}
			if elapsed != tt.wantTotal || svc.pollCount() != tt.wantPolls {
				t.Fatalf("elapsed=%s polls=%d, want %s and %d", elapsed, svc.pollCount(), tt.wantTotal, tt.wantPolls)
			}
			if got := clock.sleeps[len(clock.sleeps)-1]; got != tt.lastSleep {
				t.Fatalf("last sleep = %s, want %s", got, tt.lastSleep)
			}
		})
	}
}

func TestGenerate_JobFailed(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("FAILED", map[string]any{"errorMessage": "quota exceeded"}))
		},
	}
	c, _ := newTestClient(t, svc, Options{})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Reason != "quota exceeded" || se.TaskID != "T1" {
		t.Fatalf("unexpected error detail: %+v", se)
	}
	if svc.pollCount() != 1 {
		t.Fatalf("expected polling to stop after failure, got %d polls", svc.pollCount())
	}
}

func TestGenerate_JobFailedWithoutMessage(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("SENSITIVE_WORD_ERROR", nil))
		},
	}
	c, _ := newTestClient(t, svc, Options{})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindJob || se.Reason != "unknown error" {
		t.Fatalf("expected generic job failure, got %v", err)
	}
}

func TestGenerate_EmptyResult(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("SUCCESS", map[string]any{
				"response": map[string]any{"sunoData": []any{}},
			}))
		},
	}
	c, _ := newTestClient(t, svc, Options{})

	res, err := c.Generate(context.Background(), "lyrics", "Pop")
	if err != nil {
		t.Fatalf("empty result must not be a hard error: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if !errors.Is(res.Err(), ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", res.Err())
	}
}

func TestGenerate_MissingOptionalFields(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("SUCCESS", map[string]any{
				"response": map[string]any{
					"sunoData": []any{
						map[string]any{"title": "first"},
						map[string]any{"audioUrl": "http://second"},
					},
				},
			}))
		},
	}
	c, _ := newTestClient(t, svc, Options{})

	res, err := c.Generate(context.Background(), "lyrics", "Pop")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(res.Artifacts))
	}
	if res.Artifacts[0].Title != "first" || res.Artifacts[0].DurationSeconds != 0 || res.Artifacts[0].AudioURL != "" {
		t.Fatalf("unexpected first artifact: %+v", res.Artifacts[0])
	}
	if res.Artifacts[1].AudioURL != "http://second" {
		t.Fatalf("order not preserved: %+v", res.Artifacts)
	}
}

func TestWait_RetriesTransportErrors(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			switch n {
			case 1:
				http.Error(w, "bad gateway", http.StatusBadGateway)
			case 2:
				_, _ = w.Write([]byte("{not json"))
			default:
				writeJSON(w, record("SUCCESS", map[string]any{
					"response": map[string]any{"sunoData": []any{map[string]any{"title": "ok"}}},
				}))
			}
		},
	}
	c, clock := newTestClient(t, svc, Options{})

	res, err := c.Generate(context.Background(), "lyrics", "Pop")
	if err != nil {
		t.Fatalf("transport errors must be retried: %v", err)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("expected one artifact, got %+v", res)
	}
	if svc.pollCount() != 3 || len(clock.sleeps) != 2 {
		t.Fatalf("polls=%d sleeps=%d, want 3 and 2", svc.pollCount(), len(clock.sleeps))
	}
}

func TestWait_TransportErrorsUntilTimeout(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		},
	}
	c, _ := newTestClient(t, svc, Options{MaxWait: 50 * time.Second})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if errors.Is(err, ErrPollFailed) {
		t.Fatalf("transport errors must never raise ErrPollFailed")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if svc.pollCount() != 5 {
		t.Fatalf("expected 5 polls, got %d", svc.pollCount())
	}
}

func TestWait_ApplicationErrorIsFatal(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"code": 401, "msg": "invalid token"})
		},
	}
	c, clock := newTestClient(t, svc, Options{})

	_, err := c.Generate(context.Background(), "lyrics", "Pop")
	if !errors.Is(err, ErrPollFailed) {
		t.Fatalf("expected ErrPollFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("error should carry remote message: %v", err)
	}
	if svc.pollCount() != 1 || len(clock.sleeps) != 0 {
		t.Fatalf("polls=%d sleeps=%d, want 1 and 0", svc.pollCount(), len(clock.sleeps))
	}
}

func TestWait_ContextCanceled(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			writeJSON(w, record("RUNNING", nil))
		},
	}
	c, clock := newTestClient(t, svc, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.onNap = cancel

	_, err := c.Generate(ctx, "lyrics", "Pop")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var se *Error
	if errors.As(err, &se) {
		t.Fatalf("cancellation must not be reported as %v", se.Kind)
	}
	if svc.pollCount() != 1 {
		t.Fatalf("expected 1 poll before cancel, got %d", svc.pollCount())
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want JobStatus
	}{
		{"PENDING", StatusPending},
		{"TEXT_SUCCESS", StatusRunning},
		{"FIRST_SUCCESS", StatusRunning},
		{"RUNNING", StatusRunning},
		{"UNKNOWN", StatusRunning},
		{"SUCCESS", StatusSucceeded},
		{"success", StatusRunning},
		{" SUCCESS", StatusRunning},
		{"create_task_failed", StatusRunning},
		{"CREATE_TASK_FAILED", StatusFailed},
		{"GENERATE_AUDIO_FAILED", StatusFailed},
		{"SENSITIVE_WORD_ERROR", StatusFailed},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.raw); got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
	if !StatusSucceeded.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("succeeded and failed must be terminal")
	}
	if StatusPending.IsTerminal() || StatusRunning.IsTerminal() {
		t.Fatalf("pending and running must not be terminal")
	}
}

func TestGenerateWithStatus_PerCallObserver(t *testing.T) {
	svc := &fakeService{
		submitHandler: acceptTask("T1"),
		pollHandler: func(n int, w http.ResponseWriter) {
			if n == 1 {
				writeJSON(w, record("TEXT_SUCCESS", nil))
				return
			}
			writeJSON(w, record("SUCCESS", nil))
		},
	}
	var global, local []string
	c, _ := newTestClient(t, svc, Options{
		OnStatus: func(taskID, raw string, status JobStatus) { global = append(global, raw) },
	})

	_, err := c.GenerateWithStatus(context.Background(), "lyrics", "Pop", func(taskID, raw string, status JobStatus) {
		local = append(local, raw)
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Join(global, ",") != "TEXT_SUCCESS,SUCCESS" || strings.Join(local, ",") != "TEXT_SUCCESS,SUCCESS" {
		t.Fatalf("global=%v local=%v", global, local)
	}
}
