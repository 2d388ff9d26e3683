package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kvasilopoulos/contact-center/internal/breaker"
	"github.com/kvasilopoulos/contact-center/internal/classifier"
	"github.com/kvasilopoulos/contact-center/internal/config"
	"github.com/kvasilopoulos/contact-center/internal/feedback"
	"github.com/kvasilopoulos/contact-center/internal/pii"
	"github.com/kvasilopoulos/contact-center/internal/policy"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/ratelimit"
	"github.com/kvasilopoulos/contact-center/internal/telemetry"
	"github.com/kvasilopoulos/contact-center/internal/types"
	"github.com/kvasilopoulos/contact-center/internal/workflow"
)

type fakeClassifier struct {
	outcome      classifier.Outcome
	audioOutcome classifier.Outcome
	got          classifier.Input
	gotAudio     classifier.AudioInput
}

func (f *fakeClassifier) Classify(_ context.Context, in classifier.Input) classifier.Outcome {
	f.got = in
	return f.outcome
}

func (f *fakeClassifier) ClassifyAudio(_ context.Context, in classifier.AudioInput) classifier.Outcome {
	f.gotAudio = in
	return f.audioOutcome
}

func (f *fakeClassifier) RequiresHumanReview(confidence float64) bool { return confidence < 0.5 }
func (f *fakeClassifier) Threshold() float64                         { return 0.5 }

type fixedPolicy struct {
	required bool
	got      policy.Input
}

func (p *fixedPolicy) RequiresReview(_ context.Context, in policy.Input) bool {
	p.got = in
	return p.required
}

type configured bool

func (c configured) PrimaryConfigured() bool { return bool(c) }

func okOutcome(category types.Category, confidence float64) classifier.Outcome {
	return classifier.Outcome{Kind: classifier.KindOK, Result: classifier.Result{
		Category:       category,
		Confidence:     confidence,
		Reasoning:      "customer asks about an order",
		ProcessingTime: 1500 * time.Microsecond,
		PromptID:       "classification",
		PromptVersion:  "1.1.0",
		PromptVariant:  "active",
		Model:          "gpt-4.1",
	}}
}

type testEnv struct {
	deps Deps
	cls  *fakeClassifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := prompts.NewRegistry()
	if err := reg.Register(&prompts.Template{
		ID:                 "classification",
		Version:            "1.0.0",
		SystemPrompt:       "Classify.",
		UserPromptTemplate: "{{ message }}",
		Parameters:         []prompts.Parameter{{Name: "message"}},
	}); err != nil {
		t.Fatalf("register prompt: %v", err)
	}

	promReg := prometheus.NewRegistry()
	cls := &fakeClassifier{outcome: okOutcome(types.CategoryServiceAction, 0.92)}
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false

	return &testEnv{
		cls: cls,
		deps: Deps{
			Config:     cfg,
			Classifier: cls,
			Workflows:  workflow.NewDefault(pii.NewRedactor(), nil, logger),
			Feedback:   feedback.NewMemoryStore(100, 0),
			Prompts:    reg,
			Breakers:   breaker.NewGroup(breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}),
			Backends:   configured(true),
			Metrics:    telemetry.NewMetrics(promReg),
			Gatherer:   promReg,
			Logger:     logger,
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	NewRouter(e.deps).ServeHTTP(rec, req)
	return rec
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestClassify_Success(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/classify", map[string]any{
		"message":       "Please cancel order ORD-12345",
		"experiment_id": "exp-1",
	}, "X-Request-ID", "req-42")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.cls.got.Channel != types.ChannelChat || env.cls.got.ExperimentID != "exp-1" {
		t.Errorf("unexpected classifier input: %+v", env.cls.got)
	}

	resp := decode[map[string]any](t, rec)
	if resp["request_id"] != "req-42" || resp["category"] != "service_action" {
		t.Errorf("unexpected response: %v", resp)
	}
	if resp["decision_path"] != "customer asks about an order" {
		t.Errorf("expected reasoning as decision_path, got %v", resp["decision_path"])
	}
	if resp["processing_time_ms"] != 1.5 || resp["prompt_version"] != "1.1.0" || resp["model"] != "gpt-4.1" {
		t.Errorf("unexpected metadata: %v", resp)
	}

	step := resp["next_step"].(map[string]any)
	if step["action"] != "cancel_order" || step["priority"] != "high" || step["external_system"] != "order_management" {
		t.Errorf("unexpected next_step: %v", step)
	}
	if step["requires_human_review"] != false {
		t.Errorf("expected no review at 0.92 confidence")
	}
	data := step["data"].(map[string]any)["cancellation_request"].(map[string]any)
	if data["order_reference"] != "ORD-12345" {
		t.Errorf("expected order reference in data, got %v", data)
	}

	if got := counterValue(t, env.deps.Metrics.WorkflowActionsTotal.WithLabelValues("service_action", "cancel_order")); got != 1 {
		t.Errorf("expected workflow action metric 1, got %v", got)
	}
	if got := counterValue(t, env.deps.Metrics.HTTPRequestsTotal.WithLabelValues("/api/v1/classify", "200")); got != 1 {
		t.Errorf("expected http metric for route pattern, got %v", got)
	}
}

func TestClassify_NullExternalSystem(t *testing.T) {
	env := newTestEnv(t)
	env.cls.outcome = okOutcome(types.CategoryInformational, 0.9)

	rec := env.do(t, http.MethodPost, "/api/v1/classify", map[string]any{"message": "What is your refund policy?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	step := decode[map[string]any](t, rec)["next_step"].(map[string]any)
	if step["action"] != "provide_information" {
		t.Errorf("expected FAQ answer, got %v", step["action"])
	}
	v, ok := step["external_system"]
	if !ok || v != nil {
		t.Errorf("expected external_system null, got %v (present=%v)", v, ok)
	}
}

func TestClassify_HumanReview(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		policy     *fixedPolicy
		want       bool
	}{
		{"confident", 0.9, nil, false},
		{"below threshold", 0.3, nil, true},
		{"policy forces review", 0.9, &fixedPolicy{required: true}, true},
		{"policy allows", 0.9, &fixedPolicy{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cls.outcome = okOutcome(types.CategoryServiceAction, tt.confidence)
			if tt.policy != nil {
				env.deps.Policy = tt.policy
			}

			rec := env.do(t, http.MethodPost, "/api/v1/classify", map[string]any{"message": "track order ORD-5555", "channel": "mail"})
			step := decode[map[string]any](t, rec)["next_step"].(map[string]any)
			if step["requires_human_review"] != tt.want {
				t.Errorf("expected requires_human_review=%v, got %v", tt.want, step["requires_human_review"])
			}
			if tt.policy != nil {
				if tt.policy.got.Channel != "mail" || tt.policy.got.Action != "track_order" || tt.policy.got.Threshold != 0.5 {
					t.Errorf("unexpected policy input: %+v", tt.policy.got)
				}
			}
		})
	}
}

func TestClassify_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"malformed json", "{", http.StatusBadRequest, "invalid_request"},
		{"empty message", map[string]any{"message": ""}, http.StatusUnprocessableEntity, "validation_error"},
		{"bad channel", map[string]any{"message": "hi", "channel": "fax"}, http.StatusUnprocessableEntity, "validation_error"},
		{"too long", map[string]any{"message": strings.Repeat("a", 5001)}, http.StatusUnprocessableEntity, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/v1/classify", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decode[map[string]any](t, rec)["error"]; got != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, got)
			}
		})
	}
}

func TestClassify_OutcomeMapping(t *testing.T) {
	tests := []struct {
		name       string
		outcome    classifier.Outcome
		wantCode   int
		wantErr    string
		retryAfter string
	}{
		{
			"breaker open",
			classifier.Outcome{Kind: classifier.KindUnavailable, RetryAfter: 12500 * time.Millisecond, Err: errors.New("open")},
			http.StatusServiceUnavailable, "service_unavailable", "13",
		},
		{
			"backend failure",
			classifier.Outcome{Kind: classifier.KindFailed, Failure: classifier.FailureClassification, Err: errors.New("timeout")},
			http.StatusServiceUnavailable, "classification_failed", "",
		},
		{
			"prompt defect",
			classifier.Outcome{Kind: classifier.KindFailed, Failure: classifier.FailureValidation, Err: errors.New("missing prompt")},
			http.StatusInternalServerError, "configuration_error", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cls.outcome = tt.outcome
			rec := env.do(t, http.MethodPost, "/api/v1/classify", map[string]any{"message": "hello"})
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decode[map[string]any](t, rec)["error"]; got != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, got)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("expected Retry-After %q, got %q", tt.retryAfter, got)
			}
		})
	}
}

func TestClassify_SoftDefaultIsServed(t *testing.T) {
	env := newTestEnv(t)
	env.cls.outcome = classifier.Outcome{Kind: classifier.KindSoftDefault, Result: classifier.Result{
		Category:   types.CategoryInformational,
		Confidence: 0.3,
		Reasoning:  "Failed to parse classification response",
	}}

	rec := env.do(t, http.MethodPost, "/api/v1/classify", map[string]any{"message": "???"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	step := decode[map[string]any](t, rec)["next_step"].(map[string]any)
	if step["action"] != "escalate_to_agent" || step["requires_human_review"] != true {
		t.Errorf("expected low-confidence escalation, got %v", step)
	}
}

func TestClassifyAudio(t *testing.T) {
	env := newTestEnv(t)
	env.cls.audioOutcome = okOutcome(types.CategorySafetyCompliance, 0.95)
	env.cls.audioOutcome.Result.Reasoning = "caller reports a severe allergic reaction"

	rec := env.do(t, http.MethodPost, "/api/v1/classify/audio", []byte{1, 2, 3, 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.cls.gotAudio.Channel != types.ChannelVoice || len(env.cls.gotAudio.Audio) != 4 {
		t.Errorf("unexpected audio input: %+v", env.cls.gotAudio)
	}
	step := decode[map[string]any](t, rec)["next_step"].(map[string]any)
	if step["action"] != "urgent_escalation" {
		t.Errorf("expected reasoning to drive severity, got %v", step["action"])
	}
}

func TestClassifyAudio_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     []byte
		outcome  classifier.Outcome
		limit    int64
		wantCode int
	}{
		{"empty body", "/api/v1/classify/audio", nil, classifier.Outcome{}, 0, http.StatusUnprocessableEntity},
		{"bad channel", "/api/v1/classify/audio?channel=fax", []byte{1}, classifier.Outcome{}, 0, http.StatusUnprocessableEntity},
		{"too large", "/api/v1/classify/audio", make([]byte, 16), classifier.Outcome{}, 8, http.StatusRequestEntityTooLarge},
		{
			"compressed", "/api/v1/classify/audio", []byte("OggS...."),
			classifier.Outcome{Kind: classifier.KindFailed, Failure: classifier.FailureClassification, Err: fmt.Errorf("%w: ogg", classifier.ErrAudioUnsupported)},
			0, http.StatusUnsupportedMediaType,
		},
		{
			"truncated wav", "/api/v1/classify/audio", []byte("RIFF\x24\x00\x00\x00WAVEfmt "),
			classifier.Outcome{Kind: classifier.KindFailed, Failure: classifier.FailureClassification, Err: fmt.Errorf("%w: truncated fmt chunk", classifier.ErrAudioInvalid)},
			0, http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cls.audioOutcome = tt.outcome
			if tt.limit > 0 {
				env.deps.Config.Server.MaxAudioBytes = tt.limit
			}
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFeedback_RecordAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/classify/req-7/feedback", nil)
	if rec.Code != http.StatusNotFound || decode[map[string]any](t, rec)["error"] != "feedback_not_found" {
		t.Fatalf("expected feedback_not_found, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/classify/req-7/feedback", map[string]any{
		"correct":           false,
		"expected_category": "safety_compliance",
		"comment":           "mentions a reaction",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[types.FeedbackResponse](t, rec)
	if created.RequestID != "req-7" || created.FeedbackID == "" || !created.Recorded {
		t.Errorf("unexpected feedback response: %+v", created)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/classify/req-7/feedback", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[feedback.Feedback](t, rec)
	if got.ID != created.FeedbackID || got.Correct || got.ExpectedCategory != "safety_compliance" {
		t.Errorf("unexpected stored feedback: %+v", got)
	}

	if v := counterValue(t, env.deps.Metrics.FeedbackRecordedTotal.WithLabelValues("false")); v != 1 {
		t.Errorf("expected feedback metric 1, got %v", v)
	}
}

func TestFeedback_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing correct", map[string]any{}},
		{"bad category", map[string]any{"correct": true, "expected_category": "billing"}},
		{"long comment", map[string]any{"correct": true, "comment": strings.Repeat("x", 1001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/v1/classify/req-1/feedback", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("expected 422, got %d", rec.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		resp := decode[types.HealthResponse](t, rec)
		if resp.Status != "healthy" || resp.Version != "0.1.0" || resp.Environment != "development" || !resp.Checks["api"] {
			t.Errorf("%s: unexpected response %+v", path, resp)
		}
	}
}

func TestReady(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/ready", nil)
	resp := decode[types.HealthResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %d %+v", rec.Code, resp)
	}

	env.deps.Backends = configured(false)
	b := env.deps.Breakers.Get("openai")
	b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	rec = env.do(t, http.MethodGet, "/api/v1/ready", nil)
	resp = decode[types.HealthResponse](t, rec)
	if rec.Code != http.StatusOK || resp.Status != "degraded" {
		t.Fatalf("expected degraded with 200, got %d %+v", rec.Code, resp)
	}
	if resp.Checks["backend_configured"] || resp.Checks["circuit_closed"] || !resp.Checks["prompts_loaded"] || !resp.Checks["feedback_store"] {
		t.Errorf("unexpected checks: %v", resp.Checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `contact_center_http_requests_total{route="/health",status="200"} 1`) {
		t.Errorf("expected http request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Config.RateLimit.Enabled = true
	env.deps.Config.RateLimit.RequestsPerMinute = 60
	env.deps.Config.RateLimit.BurstSize = 1
	env.deps.Limiter = ratelimit.NewLocalStore(1, 1, 10, time.Minute)
	router := NewRouter(env.deps)

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"hi"}`))
		req.RemoteAddr = "203.0.113.9:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("/api/v1/classify"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send("/api/v1/classify"); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
}

func TestAdmin(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/admin/prompts", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected admin routes disabled without token, got %d", rec.Code)
	}

	env.deps.Config.Server.AdminToken = "s3cret"
	auth := []string{"Authorization", "Bearer s3cret"}

	if rec := env.do(t, http.MethodGet, "/api/v1/admin/prompts", nil, "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/prompts", nil, auth...)
	stats := decode[prompts.Stats](t, rec)
	if stats.TotalTemplates != 1 || stats.ActiveVersions["classification"] != "1.0.0" {
		t.Errorf("unexpected prompt stats: %+v", stats)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/admin/prompts/classification/active", map[string]string{"version": "9.9.9"}, auth...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown version, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/api/v1/admin/prompts/classification/active", map[string]string{"version": "1.0.0"}, auth...)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for known version, got %d", rec.Code)
	}

	b := env.deps.Breakers.Get("openai")
	b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	rec = env.do(t, http.MethodGet, "/api/v1/admin/breakers", nil, auth...)
	list := decode[[]breaker.Stats](t, rec)
	if len(list) != 1 || list[0].State != "open" {
		t.Errorf("expected one open breaker, got %+v", list)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/breakers/openai/reset", nil, auth...)
	if rec.Code != http.StatusOK || decode[breaker.Stats](t, rec).State != "closed" {
		t.Errorf("expected breaker reset to closed, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/admin/breakers/nope/reset", nil, auth...); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown breaker, got %d", rec.Code)
	}
}
