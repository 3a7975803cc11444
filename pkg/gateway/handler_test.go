package gateway

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clestiq/clestiq/pkg/credentials"
	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/sentinel"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/usage"
)

const (
	testKey  = "sk-test-0001"
	testSalt = "pepper"
)

// fakeStore resolves a single provisioned key.
type fakeStore struct {
	cred *credentials.Credential
	err  error
}

func (s *fakeStore) Lookup(ctx context.Context, keyHash string) (*credentials.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cred != nil && keyHash == credentials.HashKey(testKey, testSalt) {
		return s.cred, nil
	}
	return nil, credentials.ErrNotFound
}

// fakeSentinel scripts the Sentinel verdict and records the forwarded request.
type fakeSentinel struct {
	result *models.SentinelResult
	err    error

	mu   sync.Mutex
	last *models.ChatRequest
}

func (f *fakeSentinel) Chat(ctx context.Context, req *models.ChatRequest) (*models.SentinelResult, error) {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	text := "fine"
	return &models.SentinelResult{
		Response: &text,
		Metrics: models.ResponseMetrics{
			ModelUsed:  "gemini-3-flash-preview",
			TokenUsage: &models.TokenUsage{Input: 10, Output: 5, Total: 15},
		},
	}, nil
}

func (f *fakeSentinel) lastRequest() *models.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// memCounters is an in-memory CounterStore capturing accounting writes.
type memCounters struct {
	mu       sync.Mutex
	usage    map[string]int
	requests map[string]int
	touched  map[string]int
}

func newMemCounters() *memCounters {
	return &memCounters{
		usage:    make(map[string]int),
		requests: make(map[string]int),
		touched:  make(map[string]int),
	}
}

func (m *memCounters) IncrUsage(ctx context.Context, keyID, model string, in, out int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[keyID+"/"+model] += in + out
	return nil
}

func (m *memCounters) IncrRequests(ctx context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[keyID]++
	return nil
}

func (m *memCounters) TouchLastUsed(ctx context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[keyID]++
	return nil
}

func (m *memCounters) requestCount(keyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[keyID]
}

func (m *memCounters) usageTotal(keyID, model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[keyID+"/"+model]
}

type testFixture struct {
	router   http.Handler
	sentinel *fakeSentinel
	counters *memCounters
	recorder *usage.Recorder
}

func setupTestGateway(t *testing.T, sc *fakeSentinel, store credentials.Store) *testFixture {
	t.Helper()
	if store == nil {
		store = &fakeStore{cred: &credentials.Credential{
			KeyID:     "key-1",
			KeyPrefix: "sk-t...",
			Active:    true,
			AppID:     "app-1",
			AppName:   "acme",
		}}
	}
	counters := newMemCounters()
	recorder := usage.NewRecorder(counters, nil)
	recorder.Start()
	t.Cleanup(recorder.Stop)

	handler := NewHandler(sc, time.Second, recorder, telemetry.NewMetrics(), nil)
	router := NewServer(handler, store, testSalt, nil).Router()
	return &testFixture{router: router, sentinel: sc, counters: counters, recorder: recorder}
}

func doChat(t *testing.T, router http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent/1.0")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChat_MissingKeyIs401(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, "", `{"query": "hi"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing API key")
}

func TestChat_UnknownKeyIs401(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, "sk-wrong", `{"query": "hi"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid API key")
}

func TestChat_DisabledKeyIs403(t *testing.T) {
	store := &fakeStore{cred: &credentials.Credential{
		KeyID: "key-1", Active: false, AppID: "app-1", AppName: "acme",
	}}
	fx := setupTestGateway(t, &fakeSentinel{}, store)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "API key disabled")
}

func TestChat_UnboundKeyIs401(t *testing.T) {
	store := &fakeStore{cred: &credentials.Credential{
		KeyID: "key-1", Active: true,
	}}
	fx := setupTestGateway(t, &fakeSentinel{}, store)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_StoreFailureIs500(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, &fakeStore{err: errors.New("pool exhausted")})

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pool exhausted")
}

func TestChat_PassedVerdict(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "What is the capital of France?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "passed", rec.Header().Get(HeaderSecurityDecision))
	assert.Equal(t, "0.000", rec.Header().Get(HeaderSecurityScore))

	var body models.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acme", body.App)
	require.NotNil(t, body.Response)
	assert.Equal(t, "fine", *body.Response)
	assert.Greater(t, body.Metrics.ProcessingTimeMS, 0.0)
	require.NotNil(t, body.Metrics.TokenUsage)
	assert.Equal(t, 15, body.Metrics.TokenUsage.Total)
}

func TestChat_BlockedVerdictIs400WithHeaders(t *testing.T) {
	sc := &fakeSentinel{result: &models.SentinelResult{
		Blocked:     true,
		BlockReason: "Security threats detected: sql_injection",
		Metrics:     models.ResponseMetrics{SecurityScore: 0.9, ThreatsDetected: 1},
	}}
	fx := setupTestGateway(t, sc, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "' OR '1'='1 --"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "blocked: Security threats detected: sql_injection", rec.Header().Get(HeaderSecurityDecision))
	assert.Equal(t, "0.900", rec.Header().Get(HeaderSecurityScore))

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Request blocked", body.Error)
	assert.Contains(t, body.Reason, "sql_injection")
}

func TestChat_SentinelUnavailableIs503(t *testing.T) {
	sc := &fakeSentinel{err: sentinel.ErrUnavailable}
	fx := setupTestGateway(t, sc, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sentinel service unavailable")
}

func TestChat_ProtocolErrorIs500(t *testing.T) {
	sc := &fakeSentinel{err: errors.New("unexpected payload shape")}
	fx := setupTestGateway(t, sc, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChat_InvalidModerationRejected(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi", "moderation": "draconian"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "moderation")
	assert.Nil(t, fx.sentinel.lastRequest())
}

func TestChat_ToneCheckRequiresBrandTone(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi", "settings": {"tone_check": true}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "brand_tone")
}

func TestChat_NormalizationAppliesDefaults(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	forwarded := fx.sentinel.lastRequest()
	require.NotNil(t, forwarded)
	assert.Equal(t, models.ModerationModerate, forwarded.Moderation)
	assert.Equal(t, models.FormatJSON, forwarded.OutputFormat)
	require.NotNil(t, forwarded.Settings)
	assert.True(t, forwarded.Settings.SanitizeInput, "policy defaults fill missing settings")
	assert.Equal(t, "test-agent/1.0", forwarded.UserAgent)
	assert.NotEmpty(t, forwarded.ClientIP)
}

func TestChat_CallerCannotSpoofClientIP(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi", "client_ip": "1.2.3.4", "user_agent": "spoofed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	forwarded := fx.sentinel.lastRequest()
	assert.NotEqual(t, "1.2.3.4", forwarded.ClientIP)
	assert.Equal(t, "test-agent/1.0", forwarded.UserAgent)
}

func TestChat_PassedRequestIsAccounted(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Accounting is asynchronous; wait for the recorder to drain.
	require.Eventually(t, func() bool {
		return fx.counters.requestCount("key-1") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 15, fx.counters.usageTotal("key-1", "gemini-3-flash-preview"))
}

func TestChat_BlockedRequestIsNotAccounted(t *testing.T) {
	sc := &fakeSentinel{result: &models.SentinelResult{
		Blocked:     true,
		BlockReason: "Security threats detected: xss",
		Metrics:     models.ResponseMetrics{SecurityScore: 0.9},
	}}
	fx := setupTestGateway(t, sc, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "<script>alert(1)</script>"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	fx.recorder.Stop()
	assert.Zero(t, fx.counters.requestCount("key-1"))
}

func TestChat_FailedRequestIsNotAccounted(t *testing.T) {
	sc := &fakeSentinel{err: sentinel.ErrUnavailable}
	fx := setupTestGateway(t, sc, nil)

	rec := doChat(t, fx.router, testKey, `{"query": "hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fx.recorder.Stop()
	assert.Zero(t, fx.counters.requestCount("key-1"))
}

func TestHealthEndpoint(t *testing.T) {
	fx := setupTestGateway(t, &fakeSentinel{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"gateway"`)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := telemetry.NewMetrics()
	handler := NewHandler(&fakeSentinel{}, time.Second, nil, metrics, nil)
	store := &fakeStore{cred: &credentials.Credential{
		KeyID: "key-1", Active: true, AppID: "app-1", AppName: "acme",
	}}
	router := NewServer(handler, store, testSalt, metrics).Router()

	rec := doChat(t, router, testKey, `{"query": "hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	router.ServeHTTP(mrec, req)

	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "gateway_requests_total")
	assert.Contains(t, mrec.Body.String(), `status="passed"`)
}
