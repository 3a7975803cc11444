// Package e2e boots the three services in-process and drives them through
// the public Gateway surface: real HTTP hops between Gateway, Sentinel and
// Guardian, a real Redis-backed counter store, and a scripted model client
// in place of the provider.
package e2e

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/clestiq/clestiq/pkg/config"
	"github.com/clestiq/clestiq/pkg/credentials"
	"github.com/clestiq/clestiq/pkg/gateway"
	"github.com/clestiq/clestiq/pkg/guardian"
	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/provider"
	"github.com/clestiq/clestiq/pkg/sentinel"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/usage"
)

// Credentials provisioned for every test app.
const (
	e2eKey     = "sk-e2e-0001"
	e2eSalt    = "e2e-pepper"
	e2eKeyID   = "key-e2e-1"
	e2eAppName = "acceptance-app"
)

// staticStore resolves the single provisioned key.
type staticStore struct {
	cred *credentials.Credential
}

func (s *staticStore) Lookup(ctx context.Context, keyHash string) (*credentials.Credential, error) {
	if keyHash == credentials.HashKey(e2eKey, e2eSalt) {
		return s.cred, nil
	}
	return nil, credentials.ErrNotFound
}

// memDurable captures durable usage writes in memory.
type memDurable struct {
	mu      sync.Mutex
	records []usage.Record
}

func (d *memDurable) RecordUsage(ctx context.Context, keyID, model string, inputTokens, outputTokens int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, usage.Record{KeyID: keyID, Model: model, InputTokens: inputTokens, OutputTokens: outputTokens})
	return nil
}

func (d *memDurable) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// TestApp is one complete in-process deployment: Guardian behind Sentinel
// behind Gateway, each hop over real HTTP.
type TestApp struct {
	LLM     *ScriptedModelClient
	Redis   *miniredis.Miniredis
	Durable *memDurable

	GatewayURL string

	guardianSrv *httptest.Server
	sentinelSrv *httptest.Server
	gatewaySrv  *httptest.Server

	t *testing.T
}

// NewTestApp wires and starts the full stack. Everything is torn down via
// t.Cleanup in reverse start order.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()

	llm := NewScriptedModelClient()
	policies := config.DefaultPolicies()

	// Guardian: judge backed by the scripted client.
	judge := guardian.NewJudge(llm, 5*time.Second)
	guardianSvc := guardian.NewService(judge, models.ModerationModerate, policies.CitationBlocklist, telemetry.NopSink{})
	guardianSrv := httptest.NewServer(guardian.NewServer(guardianSvc).Router())
	t.Cleanup(guardianSrv.Close)

	// Sentinel: scripted provider pool, real Guardian client.
	pool := provider.NewPool(func(model string, maxOutputTokens int) (provider.ModelClient, error) {
		return llm, nil
	}, 8)
	guardianClient := guardian.NewClient(guardianSrv.URL, 10*time.Second)
	sentinelSvc := sentinel.NewService(pool, guardianClient, telemetry.NopSink{}, provider.DefaultModel)
	sentinelSrv := httptest.NewServer(sentinel.NewServer(sentinelSvc).Router())
	t.Cleanup(sentinelSrv.Close)

	// Gateway: real Sentinel client, Redis counters, in-memory durable store.
	mr := miniredis.RunT(t)
	counters, err := usage.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = counters.Close() })

	durable := &memDurable{}
	recorder := usage.NewRecorder(counters, durable)
	recorder.Start()
	t.Cleanup(recorder.Stop)

	sentinelClient := sentinel.NewClient(sentinelSrv.URL, 30*time.Second)
	handler := gateway.NewHandler(sentinelClient, 30*time.Second, recorder, telemetry.NewMetrics(), policies)
	store := &staticStore{cred: &credentials.Credential{
		KeyID:     e2eKeyID,
		KeyPrefix: credentials.Prefix(e2eKey),
		Active:    true,
		AppID:     "app-e2e-1",
		AppName:   e2eAppName,
	}}
	gatewaySrv := httptest.NewServer(gateway.NewServer(handler, store, e2eSalt, nil).Router())
	t.Cleanup(gatewaySrv.Close)

	return &TestApp{
		LLM:         llm,
		Redis:       mr,
		Durable:     durable,
		GatewayURL:  gatewaySrv.URL,
		guardianSrv: guardianSrv,
		sentinelSrv: sentinelSrv,
		gatewaySrv:  gatewaySrv,
		t:           t,
	}
}

// StopSentinel takes the Sentinel service down mid-test.
func (app *TestApp) StopSentinel() {
	app.sentinelSrv.Close()
}

// UsageField reads one counter field from the provisioned key's usage hash,
// or "" when the hash or field does not exist yet.
func (app *TestApp) UsageField(field string) string {
	val := app.Redis.HGet("usage:"+e2eKeyID, field)
	return val
}
