package gateway

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/torbobase/core/internal/agentregistry"
	"github.com/torbobase/core/internal/delegation"
	"github.com/torbobase/core/internal/eventbus"
	"github.com/torbobase/core/internal/iam"
	"go.uber.org/zap/zaptest"
)

// newTestServer wires a full router against real, temp-dir-backed IAAP
// core components, the same way the delegation and iam packages test
// against real SQLite files rather than mocks.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	bus := eventbus.New(64, filepath.Join(dir, "audit.db"), logger)
	t.Cleanup(func() { bus.Close() })

	registry := agentregistry.New(dir, logger)
	if err := registry.Bootstrap(); err != nil {
		t.Fatalf("registry.Bootstrap: %v", err)
	}

	iamEngine, err := iam.Open(filepath.Join(dir, "iam.db"), 0, logger)
	if err != nil {
		t.Fatalf("iam.Open: %v", err)
	}
	t.Cleanup(func() { iamEngine.Close() })

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys := delegation.NewLocalKeyService("node-under-test", priv, pub)
	sink := delegation.NewInMemoryTaskSink()
	dirEngine := delegation.NewStaticPeerDirectory(nil)
	delegationEngine := delegation.New(delegation.Config{
		DataDir:  dir,
		SelfHost: "localhost",
		SelfPort: 0,
	}, keys, dirEngine, sink, bus, logger)
	delegationEngine.SetLocalCapabilities("node-under-test", []string{"s1"}, nil)
	if err := delegationEngine.Load(); err != nil {
		t.Fatalf("delegation.Load: %v", err)
	}

	tokens := NewAgentTokenIssuer([]byte("test-secret"), "torbobase-test", 0)

	router := NewRouter(Deps{
		Bus:          bus,
		Registry:     registry,
		IAM:          iamEngine,
		Delegation:   delegationEngine,
		Tokens:       tokens,
		Logger:       logger,
		CORSOrigins:  []string{"http://localhost:3000"},
		RateLimitRPS: 1000,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func doJSONWithToken(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAgentCRUDRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	create := map[string]any{
		"id":   "agent-1",
		"name": "Echo",
		"role": "assistant",
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents", create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decode[agentregistry.Agent](t, resp)
	if created.ID != "agent-1" {
		t.Fatalf("created.ID = %q, want agent-1", created.ID)
	}

	resp, err := http.Get(srv.URL + "/api/v1/agents/agent-1")
	if err != nil {
		t.Fatalf("GET agent: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	fetched := decode[agentregistry.Agent](t, resp)
	if fetched.Name != "Echo" {
		t.Fatalf("fetched.Name = %q, want Echo", fetched.Name)
	}

	update := map[string]any{
		"id":   "agent-1",
		"name": "Echo Prime",
		"role": "assistant",
	}
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/v1/agents/agent-1", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	updated := decode[agentregistry.Agent](t, resp)
	if updated.Name != "Echo Prime" {
		t.Fatalf("updated.Name = %q, want Echo Prime", updated.Name)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/agents/agent-1", nil)
	if err != nil {
		t.Fatalf("new delete request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/v1/agents/agent-1")
	if err != nil {
		t.Fatalf("GET deleted agent: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIAMRegisterGrantCheckRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/register", map[string]any{
		"agent_id": "agent-2",
		"owner":    "tester",
		"purpose":  "integration test",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// /iam/check requires a bearer token binding the caller to the agent
	// identity it is checking, so mint one for agent-2 first.
	tokenResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/token", map[string]any{
		"agent_id": "agent-2",
	})
	if tokenResp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d, want 200", tokenResp.StatusCode)
	}
	token := decode[map[string]any](t, tokenResp)["token"].(string)
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	checkResp := doJSONWithToken(t, http.MethodPost, srv.URL+"/api/v1/iam/check", map[string]any{
		"agent_id": "agent-2",
		"resource": "notes/*",
		"action":   "read",
	}, token)
	if checkResp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d, want 200", checkResp.StatusCode)
	}
	before := decode[map[string]any](t, checkResp)
	if before["allowed"] != false {
		t.Fatalf("expected check to deny before grant, got %v", before["allowed"])
	}

	// No bearer token at all: rejected before reaching the IAM engine.
	unauthResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/check", map[string]any{
		"agent_id": "agent-2",
		"resource": "notes/*",
		"action":   "read",
	})
	if unauthResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("check without bearer token status = %d, want 401", unauthResp.StatusCode)
	}
	unauthResp.Body.Close()

	// A token for a different agent may not check agent-2's access.
	registerOtherResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/register", map[string]any{
		"agent_id": "agent-3",
	})
	registerOtherResp.Body.Close()
	otherTokenResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/token", map[string]any{
		"agent_id": "agent-3",
	})
	otherToken := decode[map[string]any](t, otherTokenResp)["token"].(string)
	mismatchCheckResp := doJSONWithToken(t, http.MethodPost, srv.URL+"/api/v1/iam/check", map[string]any{
		"agent_id": "agent-2",
		"resource": "notes/*",
		"action":   "read",
	}, otherToken)
	if mismatchCheckResp.StatusCode != http.StatusForbidden {
		t.Fatalf("check with mismatched token status = %d, want 403", mismatchCheckResp.StatusCode)
	}
	mismatchCheckResp.Body.Close()

	grantResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/iam/grant", map[string]any{
		"agent_id":   "agent-2",
		"resource":   "notes/*",
		"actions":    []string{"read"},
		"granted_by": "tester",
	})
	if grantResp.StatusCode != http.StatusOK {
		t.Fatalf("grant status = %d, want 200", grantResp.StatusCode)
	}
	grantResp.Body.Close()

	checkResp = doJSONWithToken(t, http.MethodPost, srv.URL+"/api/v1/iam/check", map[string]any{
		"agent_id": "agent-2",
		"resource": "notes/*",
		"action":   "read",
	}, token)
	after := decode[map[string]any](t, checkResp)
	if after["allowed"] != true {
		t.Fatalf("expected check to allow after grant, got %v", after["allowed"])
	}

	resp, err := http.Get(srv.URL + "/api/v1/iam/agents/agent-2")
	if err != nil {
		t.Fatalf("GET iam agent: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get iam agent status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDelegationWireEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/delegation/capabilities")
	if err != nil {
		t.Fatalf("GET capabilities: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("capabilities status = %d, want 200", resp.StatusCode)
	}
	caps := decode[map[string]any](t, resp)
	if caps["node_id"] != "node-under-test" {
		t.Fatalf("capabilities node_id = %v, want node-under-test", caps["node_id"])
	}

	resp, err = http.Get(srv.URL + "/community/identity")
	if err != nil {
		t.Fatalf("GET community identity: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("identity status = %d, want 200", resp.StatusCode)
	}
	identity := decode[map[string]any](t, resp)
	if identity["node_id"] != "node-under-test" {
		t.Fatalf("identity node_id = %v, want node-under-test", identity["node_id"])
	}
	pub, _ := identity["public_key"].(string)
	if pub == "" {
		t.Fatalf("identity public_key = %q, want non-empty base64 key", pub)
	}
}

func TestEventsRecentEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/events/recent")
	if err != nil {
		t.Fatalf("GET events/recent: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events/recent status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
