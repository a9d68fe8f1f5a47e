package delegation

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// peerClient is a lightweight HTTP client for the delegation wire
// protocol, mirroring the federation package's RegistryClient: a thin
// wrapper over *http.Client with bounded response bodies and a fixed
// request timeout.
type peerClient struct {
	http *http.Client
}

func newPeerClient(timeout time.Duration) *peerClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &peerClient{http: &http.Client{Timeout: timeout}}
}

func peerURL(host string, port int, path string) string {
	return fmt.Sprintf("http://%s:%d%s", host, port, path)
}

func (c *peerClient) fetchCapabilities(ctx context.Context, host string, port int) (NodeCapabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(host, port, "/delegation/capabilities"), nil)
	if err != nil {
		return NodeCapabilities{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return NodeCapabilities{}, retryable(fmt.Errorf("fetch capabilities from %s:%d: %w", host, port, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NodeCapabilities{}, retryable(fmt.Errorf("capabilities request to %s:%d returned %d", host, port, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NodeCapabilities{}, err
	}
	var caps NodeCapabilities
	if err := json.Unmarshal(body, &caps); err != nil {
		return NodeCapabilities{}, fmt.Errorf("decode capabilities: %w", err)
	}
	return caps, nil
}

func (c *peerClient) submitTask(ctx context.Context, host string, port int, task DelegatedTask) (SubmitResponse, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("encode delegated task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(host, port, "/delegation/submit"), bytes.NewReader(payload))
	if err != nil {
		return SubmitResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SubmitResponse{}, retryable(fmt.Errorf("submit task to %s:%d: %w", host, port, err))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SubmitResponse{}, retryable(fmt.Errorf("%w: %s", ErrPeerRejected, string(body)))
	}
	if readErr != nil {
		return SubmitResponse{}, readErr
	}

	var out SubmitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return SubmitResponse{}, fmt.Errorf("decode submit response: %w", err)
	}
	return out, nil
}

func (c *peerClient) deliverResult(ctx context.Context, host string, port int, result DelegatedTaskResult) (ResultResponse, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return ResultResponse{}, fmt.Errorf("encode delegation result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(host, port, "/delegation/result"), bytes.NewReader(payload))
	if err != nil {
		return ResultResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ResultResponse{}, retryable(fmt.Errorf("deliver result to %s:%d: %w", host, port, err))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ResultResponse{}, retryable(fmt.Errorf("result delivery to %s:%d returned %d", host, port, resp.StatusCode))
	}
	if readErr != nil {
		return ResultResponse{}, readErr
	}

	var out ResultResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ResultResponse{}, fmt.Errorf("decode result response: %w", err)
	}
	return out, nil
}

// fetchPeerPublicKey calls GET /community/identity on the peer and
// returns its decoded Ed25519 public key.
func (c *peerClient) fetchPeerPublicKey(ctx context.Context, host string, port int) (ed25519.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL(host, port, "/community/identity"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch peer identity from %s:%d: %w", host, port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer identity request to %s:%d returned %d", host, port, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var out struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode peer identity: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode peer public key: %w", err)
	}
	return ed25519.PublicKey(key), nil
}
