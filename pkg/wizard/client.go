package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
)

// DefaultStateKey is the key the wizard state document lives under.
const DefaultStateKey = "wizard:state"

// DefaultRequestTimeout bounds each individual store request.
const DefaultRequestTimeout = 10 * time.Second

// Store is the narrow key-value surface the wizard service needs.
// Get returns nil with no error when the key does not exist.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// storeRequest is the wire shape of the vault's storage endpoint: a
// single POST dispatching named operations on a storage backend.
type storeRequest struct {
	StorageType string       `json:"storageType"`
	Operation   string       `json:"operation"`
	Payload     storePayload `json:"payload"`
}

type storePayload struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type storeResponse struct {
	Data  *string `json:"data"`
	Error string  `json:"error,omitempty"`
}

// KVClient talks to the Noona vault's redis-backed storage endpoint.
// Multiple base URLs may be supplied; each request walks them in order
// until one answers, so a vault reachable under both a compose-network
// alias and a host-mapped port keeps working from either side.
type KVClient struct {
	baseURLs []string
	token    string
	client   *http.Client
}

// NewKVClient creates a client for the given candidate base URLs
func NewKVClient(baseURLs []string, token string) *KVClient {
	return &KVClient{
		baseURLs: baseURLs,
		token:    token,
		client:   &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// Get fetches the value stored under key, nil when absent
func (c *KVClient) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, storeRequest{
		StorageType: "redis",
		Operation:   "get",
		Payload:     storePayload{Key: key},
	})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil || *resp.Data == "" {
		return nil, nil
	}
	return []byte(*resp.Data), nil
}

// Set stores value under key
func (c *KVClient) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.do(ctx, storeRequest{
		StorageType: "redis",
		Operation:   "set",
		Payload:     storePayload{Key: key, Value: string(value)},
	})
	return err
}

func (c *KVClient) do(ctx context.Context, req storeRequest) (*storeResponse, error) {
	if len(c.baseURLs) == 0 {
		return nil, errdefs.Store("no store endpoints configured", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errdefs.Store("failed to encode store request", err)
	}

	logger := log.WithComponent("wizard-store")
	var lastErr error
	for _, base := range c.baseURLs {
		resp, err := c.post(ctx, base, body)
		if err != nil {
			logger.Warn().Err(err).Str("endpoint", base).Msg("store endpoint unreachable, trying next")
			lastErr = err
			continue
		}
		if resp.Error != "" {
			return nil, errdefs.Store(fmt.Sprintf("store rejected %s", req.Operation), fmt.Errorf("%s", resp.Error))
		}
		return resp, nil
	}
	return nil, errdefs.Store("all store endpoints failed", lastErr)
}

func (c *KVClient) post(ctx context.Context, base string, body []byte) (*storeResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 256))
		return nil, fmt.Errorf("store returned HTTP %d: %s", httpResp.StatusCode, string(snippet))
	}

	var resp storeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode store response: %w", err)
	}
	return &resp, nil
}
