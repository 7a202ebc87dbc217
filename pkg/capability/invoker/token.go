package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// tokenTTL bounds how long a fetched tenant token is reused before a
// fresh one is requested.
const tokenTTL = 5 * time.Minute

// TenantTokenSource fetches bearer tokens from the platform's
// multitenancy token endpoint and caches them briefly. Safe for
// concurrent use.
type TenantTokenSource struct {
	base     string
	tenantID string
	apiKey   string
	client   *http.Client

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// NewTenantTokenSource creates a token source for the given tenant.
// The client may be nil, in which case a default client with the
// invoker's timeout is used.
func NewTenantTokenSource(baseURL, tenantID, apiKey string, client *http.Client) *TenantTokenSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &TenantTokenSource{
		base:     baseURL,
		tenantID: tenantID,
		apiKey:   apiKey,
		client:   client,
	}
}

// Token returns a cached tenant token, fetching a fresh one when the
// cache is empty or stale.
func (t *TenantTokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Since(t.fetchedAt) < tokenTTL {
		return t.token, nil
	}

	body, err := json.Marshal(map[string]string{"api_key": t.apiKey})
	if err != nil {
		return "", fmt.Errorf("encoding token request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/multitenancy/tenant/%s/token", t.base, url.PathEscape(t.tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching tenant token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	t.token = parsed.Token
	t.fetchedAt = time.Now()
	return t.token, nil
}
