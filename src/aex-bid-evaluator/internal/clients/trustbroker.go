// Package clients holds the risk engine's one outbound dependency: the
// trust broker's DID registry, consulted for merchants outside the
// intent's allow-list.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type TrustBrokerClient struct {
	baseURL string
	http    *http.Client
}

func NewTrustBrokerClient(baseURL string) *TrustBrokerClient {
	return &TrustBrokerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// IsActive reports whether did is registered with the trust broker and
// still has an active verification method. With no broker configured it
// fails closed and returns false — the signal then reads "unknown
// merchant", which is the conservative answer.
func (c *TrustBrokerClient) IsActive(ctx context.Context, did string) (bool, error) {
	if c.baseURL == "" {
		return false, nil
	}
	u, err := url.Parse(c.baseURL + "/agents/" + url.PathEscape(did))
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("trust-broker returned %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Status == "ACTIVE", nil
}
