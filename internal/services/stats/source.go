package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type SourceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPSource pulls profiles from the practice platform's REST API.
type HTTPSource struct {
	base   string
	client *http.Client
}

func NewHTTPSource(cfg SourceConfig) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("stats: platform base URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{base: base, client: &http.Client{Timeout: timeout}}, nil
}

func (h *HTTPSource) Profile(ctx context.Context, handle string) (Profile, error) {
	if strings.TrimSpace(handle) == "" {
		return Profile{}, fmt.Errorf("empty handle")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+"/users/"+url.PathEscape(handle), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("platform returned %s", resp.Status)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}
