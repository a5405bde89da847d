package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"agenticdebugger/internal/config"
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/valyala/fasthttp"
)

// bridgeClient talks to a running bridge found through the discovery descriptor
type bridgeClient struct {
	info    models.DiscoveryInfo
	key     string
	timeout time.Duration
	http    *fasthttp.Client
}

func newBridgeClient(cfg *config.Config) (*bridgeClient, error) {
	info, err := services.ReadDiscovery(cfg.DiscoveryFile)
	if err != nil {
		return nil, fmt.Errorf("no running bridge found (%s): %w", cfg.DiscoveryFile, err)
	}
	if info.BaseURL == "" {
		info.BaseURL = cfg.BaseURL(info.Port)
	}
	if info.KeyHeader == "" {
		info.KeyHeader = cfg.KeyHeader
	}

	key := info.DefaultAPIKey
	// an explicit key wins over whatever the descriptor advertises
	if cfg.APIKey != "" && cfg.APIKey != config.DefaultAPIKey {
		key = cfg.APIKey
	}

	timeout := cfg.ProxyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &bridgeClient{
		info:    info,
		key:     key,
		timeout: timeout,
		http:    &fasthttp.Client{Name: "agentic-bridge-cli/" + AppVersion},
	}, nil
}

// get fetches path and decodes the JSON body into out
func (c *bridgeClient) get(path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.info.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(c.info.KeyHeader, c.key)

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}

	body := resp.Body()
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("GET %s: %d %s", path, code, failure.Error)
		}
		return fmt.Errorf("GET %s: status %d", path, code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// streamURL is the WebSocket address, with the key in the query for clients
// that cannot set headers on the upgrade
func (c *bridgeClient) streamURL() (string, error) {
	u, err := url.Parse(c.info.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("apiKey", c.key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
