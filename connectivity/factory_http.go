package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/tubemaster/horosafe"
)

const maxHTTPResponseBody int64 = 10 << 20

type httpConfig struct {
	TimeoutMs   int64             `json:"timeout_ms"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers"`
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryConfig)

type httpFactoryConfig struct {
	urlOpts []horosafe.URLOption
	client  *http.Client
}

// HTTPAllowLoopback accepts loopback endpoints (a local relay, tests).
func HTTPAllowLoopback() HTTPOption {
	return func(c *httpFactoryConfig) { c.urlOpts = append(c.urlOpts, horosafe.AllowLoopback()) }
}

// HTTPClient overrides the client used for every route.
func HTTPClient(cl *http.Client) HTTPOption {
	return func(c *httpFactoryConfig) { c.client = cl }
}

// HTTPFactory builds handlers that POST the action payload to the route
// endpoint and return the response body. Endpoints are checked with
// horosafe.ValidateURL when the route is built.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory())
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	var fc httpFactoryConfig
	for _, o := range opts {
		o(&fc)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if err := horosafe.ValidateURL(endpoint, fc.urlOpts...); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		var cfg httpConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}
		if cfg.ContentType == "" {
			cfg.ContentType = "application/json"
		}

		client := fc.client
		if client == nil {
			timeout := 30 * time.Second
			if cfg.TimeoutMs > 0 {
				timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
			}
			client = &http.Client{Timeout: timeout}
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", cfg.ContentType)
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("connectivity/http: status %d: %s", resp.StatusCode, body)
			}
			return body, nil
		}
		return handler, client.CloseIdleConnections, nil
	}
}
