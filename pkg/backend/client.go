package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-civic-dashboard/components/portal"
)

const (
	// DefaultTimeout bounds ordinary dashboard requests.
	DefaultTimeout = 10 * time.Second
	// DefaultEngineTimeout bounds OCR, face match and vehicle detection calls.
	DefaultEngineTimeout = 120 * time.Second

	apiPrefix = "/api"
)

// HTTPConfig configures the backend HTTP client.
type HTTPConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	EngineTimeout time.Duration
	HTTPClient    *http.Client
	Validator     *SchemaValidator
	Observer      RequestObserver
}

// RequestObserver is told about every completed backend round trip. Status
// is zero when no response was received.
type RequestObserver interface {
	ObserveRequest(path string, status int, elapsed time.Duration)
}

// HTTPClient talks to the portal REST API. It implements portal.Backend.
type HTTPClient struct {
	baseURL       string
	apiKey        string
	timeout       time.Duration
	engineTimeout time.Duration
	client        *http.Client
	validator     *SchemaValidator
	observer      RequestObserver
}

var _ portal.Backend = (*HTTPClient)(nil)

// NewHTTPClient builds a client. BaseURL is the backend origin; the /api
// prefix is appended unless already present.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if !strings.HasSuffix(base, apiPrefix) {
		base += apiPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	engineTimeout := cfg.EngineTimeout
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		timeout:       timeout,
		engineTimeout: engineTimeout,
		client:        httpClient,
		validator:     cfg.Validator,
		observer:      cfg.Observer,
	}, nil
}

// BaseURL returns the resolved API root.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// GetPayload implements portal.EndpointClient. Array responses are wrapped
// as {"items": [...]}.
func (c *HTTPClient) GetPayload(ctx context.Context, path string, query url.Values) (portal.KPIPayload, error) {
	var raw any
	if err := c.get(ctx, path, query, &raw); err != nil {
		return nil, err
	}
	if err := c.validate(path, raw); err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case map[string]any:
		return portal.KPIPayload(v), nil
	case []any:
		return portal.KPIPayload{"items": v}, nil
	case nil:
		return portal.KPIPayload{}, nil
	default:
		return portal.KPIPayload{"value": v}, nil
	}
}

// States implements portal.GeoSource.
func (c *HTTPClient) States(ctx context.Context) ([]string, error) {
	var resp struct {
		States []string `json:"states"`
	}
	if err := c.getValidated(ctx, PathStates, nil, &resp); err != nil {
		return nil, err
	}
	return resp.States, nil
}

// Districts implements portal.GeoSource.
func (c *HTTPClient) Districts(ctx context.Context, state string) ([]string, error) {
	var resp struct {
		Districts []string `json:"districts"`
	}
	query := url.Values{"state_cd": {state}}
	if err := c.getValidated(ctx, PathDistricts, query, &resp); err != nil {
		return nil, err
	}
	return resp.Districts, nil
}

// Cities implements portal.GeoSource.
func (c *HTTPClient) Cities(ctx context.Context, state, district string) ([]string, error) {
	var resp struct {
		Cities []string `json:"cities"`
	}
	query := url.Values{"state_cd": {state}, "c_district": {district}}
	if err := c.getValidated(ctx, PathCities, query, &resp); err != nil {
		return nil, err
	}
	return resp.Cities, nil
}

// FetchInsights implements portal.InsightSource.
func (c *HTTPClient) FetchInsights(ctx context.Context, query portal.InsightQuery) (portal.InsightsPayload, error) {
	values := url.Values{}
	if query.State != "" {
		values.Set("state", query.State)
	}
	if query.Month != "" {
		values.Set("month", query.Month)
	}
	if query.Section != "" {
		values.Set("section", query.Section)
	}
	payload, err := c.GetPayload(ctx, PathInsights, values)
	if err != nil {
		return portal.InsightsPayload{}, err
	}
	return portal.DecodeInsights(payload), nil
}

func (c *HTTPClient) getValidated(ctx context.Context, path string, query url.Values, target any) error {
	if c.validator == nil {
		return c.get(ctx, path, query, target)
	}
	var raw any
	if err := c.get(ctx, path, query, &raw); err != nil {
		return err
	}
	if err := c.validate(path, raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("backend: re-encode %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) validate(path string, raw any) error {
	if c.validator == nil {
		return nil
	}
	return c.validator.Validate(path, raw)
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	endpoint := c.endpoint(path, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	return c.do(req, target, false)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: encode payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target, false)
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	endpoint := c.baseURL + path
	if encoded := portal.EncodeQuery(query); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

// do executes req and decodes the JSON body into target. Failures are
// returned as *portal.FetchError; engine timeouts carry ErrSlowOperation.
func (c *HTTPClient) do(req *http.Request, target any, engine bool) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if c.observer != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.observer.ObserveRequest(req.URL.Path, status, time.Since(start))
	}
	if err != nil {
		if isTimeout(req.Context(), err) {
			if engine {
				return &portal.FetchError{
					Message: portal.SlowOperationMessage,
					URL:     req.URL.String(),
					Timeout: true,
					Err:     portal.ErrSlowOperation,
				}
			}
			return &portal.FetchError{
				Message: "request timed out",
				URL:     req.URL.String(),
				Timeout: true,
				Err:     err,
			}
		}
		return &portal.FetchError{
			Message: err.Error(),
			URL:     req.URL.String(),
			Err:     fmt.Errorf("backend: http request: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 64<<10))
		return &portal.FetchError{
			Status:  resp.StatusCode,
			Message: errorDetail(buf.Bytes(), resp.Status),
			URL:     req.URL.String(),
			Err:     fmt.Errorf("backend: remote error %d", resp.StatusCode),
		}
	}
	if target == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &portal.FetchError{
			Status:  resp.StatusCode,
			Message: "invalid response body",
			URL:     req.URL.String(),
			Err:     fmt.Errorf("backend: decode response: %w", err),
		}
	}
	return nil
}

// errorDetail extracts the "detail" field the backend puts on error
// responses, falling back to the raw body and then the status text.
func errorDetail(body []byte, status string) string {
	var envelope struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch d := envelope.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if encoded, err := json.Marshal(d); err == nil {
				return string(encoded)
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
