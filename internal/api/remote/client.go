// Package remote implements the three outbound calls of a launch session:
// backing-service validation, install attribution fetch and destination
// resolution.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/launchgate/internal/core/domain"
	"github.com/tjfontaine/launchgate/internal/core/ports"
	"github.com/tjfontaine/launchgate/internal/metrics"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultPlatform   = "iOS"
	defaultUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"
	attributionPathV4 = "/install_data/v4.0/id"
)

// Config holds the endpoints and fixed metadata of the remote service.
type Config struct {
	// ValidationURL is a single-value read of the well-known record.
	ValidationURL string
	// AttributionBaseURL is the attribution API origin.
	AttributionBaseURL string
	AppID              string
	DevKey             string
	// DestinationURL is the full config endpoint, e.g. https://host/config.php.
	DestinationURL string
	UserAgent      string
	Platform       string
	BundleID       string
	ProjectID      string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetryPolicy overrides the destination retry schedule.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client implements ports.RemoteService over HTTP.
type Client struct {
	cfg        Config
	device     ports.DeviceProfile
	httpClient *http.Client
	retry      RetryPolicy
	sleep      sleeper
	logger     *slog.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
}

var _ ports.RemoteService = (*Client)(nil)

// NewClient creates a remote service client.
func NewClient(cfg Config, device ports.DeviceProfile, opts ...ClientOption) *Client {
	if cfg.Platform == "" {
		cfg.Platform = defaultPlatform
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	cfg.AttributionBaseURL = strings.TrimSuffix(cfg.AttributionBaseURL, "/")

	c := &Client{
		cfg:    cfg,
		device: device,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:  DefaultRetryPolicy(),
		sleep:  sleepContext,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/tjfontaine/launchgate/internal/api/remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate reads the well-known record. The service is valid iff the record
// is a non-empty string that parses as an absolute URL.
func (c *Client) Validate(ctx context.Context) (valid bool, err error) {
	ctx, span := c.tracer.Start(ctx, "remote.validate")
	defer func() { c.finish(span, "validate", err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ValidationURL, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return false, err
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return false, fmt.Errorf("%w: validation record: %v", ErrDecode, err)
	}

	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	return isAbsoluteURL(s), nil
}

// FetchAttribution fetches install attribution data for deviceID. Every
// value of the returned object is coerced to a string.
func (c *Client) FetchAttribution(ctx context.Context, deviceID string) (data map[string]string, err error) {
	ctx, span := c.tracer.Start(ctx, "remote.fetch_attribution")
	defer func() { c.finish(span, "fetch_attribution", err) }()

	u, err := url.Parse(c.cfg.AttributionBaseURL + attributionPathV4 + url.PathEscape(c.cfg.AppID))
	if err != nil || c.cfg.AttributionBaseURL == "" {
		return nil, fmt.Errorf("%w: attribution URL %q", ErrInvalidRequest, c.cfg.AttributionBaseURL)
	}
	q := u.Query()
	q.Set("devkey", c.cfg.DevKey)
	q.Set("device_id", deviceID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: attribution body is not a JSON object", ErrDecode)
	}
	return domain.NormalizePayload(obj), nil
}

// destinationResponse is the success body of the config endpoint.
type destinationResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

// ResolveDestination posts the tracking record plus device metadata and
// returns the destination URL, retrying per the client's RetryPolicy.
func (c *Client) ResolveDestination(ctx context.Context, tracking map[string]string) (dest string, err error) {
	ctx, span := c.tracer.Start(ctx, "remote.resolve_destination")
	defer func() { c.finish(span, "resolve_destination", err) }()

	if _, perr := url.ParseRequestURI(c.cfg.DestinationURL); perr != nil {
		return "", fmt.Errorf("%w: destination URL %q", ErrInvalidRequest, c.cfg.DestinationURL)
	}

	payload, err := json.Marshal(c.destinationBody(ctx, tracking))
	if err != nil {
		return "", fmt.Errorf("%w: marshal body: %v", ErrInvalidRequest, err)
	}

	attempts := c.retry.Attempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("attempt", i+1)))

		dest, err := c.resolveOnce(ctx, payload)
		if err == nil {
			return dest, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if i == attempts-1 {
			break
		}

		wait := c.retry.Backoff(i, IsRateLimited(err))
		c.logger.Warn("destination attempt failed",
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()))

		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func (c *Client) resolveOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DestinationURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	body, err := c.do(req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			c.metrics.DestinationAttempt(strconv.Itoa(se.Code))
		} else {
			c.metrics.DestinationAttempt("error")
		}
		return "", err
	}
	c.metrics.DestinationAttempt("200")

	var out destinationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: destination body: %v", ErrDecode, err)
	}
	if !out.OK || out.URL == "" {
		return "", fmt.Errorf("%w: destination not granted", ErrDecode)
	}
	return out.URL, nil
}

// destinationBody builds the request body: tracking plus fixed metadata.
// Metadata wins over tracking keys with the same name.
func (c *Client) destinationBody(ctx context.Context, tracking map[string]string) map[string]any {
	body := make(map[string]any, len(tracking)+7)
	for k, v := range tracking {
		body[k] = v
	}

	var attributionID, pushToken, locale string
	if c.device != nil {
		attributionID = c.device.AttributionID()
		pushToken = c.device.PushToken(ctx)
		locale = c.device.Locale()
	}

	body["os"] = c.cfg.Platform
	body["af_id"] = attributionID
	body["bundle_id"] = c.cfg.BundleID
	body["firebase_project_id"] = c.cfg.ProjectID
	body["store_id"] = "id" + c.cfg.AppID
	body["push_token"] = pushToken
	body["locale"] = domain.LocaleCode(locale)
	return body
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

func (c *Client) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.RemoteRequest(op, "failure")
	} else {
		c.metrics.RemoteRequest(op, "success")
	}
	span.End()
}

func isAbsoluteURL(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
