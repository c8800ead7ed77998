// Package client provides the Sumo Logic API client: an authenticated
// transport, endpoint resolution and the asynchronous dashboard export job
// protocol.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Sumo Logic API operations.
var (
	sumoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_requests_total",
		Help: "Total Sumo Logic API requests by method and status",
	}, []string{"method", "status"})

	sumoRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sumo_request_duration_seconds",
		Help:    "Sumo Logic API request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	sumoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_errors_total",
		Help: "Total Sumo Logic API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of API errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

const (
	// DefaultEndpoint is the probe base used to discover the regional endpoint.
	DefaultEndpoint = "https://api.sumologic.com/api"

	// DefaultAPIVersion is appended to the endpoint for every call.
	DefaultAPIVersion = "v2"

	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 60 * time.Second
)

var validate = validator.New()

// Client is an authenticated session against one Sumo Logic deployment.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Credential used for HTTP basic auth on every call.
	AccessID  string `validate:"required"`
	AccessKey string `validate:"required"`

	// Endpoint is an explicit API base such as "https://api.us2.sumologic.com/api".
	// It must not end with "/".
	Endpoint string `validate:"omitempty,url"`

	// Region is a short deployment code ("us2", "eu", "au") used when
	// Endpoint is empty.
	Region string `validate:"omitempty,alphanum,max=8"`

	// DefaultEndpoint is probed when neither Endpoint nor Region is set.
	DefaultEndpoint string `validate:"required,url"`

	APIVersion string `validate:"required"`

	// CABundle is an optional PEM file replacing the system roots.
	CABundle string `validate:"omitempty,file"`

	Timeout time.Duration `validate:"gte=0"`

	// EndpointCache persists discovered endpoints across runs (optional).
	EndpointCache EndpointCache `validate:"-"`

	// HTTPClient replaces the default transport (for testing).
	HTTPClient *http.Client `validate:"-"`

	// Logger overrides the component logger.
	Logger *zerolog.Logger `validate:"-"`
}

// DefaultConfig returns a configuration for the given credential.
func DefaultConfig(accessID, accessKey string) Config {
	return Config{
		AccessID:        accessID,
		AccessKey:       accessKey,
		DefaultEndpoint: DefaultEndpoint,
		APIVersion:      DefaultAPIVersion,
		Timeout:         DefaultTimeout,
	}
}

// New creates a client and resolves its endpoint once. Endpoint discovery
// may issue a single probe request.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AccessID == "" || cfg.AccessKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.DefaultEndpoint == "" {
		cfg.DefaultEndpoint = DefaultEndpoint
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	logger := log.With().Str("component", "export-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	endpoint, err := resolveEndpoint(ctx, httpClient, cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("endpoint", endpoint).Msg("Resolved API endpoint")

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		config:     cfg,
		logger:     logger,
	}, nil
}

// newHTTPClient builds the session: TLS roots, timeout and a cookie jar
// shared by every call.
func newHTTPClient(cfg Config) (*http.Client, error) {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s: no certificates found", cfg.CABundle)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		Jar:       jar,
	}, nil
}

// Response is a successful API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the Content-Type header of the response.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type requestOptions struct {
	params  url.Values
	headers http.Header
	body    any
	version string
}

// RequestOption customises a single call.
type RequestOption func(*requestOptions)

// WithParams adds query parameters.
func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range params {
			for _, v := range vs {
				o.params.Add(k, v)
			}
		}
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers.Set(key, value)
	}
}

// WithJSONBody encodes v as the JSON request body.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) {
		o.body = v
	}
}

// WithVersion overrides the API version segment for one call.
func WithVersion(version string) RequestOption {
	return func(o *requestOptions) {
		o.version = version
	}
}

// Endpoint returns the resolved API base endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// VersionedEndpoint returns the endpoint joined with an API version.
func (c *Client) VersionedEndpoint(version string) string {
	return c.endpoint + "/" + version
}

// Do performs one authenticated request against <endpoint>/<version><path>.
// Statuses in [400, 600) are returned as *APIError carrying the response
// body. Requests are never retried.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	o := requestOptions{
		params:  url.Values{},
		headers: http.Header{},
		version: c.config.APIVersion,
	}
	for _, opt := range opts {
		opt(&o)
	}

	target := c.VersionedEndpoint(o.version) + path
	if len(o.params) > 0 {
		target += "?" + o.params.Encode()
	}

	var body io.Reader
	if o.body != nil {
		data, err := json.Marshal(o.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.AccessID, c.config.AccessKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	for k, vs := range o.headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	startTime := time.Now()
	defer func() {
		sumoRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Trace().
		Str("method", method).
		Str("path", path).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		sumoErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		sumoRequestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("HTTP request failed")
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Method:  method,
			Path:    path,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		sumoErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Method:     method,
			Path:       path,
			Message:    "read response body",
			Err:        err,
		}
	}

	sumoRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		sumoErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("API request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Method:     method,
			Path:       path,
			Message:    string(data),
		}
	}

	c.logger.Trace().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("API request completed")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts...)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, append(opts, WithJSONBody(body))...)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, append(opts, WithJSONBody(body))...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts...)
}

// GetFile downloads a binary payload. The returned Response carries the raw
// bytes and the server supplied Content-Type.
func (c *Client) GetFile(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, append(opts, WithHeader("Accept", "*/*"))...)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
