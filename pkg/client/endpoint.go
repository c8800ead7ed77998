package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// collectorsProbePath is requested on the default endpoint; the API
	// redirects it to the deployment that owns the credential.
	collectorsProbePath = "/v1/collectors"

	// EndpointCacheTTL bounds how long a discovered endpoint is reused.
	EndpointCacheTTL = 24 * time.Hour
)

// EndpointCache persists discovered endpoints per access id. A miss is
// reported as ok == false with a nil error.
type EndpointCache interface {
	GetEndpoint(ctx context.Context, accessID string) (endpoint string, ok bool, err error)
	SetEndpoint(ctx context.Context, accessID, endpoint string, ttl time.Duration) error
}

// RegionEndpoint returns the API base for a short deployment code.
func RegionEndpoint(region string) string {
	return "https://api." + region + ".sumologic.com/api"
}

// resolveEndpoint picks the API base: explicit endpoint, then region, then
// cache, then a discovery probe. The result never ends with "/".
func resolveEndpoint(ctx context.Context, httpClient *http.Client, cfg Config, logger zerolog.Logger) (string, error) {
	var endpoint string

	switch {
	case cfg.Endpoint != "":
		endpoint = cfg.Endpoint
		logger.Debug().Str("endpoint", endpoint).Msg("Using explicit endpoint")
	case cfg.Region != "":
		endpoint = RegionEndpoint(cfg.Region)
		logger.Debug().Str("endpoint", endpoint).Str("region", cfg.Region).Msg("Using region endpoint")
	default:
		var err error
		endpoint, err = discoverEndpoint(ctx, httpClient, cfg, logger)
		if err != nil {
			return "", err
		}
	}

	if strings.HasSuffix(endpoint, "/") {
		return "", fmt.Errorf("%w: %q", ErrTrailingSlash, endpoint)
	}
	return endpoint, nil
}

// discoverEndpoint consults the cache and falls back to probing the default
// endpoint. The probe status is ignored: only the final URL after redirects
// matters.
func discoverEndpoint(ctx context.Context, httpClient *http.Client, cfg Config, logger zerolog.Logger) (string, error) {
	if cfg.EndpointCache != nil {
		cached, ok, err := cfg.EndpointCache.GetEndpoint(ctx, cfg.AccessID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Endpoint cache lookup failed")
		case ok:
			logger.Debug().Str("endpoint", cached).Msg("Using cached endpoint")
			return cached, nil
		}
	}

	probe := strings.TrimSuffix(cfg.DefaultEndpoint, "/") + collectorsProbePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
	if err != nil {
		return "", fmt.Errorf("create probe request: %w", err)
	}
	req.SetBasicAuth(cfg.AccessID, cfg.AccessKey)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &APIError{
			Class:   ErrorClassNetwork,
			Method:  http.MethodGet,
			Path:    collectorsProbePath,
			Message: "endpoint discovery failed",
			Err:     err,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	final := *resp.Request.URL
	final.RawQuery = ""
	final.Fragment = ""
	finalURL := strings.TrimSuffix(final.String(), "/")
	if !strings.HasSuffix(finalURL, collectorsProbePath) {
		return "", fmt.Errorf("endpoint discovery: unexpected redirect target %q", finalURL)
	}
	endpoint := strings.TrimSuffix(finalURL, collectorsProbePath)

	logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("Discovered endpoint")

	if cfg.EndpointCache != nil && !strings.HasSuffix(endpoint, "/") {
		if err := cfg.EndpointCache.SetEndpoint(ctx, cfg.AccessID, endpoint, EndpointCacheTTL); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache endpoint")
		}
	}

	return endpoint, nil
}
