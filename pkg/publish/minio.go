// Package publish uploads finished reports to S3 compatible object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_news_reports_published_total",
		Help: "Total report uploads by result",
	}, []string{"result"})

	publishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashboard_news_publish_duration_seconds",
		Help:    "Report upload duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// ContentType of uploaded reports.
const ContentType = "application/pdf"

// DefaultRegion is sent to the server so no bucket location lookup is needed.
const DefaultRegion = "us-east-1"

var validate = validator.New()

// Config describes the target bucket.
type Config struct {
	// Endpoint is host:port, optionally with an http:// or https:// scheme
	// which then decides UseSSL.
	Endpoint  string `validate:"required"`
	AccessKey string `validate:"required_with=SecretKey"`
	SecretKey string `validate:"required_with=AccessKey"`
	Bucket    string `validate:"required,min=3,max=63"`
	Region    string
	UseSSL    bool

	// Prefix is prepended to object names, without leading or trailing "/".
	Prefix string
}

// MinIO publishes reports to a bucket.
type MinIO struct {
	client *minio.Client
	cfg    Config
	logger zerolog.Logger
}

// NewMinIO creates a publisher. No network call is made.
func NewMinIO(cfg Config) (*MinIO, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid publish config: %w", err)
	}

	endpoint, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	cfg.Endpoint = endpoint
	cfg.UseSSL = secure
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIO{
		client: client,
		cfg:    cfg,
		logger: log.With().Str("component", "publish").Logger(),
	}, nil
}

// splitEndpoint strips a URL scheme from endpoint.
func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "http://"), false
	case strings.Contains(endpoint, "://"):
		return "", false, fmt.Errorf("unsupported publish endpoint scheme: %s", endpoint)
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint == "" || strings.Contains(endpoint, "/") {
		return "", false, fmt.Errorf("publish endpoint must be host[:port]: %q", endpoint)
	}
	return endpoint, useSSL, nil
}

// Bucket returns the target bucket.
func (p *MinIO) Bucket() string {
	return p.cfg.Bucket
}

// ObjectName returns the object name a local report is stored under.
func (p *MinIO) ObjectName(localPath string) string {
	name := filepath.Base(localPath)
	if p.cfg.Prefix == "" {
		return name
	}
	return path.Join(p.cfg.Prefix, name)
}

// Publish uploads the report at localPath, creating the bucket when it does
// not exist, and returns the object name.
func (p *MinIO) Publish(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", errors.New("report path is empty")
	}
	start := time.Now()
	defer func() {
		publishDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.ensureBucket(ctx); err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return "", err
	}

	object := p.ObjectName(localPath)
	info, err := p.client.FPutObject(ctx, p.cfg.Bucket, object, localPath, minio.PutObjectOptions{ContentType: ContentType})
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("upload %s to %s/%s: %w", localPath, p.cfg.Bucket, object, err)
	}

	publishedTotal.WithLabelValues("success").Inc()
	p.logger.Info().
		Str("bucket", p.cfg.Bucket).
		Str("object", object).
		Int64("size", info.Size).
		Msg("Report published")

	return object, nil
}

func (p *MinIO) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.cfg.Bucket, err)
	}
	if exists {
		return nil
	}

	p.logger.Debug().Str("bucket", p.cfg.Bucket).Msg("Creating bucket")
	if err := p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.cfg.Bucket, err)
	}
	return nil
}
