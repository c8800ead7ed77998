// Package config resolves the INI file, the environment and command line
// flags into one Config value.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	// Timezone validation must not depend on the host zoneinfo.
	_ "time/tzdata"

	"github.com/Sternrassler/dashboard-news/pkg/batch"
	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/Sternrassler/dashboard-news/pkg/publish"
	"github.com/go-playground/validator/v10"
)

// Defaults applied when neither the INI file, the environment nor a flag
// sets a value.
const (
	DefaultExportDir   = "/var/tmp/dashboardexport"
	DefaultOutputDir   = "/var/tmp/dashboardnews"
	DefaultOutputFile  = "sumodashboardnews"
	DefaultTries       = 30
	DefaultSleepTime   = 2.0
	DefaultConcurrency = 1
	DefaultRedisDB     = 0
)

var (
	// ErrNoConfigFile is returned when no config file path was given.
	ErrNoConfigFile = errors.New("config file is required")

	// ErrNoDashboards is returned by RequireDashboards for an empty run.
	ErrNoDashboards = errors.New("no dashboards configured")

	// ErrMalformedSecret is returned for a secret flag without "key:secret" form.
	ErrMalformedSecret = errors.New("secret must have the form <key>:<secret>")
)

var validate = validator.New()

// Config is the resolved configuration of one invocation.
type Config struct {
	// File is the absolute path of the INI file.
	File string

	AccessID  string `validate:"required"`
	AccessKey string `validate:"required"`

	// Endpoint or Region, from SUMO_END. Both empty means discovery.
	Endpoint string `validate:"omitempty,url"`
	Region   string `validate:"omitempty,alphanum,max=8"`

	ExportDir  string `validate:"required"`
	OutputDir  string `validate:"required"`
	OutputFile string `validate:"required"`

	Timezone string              `validate:"required,timezone"`
	Format   client.ExportFormat `validate:"required,oneof=Pdf Png"`

	Tries       int           `validate:"gte=1"`
	SleepTime   time.Duration `validate:"gte=0"`
	Concurrency int           `validate:"gte=1,lte=16"`

	DPI        int `validate:"gte=0,lte=1200"`
	ImageWidth int `validate:"gte=0"`

	Redis   RedisConfig
	Publish PublishConfig

	// Dashboards in report order.
	Dashboards []batch.DashboardRef `validate:"-"`
}

// RedisConfig locates the optional Redis used for the endpoint cache and
// the run ledger.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0,lte=15"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// PublishConfig locates the optional report bucket.
type PublishConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string `validate:"required_with=Endpoint"`
	UseSSL    bool
	Prefix    string
}

// Enabled reports whether publishing is configured.
func (p PublishConfig) Enabled() bool {
	return p.Endpoint != ""
}

// Target returns the publisher configuration.
func (p PublishConfig) Target() publish.Config {
	return publish.Config{
		Endpoint:  p.Endpoint,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
		Bucket:    p.Bucket,
		UseSSL:    p.UseSSL,
		Prefix:    p.Prefix,
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireDashboards fails when the run has nothing to export.
func (c *Config) RequireDashboards() error {
	if len(c.Dashboards) == 0 {
		return ErrNoDashboards
	}
	return nil
}

// PollBudget returns the export poll budget.
func (c *Config) PollBudget() client.PollBudget {
	return client.PollBudget{MaxAttempts: c.Tries, Interval: c.SleepTime}
}

// ClientConfig returns the API client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.AccessID, c.AccessKey)
	cfg.Endpoint = c.Endpoint
	cfg.Region = c.Region
	return cfg
}

// BatchConfig returns the orchestrator configuration without a ledger.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		ExportDir:   c.ExportDir,
		Format:      c.Format,
		Timezone:    c.Timezone,
		Budget:      c.PollBudget(),
		Concurrency: c.Concurrency,
	}
}

// splitSecret parses "<key>:<secret>". The secret may itself contain ":".
func splitSecret(s string) (string, string, error) {
	id, key, ok := strings.Cut(s, ":")
	if !ok || id == "" || key == "" {
		return "", "", ErrMalformedSecret
	}
	return id, key, nil
}

// splitEndpoint reads SUMO_END: a URL is an endpoint, anything else a region.
func splitEndpoint(end string) (endpoint, region string) {
	end = strings.TrimSpace(end)
	if strings.Contains(end, "://") {
		return end, ""
	}
	return "", strings.ToLower(end)
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
