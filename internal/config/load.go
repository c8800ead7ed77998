package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/dashboard-news/pkg/batch"
	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// INI sections.
const (
	SectionDefault    = "Default"
	SectionDashboards = "Dashboards"
)

// Keys of the [Default] section. The environment uses the upper case form.
const (
	KeySumoUID         = "sumo_uid"
	KeySumoKey         = "sumo_key"
	KeySumoEnd         = "sumo_end"
	KeyExportDir       = "exportdir"
	KeyOutputDir       = "outputdir"
	KeyOutputFile      = "outputfile"
	KeyTimezone        = "timezone"
	KeyFormat          = "format"
	KeyTries           = "tries"
	KeySleepTime       = "sleeptime"
	KeyConcurrency     = "concurrency"
	KeyDPI             = "dpi"
	KeyImageWidth      = "image_width"
	KeyRedisAddr       = "redis_addr"
	KeyRedisPassword   = "redis_password"
	KeyRedisDB         = "redis_db"
	KeyPublishEndpoint = "publish_endpoint"
	KeyPublishAccess   = "publish_access_key"
	KeyPublishSecret   = "publish_secret_key"
	KeyPublishBucket   = "publish_bucket"
	KeyPublishSSL      = "publish_ssl"
	KeyPublishPrefix   = "publish_prefix"
)

// Keys only set by flags.
const (
	KeyConfig     = "config"
	KeySecret     = "secret"
	KeyDashboards = "dashboard"
)

var fileKeys = []string{
	KeySumoUID, KeySumoKey, KeySumoEnd,
	KeyExportDir, KeyOutputDir, KeyOutputFile,
	KeyTimezone, KeyFormat, KeyTries, KeySleepTime, KeyConcurrency,
	KeyDPI, KeyImageWidth,
	KeyRedisAddr, KeyRedisPassword, KeyRedisDB,
	KeyPublishEndpoint, KeyPublishAccess, KeyPublishSecret,
	KeyPublishBucket, KeyPublishSSL, KeyPublishPrefix,
}

// NewViper returns a viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyExportDir, DefaultExportDir)
	v.SetDefault(KeyOutputDir, DefaultOutputDir)
	v.SetDefault(KeyOutputFile, DefaultOutputFile)
	v.SetDefault(KeyTimezone, defaultTimezone(os.Getenv("TZ")))
	v.SetDefault(KeyFormat, string(client.FormatPdf))
	v.SetDefault(KeyTries, DefaultTries)
	v.SetDefault(KeySleepTime, DefaultSleepTime)
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
	v.SetDefault(KeyRedisDB, DefaultRedisDB)

	for _, key := range fileKeys {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv(KeyTimezone, "TIMEZONE")

	return v
}

// defaultTimezone returns tz when it names an IANA zone, otherwise
// client.DefaultTimezone. POSIX rules (EST5EDT,M3.2.0,M11.1.0) and file
// references (:/etc/localtime) are not zone names.
func defaultTimezone(tz string) string {
	if tz == "" || strings.EqualFold(tz, "local") {
		return client.DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return client.DefaultTimezone
	}
	return tz
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeySecret, "a", "", "set query authkey (format: <key>:<secret>)")
	fs.StringArrayP(KeyDashboards, "d", nil, "restrict the run to this dashboard id (repeatable)")
	fs.StringP(KeyConfig, "c", "", "set config file")
	fs.Float64P(KeySleepTime, "s", DefaultSleepTime, "set sleep time in seconds between status checks")
	fs.Int(KeyTries, DefaultTries, "maximum status checks per export job")
	fs.Int(KeyConcurrency, DefaultConcurrency, "export jobs in flight")
}

// BindFlags binds the flags defined by RegisterFlags.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, name := range []string{KeySecret, KeyDashboards, KeyConfig, KeySleepTime, KeyTries, KeyConcurrency} {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(name, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file named by the config key, layers it under the
// environment and flags bound to v, and returns the validated result.
// Precedence: flags, environment, [Default], defaults. A secret flag beats
// SUMO_UID/SUMO_KEY from any source.
func Load(v *viper.Viper) (*Config, error) {
	path := v.GetString(KeyConfig)
	if path == "" {
		return nil, ErrNoConfigFile
	}
	path = absPath(path)

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("could not load config file: %w", err)
	}

	values := make(map[string]any)
	if section, err := file.GetSection(SectionDefault); err == nil {
		for _, key := range section.Keys() {
			values[key.Name()] = key.Value()
		}
	}
	if err := v.MergeConfigMap(values); err != nil {
		return nil, fmt.Errorf("merge [%s]: %w", SectionDefault, err)
	}

	format, err := client.ParseExportFormat(v.GetString(KeyFormat))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		File:        path,
		AccessID:    v.GetString(KeySumoUID),
		AccessKey:   v.GetString(KeySumoKey),
		ExportDir:   absPath(v.GetString(KeyExportDir)),
		OutputDir:   absPath(v.GetString(KeyOutputDir)),
		OutputFile:  v.GetString(KeyOutputFile),
		Timezone:    v.GetString(KeyTimezone),
		Format:      format,
		Tries:       v.GetInt(KeyTries),
		SleepTime:   time.Duration(v.GetFloat64(KeySleepTime) * float64(time.Second)),
		Concurrency: v.GetInt(KeyConcurrency),
		DPI:         v.GetInt(KeyDPI),
		ImageWidth:  v.GetInt(KeyImageWidth),
		Redis: RedisConfig{
			Addr:     v.GetString(KeyRedisAddr),
			Password: v.GetString(KeyRedisPassword),
			DB:       v.GetInt(KeyRedisDB),
		},
		Publish: PublishConfig{
			Endpoint:  v.GetString(KeyPublishEndpoint),
			AccessKey: v.GetString(KeyPublishAccess),
			SecretKey: v.GetString(KeyPublishSecret),
			Bucket:    v.GetString(KeyPublishBucket),
			UseSSL:    v.GetBool(KeyPublishSSL),
			Prefix:    v.GetString(KeyPublishPrefix),
		},
	}
	cfg.Endpoint, cfg.Region = splitEndpoint(v.GetString(KeySumoEnd))

	if secret := v.GetString(KeySecret); secret != "" {
		id, key, err := splitSecret(secret)
		if err != nil {
			return nil, err
		}
		cfg.AccessID, cfg.AccessKey = id, key
	}

	cfg.Dashboards = dashboards(file, v.GetStringSlice(KeyDashboards))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dashboards returns the [Dashboards] entries in file order, or, when only
// is non-empty, the listed ids in that order labelled from the file.
func dashboards(file *ini.File, only []string) []batch.DashboardRef {
	var section *ini.Section
	if s, err := file.GetSection(SectionDashboards); err == nil {
		section = s
	}

	if len(only) == 0 {
		if section == nil {
			return nil
		}
		refs := make([]batch.DashboardRef, 0, len(section.Keys()))
		for _, key := range section.Keys() {
			refs = append(refs, batch.DashboardRef{ID: key.Name(), Label: key.Value()})
		}
		return refs
	}

	seen := make(map[string]bool, len(only))
	refs := make([]batch.DashboardRef, 0, len(only))
	for _, id := range only {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ref := batch.DashboardRef{ID: id}
		if section != nil && section.HasKey(id) {
			ref.Label = section.Key(id).Value()
		}
		refs = append(refs, ref)
	}
	return refs
}
