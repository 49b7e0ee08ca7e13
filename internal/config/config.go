package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const DefaultFile = "config.yaml"

type Config struct {
	App       App           `mapstructure:"app"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Server    Server        `mapstructure:"server"`
	Syslog    Syslog        `mapstructure:"syslog"`
	HEC       HEC           `mapstructure:"hec"`
	Generator Generator     `mapstructure:"generator"`
	Batch     Batch         `mapstructure:"batch"`
	Archive   Archive       `mapstructure:"archive"`
	GeoIP     GeoIP         `mapstructure:"geoip"`
	Otel      Otel          `mapstructure:"otel"`
	Alerts    Alerts        `mapstructure:"alerts"`

	// run settings, usually given as flags
	Count    int    `mapstructure:"count"`
	Outdir   string `mapstructure:"outdir"`
	Filename string `mapstructure:"filename"`
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
	Mode     string `mapstructure:"mode"`
	Output   string `mapstructure:"output"`
	Sink     string `mapstructure:"sink"`
	Seed     int64  `mapstructure:"seed"`
}

type App struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

// LoggingConfig stores global logging configurations
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Server struct {
	ApiPort     int  `mapstructure:"api_port"`
	PreviewPort int  `mapstructure:"preview_port"`
	Dev         bool `mapstructure:"dev"`
}

type Syslog struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type HEC struct {
	Endpoint       string `mapstructure:"endpoint"`
	Token          string `mapstructure:"token"`
	Index          string `mapstructure:"index"`
	Source         string `mapstructure:"source"`
	SourceType     string `mapstructure:"sourcetype"`
	Host           string `mapstructure:"host"`
	Region         string `mapstructure:"region"`
	TLSSkipVerify  bool   `mapstructure:"tls_skip_verify"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ChannelID      string `mapstructure:"channel_id"`
}

type Generator struct {
	DelaysMs  []int  `mapstructure:"delays_ms"`
	Pool      string `mapstructure:"pool"`
	Countries string `mapstructure:"countries"`
	CorpusDir string `mapstructure:"corpus_dir"`
	Location  string `mapstructure:"location"`
}

type Batch struct {
	// also send every batch record to the live sink
	Forward bool `mapstructure:"forward"`
	// keep the raw batch file instead of gzipping it
	NoCompress bool `mapstructure:"no_compress"`
}

type Archive struct {
	Provider  string `mapstructure:"provider"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Ssl       bool   `mapstructure:"ssl"`
	KeepLocal bool   `mapstructure:"keep_local"`
}

type GeoIP struct {
	DB string `mapstructure:"db"`
}

type Otel struct {
	Enabled               bool   `mapstructure:"enabled"`
	Endpoint              string `mapstructure:"endpoint"`
	ScrapeIntervalSeconds int    `mapstructure:"scrapeIntervalseconds"`
}

type Alerts struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// consecutive live send failures before an alert goes out
	Threshold int `mapstructure:"threshold"`
}

// LoadConfig layers the yaml file, the environment and the command flags, in that order.
// A missing default file is not an error.
func LoadConfig(cfgFile, envPrefix string, cmd *cobra.Command, cfg *Config) error {
	k := koanf.New(".")

	if cfgFile == "" {
		cfgFile = DefaultFile
	}

	if _, err := os.Stat(cfgFile); err == nil || cfgFile != DefaultFile {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "failed to parse %s", cfgFile)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return errors.Wrapf(err, "error loading config from env")
	}

	if cmd != nil {
		if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
			return errors.Wrapf(err, "error loading config from flags")
		}
	}

	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "mapstructure"})
	if err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s", cfgFile)
	}

	cfg.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "synthlog"
	}
	if c.App.Version == "" {
		c.App.Version = "v1.0.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.ApiPort == 0 {
		c.Server.ApiPort = 8080
	}
	if c.Server.PreviewPort == 0 {
		c.Server.PreviewPort = 8081
	}
	if c.Syslog.Host == "" {
		c.Syslog.Host = "127.0.0.1"
	}
	if c.Syslog.Port == 0 {
		c.Syslog.Port = 514
	}
	if c.HEC.Source == "" {
		c.HEC.Source = c.App.Name
	}
	if c.HEC.TimeoutSeconds == 0 {
		c.HEC.TimeoutSeconds = 10
	}
	if len(c.Generator.DelaysMs) == 0 {
		c.Generator.DelaysMs = []int{1000, 2000, 3000, 4000, 5000}
	}
	if c.Otel.ScrapeIntervalSeconds == 0 {
		c.Otel.ScrapeIntervalSeconds = 15
	}
	if c.Alerts.Threshold == 0 {
		c.Alerts.Threshold = 10
	}
	if c.Alerts.TimeoutSeconds == 0 {
		c.Alerts.TimeoutSeconds = 30
	}
	if c.Outdir == "" {
		c.Outdir = "."
	}
	if c.Start == "" {
		c.Start = "2011-01-01"
	}
	if c.End == "" {
		c.End = "2020-01-01"
	}
	if c.Mode == "" {
		c.Mode = "live"
	}
	if c.Output == "" {
		c.Output = "raw"
	}
	if c.Sink == "" {
		c.Sink = "udp"
	}
}

// Delays converts the configured jitter catalog
func (c *Config) Delays() []time.Duration {
	out := make([]time.Duration, 0, len(c.Generator.DelaysMs))
	for _, ms := range c.Generator.DelaysMs {
		if ms > 0 {
			out = append(out, time.Duration(ms)*time.Millisecond)
		}
	}
	return out
}

// Location resolves generator.location, UTC when unset
func (c *Config) Location() (*time.Location, error) {
	if c.Generator.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Generator.Location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid generator.location %q", c.Generator.Location)
	}
	return loc, nil
}
