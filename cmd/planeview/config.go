// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	pvconfig "github.com/teradata-labs/planeview/pkg/config"
	"github.com/teradata-labs/planeview/pkg/metadata"
	"github.com/teradata-labs/planeview/pkg/server"
	"github.com/teradata-labs/planeview/pkg/viewer"
	"github.com/teradata-labs/planeview/pkg/viewport"
)

// EnvPrefix prefixes environment overrides, e.g. PLANEVIEW_SERVER_PORT.
const EnvPrefix = "PLANEVIEW"

// Config holds all configuration for planeview.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	// DataDir is computed from PLANEVIEW_DATA_DIR or ~/.planeview and is not
	// loaded from the config file.
	DataDir string `mapstructure:"-" yaml:"-"`

	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Metadata    MetadataConfig    `mapstructure:"metadata" yaml:"metadata"`
	Viewer      ViewerConfig      `mapstructure:"viewer" yaml:"viewer"`
	Annotations AnnotationsConfig `mapstructure:"annotations" yaml:"annotations"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the annotation API server.
type ServerConfig struct {
	Host string     `mapstructure:"host" yaml:"host"`
	Port int        `mapstructure:"port" yaml:"port"`
	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
}

// CORSConfig mirrors server.CORSConfig.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// DatabaseConfig holds the annotation database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// BackupSchedule is a cron spec for periodic backups while serving;
	// empty disables them.
	BackupSchedule string `mapstructure:"backup_schedule" yaml:"backup_schedule"`
}

// EngineConfig holds the engine bootstrap retry policy.
type EngineConfig struct {
	InitMaxAttempts   int           `mapstructure:"init_max_attempts" yaml:"init_max_attempts"`
	InitRetryDelay    time.Duration `mapstructure:"init_retry_delay" yaml:"init_retry_delay"`
	InitMaxRetryDelay time.Duration `mapstructure:"init_max_retry_delay" yaml:"init_max_retry_delay"`
}

// MetadataConfig configures the metadata probe.
type MetadataConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// ViewerConfig configures sessions.
type ViewerConfig struct {
	ContextName   string   `mapstructure:"context_name" yaml:"context_name"`
	ToolGroup     string   `mapstructure:"tool_group" yaml:"tool_group"`
	Tools         []string `mapstructure:"tools" yaml:"tools"`
	SurfaceWidth  int      `mapstructure:"surface_width" yaml:"surface_width"`
	SurfaceHeight int      `mapstructure:"surface_height" yaml:"surface_height"`
}

// AnnotationsConfig points the CLI at an annotation API.
type AnnotationsConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// LoadConfig loads configuration from multiple sources.
// Priority (highest to lowest):
// 1. CLI flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(pvconfig.GetDataDir())          // respects PLANEVIEW_DATA_DIR
		viper.AddConfigPath(".")                            // Current directory
		viper.AddConfigPath("/etc/planeview/")              // System-wide
		viper.SetConfigName(pvconfig.DefaultConfigFileName) // planeview.yaml
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.DataDir = pvconfig.GetDataDir()
	if config.Database.Path != ":memory:" {
		config.Database.Path = pvconfig.ExpandPath(config.Database.Path)
	}
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 5080)

	cors := server.DefaultCORSConfig()
	viper.SetDefault("server.cors.enabled", cors.Enabled)
	viper.SetDefault("server.cors.allowed_origins", cors.AllowedOrigins)
	viper.SetDefault("server.cors.allowed_methods", cors.AllowedMethods)
	viper.SetDefault("server.cors.allowed_headers", cors.AllowedHeaders)
	viper.SetDefault("server.cors.exposed_headers", cors.ExposedHeaders)
	viper.SetDefault("server.cors.allow_credentials", cors.AllowCredentials)
	viper.SetDefault("server.cors.max_age", cors.MaxAge)

	viper.SetDefault("database.path", pvconfig.DefaultDatabasePath())
	viper.SetDefault("database.backup_schedule", "")

	boot := viewport.DefaultBootstrapConfig()
	viper.SetDefault("engine.init_max_attempts", boot.MaxAttempts)
	viper.SetDefault("engine.init_retry_delay", boot.RetryDelay)
	viper.SetDefault("engine.init_max_retry_delay", boot.MaxRetryDelay)

	viper.SetDefault("metadata.probe_timeout", metadata.DefaultProbeTimeout)

	viper.SetDefault("viewer.context_name", viewer.DefaultContextName)
	viper.SetDefault("viewer.tool_group", viewer.DefaultToolGroupID)
	viper.SetDefault("viewer.tools", viewer.DefaultTools)
	viper.SetDefault("viewer.surface_width", viewer.DefaultSurfaceSize)
	viper.SetDefault("viewer.surface_height", viewer.DefaultSurfaceSize)

	viper.SetDefault("annotations.endpoint", "http://127.0.0.1:5080")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Addr returns the server listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServerCORS converts the CORS section.
func (c ServerConfig) ServerCORS() server.CORSConfig {
	return server.CORSConfig{
		Enabled:          c.CORS.Enabled,
		AllowedOrigins:   c.CORS.AllowedOrigins,
		AllowedMethods:   c.CORS.AllowedMethods,
		AllowedHeaders:   c.CORS.AllowedHeaders,
		ExposedHeaders:   c.CORS.ExposedHeaders,
		AllowCredentials: c.CORS.AllowCredentials,
		MaxAge:           c.CORS.MaxAge,
	}
}

// ViewerConfig builds the viewer configuration.
func (c *Config) ViewerConfig(logger *zap.Logger) viewer.Config {
	return viewer.Config{
		ContextName:  c.Viewer.ContextName,
		ToolGroupID:  c.Viewer.ToolGroup,
		Tools:        c.Viewer.Tools,
		ProbeTimeout: c.Metadata.ProbeTimeout,
		Bootstrap: viewport.BootstrapConfig{
			MaxAttempts:   c.Engine.InitMaxAttempts,
			RetryDelay:    c.Engine.InitRetryDelay,
			MaxRetryDelay: c.Engine.InitMaxRetryDelay,
		},
		SurfaceWidth:  c.Viewer.SurfaceWidth,
		SurfaceHeight: c.Viewer.SurfaceHeight,
		Logger:        logger,
	}
}

// GenerateExampleConfig returns an example planeview.yaml holding the
// defaults.
func GenerateExampleConfig() (string, error) {
	setDefaults()
	out, err := yaml.Marshal(humanize(viper.AllSettings()))
	if err != nil {
		return "", fmt.Errorf("failed to encode example config: %w", err)
	}
	return "# planeview configuration\n" +
		"# Environment overrides use the " + EnvPrefix + "_ prefix, e.g. " + EnvPrefix + "_SERVER_PORT.\n\n" +
		string(out), nil
}

// humanize renders durations as strings such as "500ms".
func humanize(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		switch v := v.(type) {
		case map[string]any:
			out[k] = humanize(v)
		case time.Duration:
			out[k] = v.String()
		default:
			out[k] = v
		}
	}
	return out
}
