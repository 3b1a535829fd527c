/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ADVISOR"

// Config holds all configuration for the application
type Config struct {
	Database     DatabaseConfig `mapstructure:"database"`
	Profiler     ProfilerConfig `mapstructure:"profiler"`
	Advisor      AdvisorConfig  `mapstructure:"advisor"`
	Report       ReportConfig   `mapstructure:"report"`
	GeminiAPIKey string         `mapstructure:"gemini_api_key"`
	GeminiModel  string         `mapstructure:"gemini_model"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string `mapstructure:"dialect"`
	Host                           string `mapstructure:"host"`
	Port                           int    `mapstructure:"port"`
	User                           string `mapstructure:"user"`
	Password                       string `mapstructure:"password"`
	DBName                         string `mapstructure:"name"`
	SSLMode                        string `mapstructure:"ssl_mode"`
	CloudSQLInstanceConnectionName string `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool   `mapstructure:"cloudsql_use_private_ip"`
}

// ProfilerConfig controls statistics collection.
type ProfilerConfig struct {
	// SampleSize is the number of non-null values fetched per text column.
	SampleSize     int           `mapstructure:"sample_size"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// AdvisorConfig controls how the advisor reports failures.
type AdvisorConfig struct {
	FailFast bool `mapstructure:"fail_fast"`
}

// ReportConfig controls report rendering and upload.
type ReportConfig struct {
	Format         string `mapstructure:"format"`
	S3Region       string `mapstructure:"s3_region"`
	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3UsePathStyle bool   `mapstructure:"s3_use_path_style"`
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// GetConfig returns a default configuration.
func GetConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Profiler: ProfilerConfig{
			SampleSize:     20,
			MaxConcurrency: 4,
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			QueryTimeout:   2 * time.Minute,
		},
		Report: ReportConfig{
			Format: "text",
		},
		GeminiModel: "gemini-1.5-flash",
	}
}

func setDefaults(v *viper.Viper) {
	d := GetConfig()
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.cloudsql_instance_connection_name", "")
	v.SetDefault("database.cloudsql_use_private_ip", false)
	v.SetDefault("profiler.sample_size", d.Profiler.SampleSize)
	v.SetDefault("profiler.max_concurrency", d.Profiler.MaxConcurrency)
	v.SetDefault("profiler.max_retries", d.Profiler.MaxRetries)
	v.SetDefault("profiler.initial_backoff", d.Profiler.InitialBackoff)
	v.SetDefault("profiler.max_backoff", d.Profiler.MaxBackoff)
	v.SetDefault("profiler.query_timeout", d.Profiler.QueryTimeout)
	v.SetDefault("advisor.fail_fast", false)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.s3_region", "")
	v.SetDefault("report.s3_endpoint", "")
	v.SetDefault("report.s3_use_path_style", false)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", d.GeminiModel)
}

// Load reads configuration from defaults, an optional file, ADVISOR_*
// environment variables and finally any flag in flagKeys that was set on
// the command line. flagKeys maps config keys such as "database.host" to flag
// names.
func Load(configFile string, flags *pflag.FlagSet, flagKeys map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding GEMINI_API_KEY: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c *Config) Validate() error {
	switch {
	case c.Profiler.SampleSize < 0:
		return fmt.Errorf("profiler.sample_size must not be negative, got %d", c.Profiler.SampleSize)
	case c.Profiler.MaxConcurrency < 1:
		return fmt.Errorf("profiler.max_concurrency must be at least 1, got %d", c.Profiler.MaxConcurrency)
	case c.Profiler.MaxRetries < 0:
		return fmt.Errorf("profiler.max_retries must not be negative, got %d", c.Profiler.MaxRetries)
	}
	return nil
}

// SetConfig sets the global configuration.
func SetConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}

// Current returns the global configuration, or the defaults when none was set.
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if globalConfig == nil {
		return GetConfig()
	}
	return globalConfig
}
