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
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database"
	_ "github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database/sqlite"
	_ "github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database/sqlserver"
)

var (
	configFile   string
	verbose      bool
	geminiAPIKey string

	// Database connection flags
	dialect                        string
	host                           string
	port                           int
	username                       string
	password                       string
	dbName                         string
	cloudSQLInstanceConnectionName string
	cloudSQLUsePrivateIP           bool

	logger = zap.NewNop()
)

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"database.dialect":                           "dialect",
	"database.host":                              "host",
	"database.port":                              "port",
	"database.user":                              "username",
	"database.password":                          "password",
	"database.name":                              "database",
	"database.cloudsql_instance_connection_name": "cloudsql-instance-connection-name",
	"database.cloudsql_use_private_ip":           "cloudsql-use-private-ip",
	"profiler.sample_size":                       "sample-size",
	"profiler.max_concurrency":                   "concurrency",
	"advisor.fail_fast":                          "fail-fast",
	"report.format":                              "format",
	"gemini_api_key":                             "gemini-api-key",
	"gemini_model":                               "model",
}

var rootCmd = &cobra.Command{
	Use:   "olap_schema_advisor",
	Short: "Recommend columnar storage types, encodings and sort keys",
	Long: `olap_schema_advisor profiles tables from a live database or a CSV sample and
recommends OLAP storage types, dictionary encodings, nullability and a
clustering key ordering. Decisions it cannot make safely are flagged for review.`,
	PersistentPreRunE: initFlagsAndConfig,
	SilenceUsage:      true,
}

// initFlagsAndConfig builds the logger and loads configuration, letting
// explicitly set flags override the config file and environment.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	l, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger = l

	cfg, err := config.Load(configFile, cmd.Flags(), flagKeys)
	if err != nil {
		return err
	}
	config.SetConfig(cfg)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func validateDialect(dialect string) error {
	supportedDialects := database.Dialects()
	for _, supportedDialect := range supportedDialects {
		if dialect == supportedDialect {
			return nil
		}
	}
	return fmt.Errorf("unsupported dialect: %s (only %s are supported)", dialect, strings.Join(supportedDialects, ", "))
}

func setupDatabase(cmd *cobra.Command) (*database.DB, error) {
	dbConfig := config.Current().Database
	if err := validateDialect(dbConfig.Dialect); err != nil {
		return nil, err
	}
	db, err := database.New(cmd.Context(), dbConfig, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML, JSON or TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Database connection flags
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "", "Database dialect (postgres, mysql, sqlserver, sqlite, cloudsqlpostgres, cloudsqlmysql, cloudsqlsqlserver)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Database host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Database port")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Database username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Database password")
	rootCmd.PersistentFlags().StringVar(&dbName, "database", "", "Database name (file path for sqlite)")
	rootCmd.PersistentFlags().StringVar(&cloudSQLInstanceConnectionName, "cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	rootCmd.PersistentFlags().BoolVar(&cloudSQLUsePrivateIP, "cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Profiler tuning
	rootCmd.PersistentFlags().Int("sample-size", 0, "Values sampled per text column for identifier detection")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Maximum concurrent statistics queries")

	rootCmd.PersistentFlags().StringVar(&geminiAPIKey, "gemini-api-key", "", "Gemini API key (can also be set via GEMINI_API_KEY environment variable)")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(adviseCmd)
}
