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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/manifest"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/profiler"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/usage"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/utils"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Collect column statistics into a manifest",
	Long: `Profiles tables from a database (or a CSV sample file), merges column usage
from an optional query log, and writes a YAML manifest. Review and edit the
manifest hints, then pass it to 'advise'.`,
	Example: `./olap_schema_advisor profile --dialect postgres --host localhost --port 5432 --username user --password pass --database shop --tables "orders,customers[id,country]" --query-log ./queries.sql --out_file ./shop_profile.yaml
./olap_schema_advisor profile --csv ./events.csv --table events --append-only`,
	RunE: runProfile,
}

// sourceFlags select where table statistics come from.
type sourceFlags struct {
	tables     string
	csvPath    string
	csvTable   string
	csvComma   string
	queryLog   string
	appendOnly bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tables, "tables", "", "Comma-separated list of tables and columns to include (e.g., 'table1[col1,col2],table2')")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "Profile a CSV sample file with a header row instead of a database")
	cmd.Flags().StringVar(&f.csvTable, "table", "", "Table name for the CSV sample (defaults to the file name)")
	cmd.Flags().StringVar(&f.csvComma, "delimiter", ",", "CSV field delimiter")
	cmd.Flags().StringVar(&f.queryLog, "query-log", "", "File of ';'-separated SQL statements used to derive filter, GROUP BY and ORDER BY usage")
	cmd.Flags().BoolVar(&f.appendOnly, "append-only", false, "Mark profiled tables as append-only (time columns lead the key)")
}

// collectTables profiles the selected source and merges query-log usage.
// It returns the tables and a name for the source.
func collectTables(cmd *cobra.Command, f *sourceFlags) ([]advisor.TableInput, string, error) {
	var (
		tables []advisor.TableInput
		source string
	)

	if f.csvPath != "" {
		t, err := profileCSV(f)
		if err != nil {
			return nil, "", err
		}
		tables, source = []advisor.TableInput{t}, f.csvPath
	} else {
		cfg := config.Current()
		tableFilters, err := utils.ParseTablesFlag(f.tables)
		if err != nil {
			return nil, "", err
		}

		logger.Info("Starting profile operation",
			zap.String("dialect", cfg.Database.Dialect),
			zap.String("database", cfg.Database.DBName))

		db, err := setupDatabase(cmd)
		if err != nil {
			return nil, "", err
		}
		defer db.Close()

		svc := profiler.NewService(db, profiler.OptionsFromConfig(cfg.Profiler, logger))
		tables, err = svc.ProfileTables(cmd.Context(), profiler.ProfileParams{
			TableFilters: tableFilters,
			AppendOnly:   f.appendOnly,
		})
		if err != nil {
			return nil, "", fmt.Errorf("profiling failed: %w", err)
		}
		source = cfg.Database.DBName
	}

	if f.queryLog != "" {
		var err error
		if tables, err = applyQueryLog(f.queryLog, tables); err != nil {
			return nil, "", err
		}
	}
	return tables, source, nil
}

// applyQueryLog merges usage from the query log at path into tables.
func applyQueryLog(path string, tables []advisor.TableInput) ([]advisor.TableInput, error) {
	u, err := usage.ExtractFile(path, logger)
	if err != nil {
		return nil, err
	}
	if missing := u.Unprofiled(tables); len(missing) > 0 {
		logger.Warn("Query log references tables that were not profiled", zap.Strings("tables", missing))
	}
	return u.Apply(tables), nil
}

func profileCSV(f *sourceFlags) (advisor.TableInput, error) {
	table := f.csvTable
	if table == "" {
		table = strings.TrimSuffix(filepath.Base(f.csvPath), filepath.Ext(f.csvPath))
	}
	comma := []rune(f.csvComma)
	if len(comma) != 1 {
		return advisor.TableInput{}, fmt.Errorf("--delimiter must be a single character, got %q", f.csvComma)
	}

	file, err := os.Open(f.csvPath)
	if err != nil {
		return advisor.TableInput{}, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	logger.Info("Profiling CSV sample", zap.String("file", f.csvPath), zap.String("table", table))
	t, err := profiler.ProfileCSV(file, profiler.CSVOptions{Table: table, Comma: comma[0]})
	if err != nil {
		return advisor.TableInput{}, err
	}
	t.AppendOnly = f.appendOnly
	return t, nil
}

var (
	profileSource   sourceFlags
	profileOutFile  string
	profileAssumeOK bool
)

func runProfile(cmd *cobra.Command, args []string) error {
	tables, source, err := collectTables(cmd, &profileSource)
	if err != nil {
		return err
	}

	outputFile := profileOutFile
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath(source, "profile", "")
	}
	if _, statErr := os.Stat(outputFile); statErr == nil && !profileAssumeOK {
		if !utils.ConfirmAction(fmt.Sprintf("%s already exists and will be overwritten.", outputFile), cmd.InOrStdin(), cmd.OutOrStdout()) {
			logger.Info("Profile aborted by user")
			return nil
		}
	}

	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := manifest.Write(file, manifest.FromTableInputs(source, tables)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	logger.Info("Manifest written", zap.String("file", outputFile), zap.Int("tables", len(tables)))
	fmt.Fprintf(cmd.OutOrStdout(), "Manifest written to: %s\n", outputFile)
	return nil
}

func init() {
	profileSource.register(profileCmd)
	profileCmd.Flags().StringVarP(&profileOutFile, "out_file", "o", "", "File path for the manifest (defaults to <database>_profile.yaml)")
	profileCmd.Flags().BoolVarP(&profileAssumeOK, "yes", "y", false, "Overwrite an existing output file without asking")
}
