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
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/genai"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/manifest"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/report"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/utils"
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Recommend storage types, encodings and a clustering key",
	Long: `Reads a manifest written by 'profile' (or profiles a database or CSV sample
directly) and reports a storage type, encoding and nullability decision per
column plus an ORDER BY key per table. Output goes to a file, stdout or an
s3://bucket/key URL.`,
	Example: `./olap_schema_advisor advise --manifest ./shop_profile.yaml --format ddl --out_file ./shop_advice.sql
./olap_schema_advisor advise --dialect mysql --host localhost --port 3306 --username user --password pass --database shop --format json --out_file s3://reports/shop/advice.json
./olap_schema_advisor advise --csv ./events.csv --append-only --review --context_files ./events.md --out_file -`,
	RunE: runAdvise,
}

var (
	adviseSource       sourceFlags
	adviseManifest     string
	adviseOutFile      string
	adviseReview       bool
	adviseContextFiles string
	adviseFailOnIssues bool
)

func runAdvise(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Current()

	format := strings.ToLower(cfg.Report.Format)
	if err := report.CheckFormat(format); err != nil {
		return err
	}

	tables, source, err := adviseInputs(cmd)
	if err != nil {
		return err
	}

	adv := advisor.New(advisor.Options{FailFast: cfg.Advisor.FailFast, Logger: logger})
	advice, err := adv.AdviseAll(ctx, tables)
	if err != nil {
		return fmt.Errorf("advice failed: %w", err)
	}

	var notes []report.Note
	if adviseReview {
		notes, err = reviewFindings(cmd, cfg, advice)
		if err != nil {
			return err
		}
	}

	r := report.New(source, advice, notes)

	outputFile := adviseOutFile
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath(source, "advise", format)
	}
	sink, err := report.OpenSink(ctx, outputFile, cfg.Report)
	if err != nil {
		return err
	}
	if err := report.Deliver(ctx, sink, r, format); err != nil {
		return err
	}

	logger.Info("Advice written",
		zap.String("destination", sink.String()),
		zap.String("format", format),
		zap.Int("tables", len(r.Tables)),
		zap.Int("needs_review", r.ReviewCount()),
		zap.Int("issues", r.IssueCount()))

	if adviseFailOnIssues && r.IssueCount() > 0 {
		return fmt.Errorf("%d issue(s) found", r.IssueCount())
	}
	return nil
}

// adviseInputs reads the manifest when one is given and profiles otherwise.
// With a manifest, --tables and --append-only narrow and adjust its tables;
// the CSV flags have nothing to act on and are rejected.
func adviseInputs(cmd *cobra.Command) ([]advisor.TableInput, string, error) {
	if adviseManifest == "" {
		return collectTables(cmd, &adviseSource)
	}
	for _, name := range []string{"csv", "table", "delimiter"} {
		if cmd.Flags().Changed(name) {
			return nil, "", fmt.Errorf("--%s cannot be combined with --manifest", name)
		}
	}

	m, err := manifest.ReadFile(adviseManifest)
	if err != nil {
		return nil, "", err
	}
	tables, err := m.TableInputs()
	if err != nil {
		return nil, "", fmt.Errorf("invalid manifest %s: %w", adviseManifest, err)
	}
	tables, err = selectTables(tables, adviseSource.tables, adviseSource.appendOnly)
	if err != nil {
		return nil, "", err
	}
	if adviseSource.queryLog != "" {
		if tables, err = applyQueryLog(adviseSource.queryLog, tables); err != nil {
			return nil, "", err
		}
	}
	source := m.Source
	if source == "" {
		source = adviseManifest
	}
	return tables, source, nil
}

// selectTables keeps the tables and columns named by a --tables filter and
// marks them append-only when asked. Secondary keys on dropped columns are
// dropped too.
func selectTables(tables []advisor.TableInput, filter string, appendOnly bool) ([]advisor.TableInput, error) {
	filters, err := utils.ParseTablesFlag(filter)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool, len(filters))
	out := make([]advisor.TableInput, 0, len(tables))
	for _, t := range tables {
		cols, ok := filters[t.Name]
		if len(filters) > 0 && !ok {
			continue
		}
		found[t.Name] = true
		if len(cols) > 0 {
			keep := make(map[string]bool, len(cols))
			for _, c := range cols {
				keep[c] = true
			}
			kept := make([]advisor.ColumnInput, 0, len(cols))
			for _, c := range t.Columns {
				if keep[c.Profile.Name] {
					kept = append(kept, c)
				}
			}
			var keys []string
			for _, k := range t.SecondaryKeys {
				if keep[k] {
					keys = append(keys, k)
				}
			}
			t.Columns, t.SecondaryKeys = kept, keys
		}
		t.AppendOnly = t.AppendOnly || appendOnly
		out = append(out, t)
	}

	var missing []string
	for name := range filters {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("--tables names tables missing from the manifest: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// reviewFindings asks Gemini for notes on findings that need review. An
// invalid key disables review with a warning rather than failing the run.
func reviewFindings(cmd *cobra.Command, cfg *config.Config, advice []*advisor.TableAdvice) ([]report.Note, error) {
	ctx := cmd.Context()
	findings := genai.FindingsFrom(advice)
	if len(findings) == 0 {
		logger.Info("Nothing needs review")
		return nil, nil
	}

	additionalContext, err := utils.ReadContextFiles(adviseContextFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to read context files: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		logger.Warn("No Gemini API key provided. Review notes will be skipped.")
		return nil, nil
	}
	client, err := genai.NewClient(ctx, genai.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.IsAPIKeyValid(ctx); err != nil {
		logger.Warn("Gemini API key provided is invalid. Review notes will be skipped.", zap.Error(err))
		return nil, nil
	}

	return genai.NewReviewer(client, additionalContext, cfg.Profiler.MaxConcurrency, logger).Review(ctx, findings)
}

func init() {
	adviseSource.register(adviseCmd)
	adviseCmd.Flags().StringVar(&adviseManifest, "manifest", "", "Manifest written by 'profile'. When empty the database or --csv file is profiled directly")
	adviseCmd.Flags().StringVarP(&adviseOutFile, "out_file", "o", "", "Destination: file path, s3://bucket/key or '-' for stdout (defaults to <database>_advice.<ext>)")
	adviseCmd.Flags().String("format", "text", fmt.Sprintf("Report format (%s)", strings.Join(report.Formats(), ", ")))
	adviseCmd.Flags().Bool("fail-fast", false, "Stop at the first column that cannot be advised")
	adviseCmd.Flags().String("model", genai.DefaultModel, "Gemini model used by --review")
	adviseCmd.Flags().BoolVar(&adviseReview, "review", false, "Ask Gemini for advisory notes on findings that need review (requires GEMINI_API_KEY)")
	adviseCmd.Flags().StringVar(&adviseContextFiles, "context_files", "", "Comma-separated files with additional context for --review")
	adviseCmd.Flags().BoolVar(&adviseFailOnIssues, "fail-on-issues", false, "Exit with an error when any table or column has an issue")
}
