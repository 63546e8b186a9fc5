package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/zsr/internal/model"
	"github.com/ppiankov/zsr/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// latestInput is the flag value used when --list or --excel is given without a file
const latestInput = "latest"

var (
	listFile    string
	excelFile   string
	jsonExport  string
	excelExport string
	sheetNames  []string
	noCache     bool
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a URL list or annotate an SSL workbook",
	Long: `Resolve looks up every URL from a text list (one per line) or from the
entry lists of an SSL inspection workbook. Verdicts are cached; only
URLs without a live cache entry are sent to Site Review, at most 90 per
request.

Without a file name, --list picks the newest *.txt (other than
requirements.txt) and --excel the newest *.xlsx in the current directory.
The workbook is annotated in place.

Example:
  zsr resolve --list urls.txt --json-export
  zsr resolve --list --excel-export report.xlsx
  zsr resolve --excel cse.xlsx --sheet "SSL Dest Groups"
  zsr resolve --excel --no-cache`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	// Input flags
	resolveCmd.Flags().StringVar(&listFile, "list", "", "text file with one URL per line")
	resolveCmd.Flags().Lookup("list").NoOptDefVal = latestInput
	resolveCmd.Flags().StringVar(&excelFile, "excel", "", "SSL inspection workbook to annotate")
	resolveCmd.Flags().Lookup("excel").NoOptDefVal = latestInput
	resolveCmd.Flags().StringSliceVar(&sheetNames, "sheet", nil, "workbook sheet to process (repeatable; default from config)")

	// Output flags
	resolveCmd.Flags().StringVar(&jsonExport, "json-export", "", "write results as JSON")
	resolveCmd.Flags().Lookup("json-export").NoOptDefVal = "out.json"
	resolveCmd.Flags().StringVar(&excelExport, "excel-export", "", "write results as a flat Excel sheet")
	resolveCmd.Flags().Lookup("excel-export").NoOptDefVal = "out.xlsx"

	// Cache flags
	resolveCmd.Flags().String("cache", model.DefaultCacheFile, "JSON cache file")
	resolveCmd.Flags().BoolVar(&noCache, "no-cache", false, "keep verdicts in memory only for this run")
	_ = viper.BindPFlag("cache.path", resolveCmd.Flags().Lookup("cache"))
}

func runResolve(cmd *cobra.Command, args []string) error {
	if listFile == "" && excelFile == "" {
		return fmt.Errorf("nothing to resolve: use --list or --excel")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Backend = model.BackendMemory
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	listPath, err := resolveInput(listFile, ".txt")
	if err != nil {
		return fmt.Errorf("--list: %w", err)
	}
	excelPath, err := resolveInput(excelFile, ".xlsx")
	if err != nil {
		return fmt.Errorf("--excel: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	if listPath != "" {
		if err := runList(ctx, p, listPath); err != nil {
			return err
		}
	}

	if excelPath != "" {
		if err := runWorkbook(ctx, p, excelPath); err != nil {
			return err
		}
	}

	return nil
}

func runList(ctx context.Context, p *pipeline.Pipeline, path string) error {
	res, err := p.ResolveList(ctx, path, jsonExport, excelExport)
	if err != nil {
		return err
	}

	threats := 0
	for _, v := range res.Results {
		if v.HasThreat() {
			threats++
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  List:        %s\n", path)
	fmt.Fprintf(os.Stderr, "  URLs:        %d (%d distinct keys)\n", res.Inputs, len(res.Results))
	fmt.Fprintf(os.Stderr, "  Cache hits:  %d\n", res.Stats.CacheHits)
	fmt.Fprintf(os.Stderr, "  Looked up:   %d in %d requests\n", res.Stats.Lookups, res.Stats.Batches)
	fmt.Fprintf(os.Stderr, "  Threats:     %d\n", threats)
	if jsonExport != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", jsonExport)
	}
	if excelExport != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote Excel: %s\n", excelExport)
	}
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

func runWorkbook(ctx context.Context, p *pipeline.Pipeline, path string) error {
	summary, err := p.ReconcileWorkbook(ctx, path, sheetNames)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Workbook:    %s (%d sheets with entries)\n", path, summary.Sheets)
	fmt.Fprintf(os.Stderr, "  Entries:     %d\n", summary.Entries)
	fmt.Fprintf(os.Stderr, "  Threat:      %d\n", summary.Threat)
	fmt.Fprintf(os.Stderr, "  Prebuilt:    %d\n", summary.Prebuilt)
	fmt.Fprintf(os.Stderr, "  Clean:       %d\n", summary.Clean)
	if summary.Unmatched > 0 {
		fmt.Fprintf(os.Stderr, "  Unmatched:   %d (see warnings)\n", summary.Unmatched)
	}
	fmt.Fprintf(os.Stderr, "✓ Annotated %s\n\n", path)

	return nil
}

// resolveInput maps a flag value to a path, discovering the newest file for latestInput
func resolveInput(value, ext string) (string, error) {
	if value != latestInput {
		return value, nil
	}
	return latestFile(".", ext, "requirements.txt")
}
