package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/zsr/internal/logging"
	"github.com/ppiankov/zsr/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags
var Version = "0.3.0"

var (
	cfgFile string
	verbose bool
	jsonLog bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "zsr",
	Short: "zsr - Zscaler Site Review bulk resolver",
	Long: `zsr looks up URLs and hostnames with Zscaler Site Review in batches,
caches the verdicts for two weeks, and either exports them or marks the
entry lists of an SSL inspection workbook:

  yellow  threat reported (label appended to the cell)
  orange  covered by a prebuilt exception category
  green   clean`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zsr v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.zsr/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "log as JSON")

	// Bind flags to viper
	_ = viper.BindPFlag("log.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json-log"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and ZSR_* environment variables
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	setDefaults(model.DefaultConfig())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".zsr"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// ZSR_LOOKUP_BATCH_SIZE overrides lookup.batch_size
	viper.SetEnvPrefix("ZSR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("log.verbose") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so that env variables are seen by Unmarshal
func setDefaults(cfg *model.Config) {
	viper.SetDefault("http.user_agent", cfg.HTTP.UserAgent)
	viper.SetDefault("http.http_proxy", cfg.HTTP.HTTPProxy)
	viper.SetDefault("http.https_proxy", cfg.HTTP.HTTPSProxy)
	viper.SetDefault("http.no_proxy", cfg.HTTP.NoProxy)

	viper.SetDefault("lookup.endpoint", cfg.Lookup.Endpoint)
	viper.SetDefault("lookup.batch_size", cfg.Lookup.BatchSize)
	viper.SetDefault("lookup.timeout", cfg.Lookup.Timeout)
	viper.SetDefault("lookup.max_body_bytes", cfg.Lookup.MaxBodyBytes)
	viper.SetDefault("lookup.requests_per_second", cfg.Lookup.RequestsPerSecond)
	viper.SetDefault("lookup.burst", cfg.Lookup.Burst)

	viper.SetDefault("cache.backend", cfg.Cache.Backend)
	viper.SetDefault("cache.path", cfg.Cache.Path)
	viper.SetDefault("cache.sqlite_path", cfg.Cache.SQLitePath)
	viper.SetDefault("cache.ttl", cfg.Cache.TTL)

	viper.SetDefault("sheet.names", cfg.Sheet.Names)
	viper.SetDefault("sheet.marker", cfg.Sheet.Marker)
	viper.SetDefault("sheet.marker_rows", cfg.Sheet.MarkerRows)
	viper.SetDefault("sheet.max_columns", cfg.Sheet.MaxColumns)
	viper.SetDefault("sheet.prebuilt_categories", cfg.Sheet.PrebuiltCategories)

	viper.SetDefault("log.verbose", cfg.Log.Verbose)
	viper.SetDefault("log.json", cfg.Log.JSON)
}

// loadConfig merges defaults, config file, env and bound flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *model.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Verbose, cfg.Log.JSON)
}
