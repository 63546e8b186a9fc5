package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/zsr/internal/cache"
	"github.com/ppiankov/zsr/internal/model"
	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the verdict cache",
	Long: `Inspect and maintain the verdict cache.

Entries older than the configured TTL (default 14 days) are dropped
whenever the cache is loaded.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store cache.Store, where string) error {
			entries := store.Entries()

			threats := 0
			var oldest time.Time
			for _, e := range entries {
				if e.Threat != "" {
					threats++
				}
				if oldest.IsZero() || e.Created.Before(oldest) {
					oldest = e.Created
				}
			}

			fmt.Printf("Cache:     %s\n", where)
			fmt.Printf("Entries:   %d\n", len(entries))
			fmt.Printf("Threats:   %d\n", threats)
			if !oldest.IsZero() {
				fmt.Printf("Oldest:    %s\n", oldest.Local().Format(time.RFC3339))
			}
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries from the cache file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store cache.Store, where string) error {
			if err := store.Persist(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Pruned %s (%d live entries)\n", where, store.Len())
			return nil
		})
	},
}

// withStore opens the configured cache, runs fn and closes it
func withStore(cmd *cobra.Command, fn func(store cache.Store, where string) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("cache"); path != "" {
		cfg.Cache.Path = path
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := cache.Open(cmd.Context(), cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close cache: %w", closeErr)
		}
	}()

	where := cfg.Cache.Path
	switch cfg.Cache.Backend {
	case model.BackendSQLite:
		where = cfg.Cache.SQLitePath
	case model.BackendMemory:
		where = "memory"
	}
	return fn(store, where)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	cacheCmd.PersistentFlags().String("cache", "", "JSON cache file (default from config)")
}
