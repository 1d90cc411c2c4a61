package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gencheck/internal/driver"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the diagnostics cache",
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openProjectCache(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cache.Dir())
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openProjectCache(cmd)
		if err != nil {
			return err
		}
		if err := cache.DropAll(); err != nil {
			return fmt.Errorf("clean cache: %w", err)
		}
		quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
		if err != nil {
			return fmt.Errorf("failed to get quiet flag: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", cache.Dir())
		}
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().String("config", "", "path to gencheck.toml (default: discovered upward from the working directory)")
	cacheCmd.AddCommand(cacheDirCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}

// openProjectCache opens the cache configured by gencheck.toml.
func openProjectCache(cmd *cobra.Command) (*driver.DiskCache, error) {
	cfg, _, err := loadProjectConfig(cmd)
	if err != nil {
		return nil, err
	}
	return driver.OpenDiskCache(cfg.CacheDir())
}
