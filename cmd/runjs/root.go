package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/runjs/internal/config"
	"github.com/spf13/cobra"
)

// errScriptFailed is returned once the script's own errors have been printed.
var errScriptFailed = errors.New("script failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "runjs [file]",
		Short: "Run JavaScript and TypeScript with curated host capabilities",
		Long: `runjs - Run JavaScript and TypeScript with file and network access
granted explicitly by the host.

Scripts see console.log, console.error and the runjs namespace:
runjs.readFile, runjs.writeFile, runjs.removeFile and runjs.fetch.
File access is limited to mounted directories and fetch to allowed hosts.

Settings are read from RUNJS_* environment variables and an optional .env
file. Flags override both.`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runRun, // Default to run command behavior
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("env-file", "", "Read settings from this env file (default .env when present)")

	addRunFlags(root)
	root.AddCommand(newRunCmd(), newServeCmd())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errScriptFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 30*time.Second, "Session timeout, 0 disables")
	cmd.Flags().Duration("drain-timeout", 0, "Max wait for pending operations after the script returns, 0 waits indefinitely")
	cmd.Flags().Int("workers", 8, "Host operations run at once per session")
	cmd.Flags().StringSlice("allow-host", nil, "Allow fetch to host (repeatable)")
	cmd.Flags().Bool("allow-net", false, "Allow fetch to any host")
	cmd.Flags().StringSlice("mount", []string{"/:.:rwc"}, "Mount filesystem virtual:host:mode (repeatable)")

	// Security limits
	cmd.Flags().Int("http-max-url", 8192, "Max fetch URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max fetch response body size")
	cmd.Flags().Int64("fs-max-file", 10*1024*1024, "Max file read size")
	cmd.Flags().Int64("fs-max-write", 10*1024*1024, "Max file write size")
	cmd.Flags().Int("fs-max-path", 4096, "Max path length")
}

// loadConfig reads the environment and applies every flag the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("drain-timeout") {
		cfg.DrainTimeout, _ = flags.GetDuration("drain-timeout")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("allow-host") {
		cfg.AllowedHosts, _ = flags.GetStringSlice("allow-host")
	}
	if flags.Changed("allow-net") {
		cfg.AllowNet, _ = flags.GetBool("allow-net")
	}
	if flags.Changed("mount") {
		cfg.Mounts, _ = flags.GetStringSlice("mount")
	}
	if flags.Changed("http-max-url") {
		cfg.HTTPMaxURLLength, _ = flags.GetInt("http-max-url")
	}
	if flags.Changed("http-max-body") {
		cfg.HTTPMaxBodySize, _ = flags.GetInt64("http-max-body")
	}
	if flags.Changed("fs-max-file") {
		cfg.FSMaxFileSize, _ = flags.GetInt64("fs-max-file")
	}
	if flags.Changed("fs-max-write") {
		cfg.FSMaxWriteSize, _ = flags.GetInt64("fs-max-write")
	}
	if flags.Changed("fs-max-path") {
		cfg.FSMaxPathLength, _ = flags.GetInt("fs-max-path")
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
