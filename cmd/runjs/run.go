package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caffeineduck/runjs/executor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a script",
		Long: `Execute a JavaScript or TypeScript script.

Code can be provided via:
  - File argument: runjs run script.ts
  - Inline flag: runjs run -c 'console.log(1 + 1)'
  - Stdin: echo 'console.log(1 + 1)' | runjs run

Top-level await is supported. Files ending in .ts, .mts, .cts or .tsx are
transpiled before they run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	addSessionFlags(cmd)
}

// readScript picks the script source from the code flag, a file argument or
// piped stdin. ok is false when none was given.
func readScript(cmd *cobra.Command, args []string) (script executor.Script, ok bool, err error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return executor.Script{Name: "eval.js", Source: code}, true, nil
	case len(args) > 0:
		script, err := executor.LoadScript(args[0])
		if err != nil {
			return executor.Script{}, false, err
		}
		return script, true, nil
	}

	in := cmd.InOrStdin()
	if f, isFile := in.(*os.File); isFile {
		// No piped input
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return executor.Script{}, false, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return executor.Script{}, false, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return executor.Script{}, false, nil
	}
	return executor.Script{Name: "stdin.js", Source: string(data)}, true, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	script, ok, err := readScript(cmd, args)
	if err != nil {
		return err
	}
	if !ok {
		return cmd.Help()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	execOpts, err := cfg.ExecutorOptions(logger)
	if err != nil {
		return err
	}
	exec, err := executor.New(execOpts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	stderr := cmd.ErrOrStderr()
	var reported bool
	sessionOpts := append(cfg.SessionOptions(),
		executor.WithStdout(cmd.OutOrStdout()),
		executor.WithStderr(stderr),
		executor.WithErrorSink(func(err error) {
			reported = true
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result := exec.Run(ctx, script, sessionOpts...)
	logger.Debug("run finished",
		zap.String("session", result.SessionID),
		zap.Duration("duration", result.Duration),
		zap.Int64("operations", result.Operations))

	if result.TimedOut {
		fmt.Fprintf(stderr, "Warning: pending operations cancelled after %v\n", cfg.DrainTimeout)
	}
	if result.Error != nil {
		if !reported {
			return result.Error
		}
		return errScriptFailed
	}
	return nil
}

