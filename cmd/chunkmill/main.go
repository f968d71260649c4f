// Package main provides the chunkmill CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/cli"
	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
)

var (
	// Global flags
	verbose bool
	logDir  string

	logger  *zap.Logger
	logFile *diag.RotatingFile
	sink    *diag.Sink
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "chunkmill",
		Short: "Run a prompt over large text files, chunk by chunk",
		Long: `Split text files into chunks, send each chunk with a prompt to an LLM
provider (OpenAI, Anthropic or Gemini), and merge the responses into one
output file per input.

Responses are cached so reruns and repeated chunks cost nothing. Failed
chunks are retried with exponential backoff and, when retries run out,
replaced by a placeholder so every file still gets an output.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("log-dir") {
				if env := os.Getenv("LOG_DIR"); env != "" {
					logDir = env
				}
			}
			logger, logFile = diag.NewLogger(diag.Options{Verbose: verbose, Dir: logDir})
			sink = diag.NewSink(logger, logFile, diag.DefaultHistoryCapacity)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			if logFile != nil {
				_ = logFile.Close()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "logs", "Directory for error_log.txt (empty disables the file)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(errorsCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes usage problems from runtime failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, fault.ErrConfiguration), errors.Is(err, fault.ErrValidation):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func runCmd() *cobra.Command {
	var opts cli.Options

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Process files with a prompt and write <name>_final.txt outputs",
		Long: `Process each file in argument order: split it into chunks, resolve every
chunk through the response cache and the provider, and write the merged
result to <sanitized name>_final.txt in the output directory.

Settings come from the environment (CHUNK_SIZE, RETRY_MAX, ...), then the
optional --config YAML file, then the flags below.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = verbose
			opts.Stdout = cmd.OutOrStdout()
			opts.Logger = logger
			opts.Sink = sink
			return cli.Run(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Provider, "provider", "p", "", "LLM provider (openai, anthropic, gemini)")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model name (defaults to the provider's default)")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "Prompt prepended to every chunk")
	cmd.Flags().StringVar(&opts.PromptFile, "prompt-file", "", "Read the prompt from a file")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "Words or sentences per chunk (default from CHUNK_SIZE, 500)")
	cmd.Flags().StringVar(&opts.ChunkBy, "chunk-by", "", "Chunking mode: "+strings.Join(chunk.Modes(), ", "))
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Chunks of a file resolved at once (default 1)")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", cli.DefaultOutDir, "Output directory")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "YAML settings file")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Do not read or write the persistent response cache")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "Override the provider API endpoint")

	return cmd
}

func cacheCmd() *cobra.Command {
	var opts cli.CacheOptions

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persistent response cache",
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "", "Cache database (default from CACHE_PATH)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached response counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Stdout = cmd.OutOrStdout()
			return cli.CacheStats(cmd.Context(), opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Stdout = cmd.OutOrStdout()
			return cli.CacheClear(cmd.Context(), opts)
		},
	})

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers, API key variables and models",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cli.ListProviders(cmd.OutOrStdout())
		},
	}
}

func errorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Manage the error log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty error_log.txt in the log directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ClearErrors(logDir, cmd.OutOrStdout())
		},
	})
	return cmd
}
