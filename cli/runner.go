// Command execution for CLI commands.
//
// Information Hiding:
// - Settings resolution order (environment, config file, flags) hidden
// - Cache backend selection and fallback hidden
// - Output naming and formatting hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/chunkmill/cache"
	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/config"
	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/llm"
	"github.com/richinex/chunkmill/pipeline"
	"github.com/richinex/chunkmill/storage"
)

// Options holds CLI execution options. Zero-valued fields fall back to
// the environment and config file.
type Options struct {
	Provider    string
	Model       string
	Prompt      string
	PromptFile  string
	ChunkSize   int
	ChunkBy     string
	Concurrency int
	OutDir      string
	ConfigFile  string
	NoCache     bool
	// BaseURL overrides the provider endpoint (proxies, gateways).
	BaseURL string
	Verbose bool

	// Stdout receives progress and listings; nil selects os.Stdout.
	Stdout io.Writer
	Logger *zap.Logger
	Sink   *diag.Sink
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) sink() *diag.Sink {
	if o.Sink == nil {
		return diag.NewSink(o.logger(), nil, 0)
	}
	return o.Sink
}

// DefaultOutDir is where merged outputs are written.
const DefaultOutDir = "."

// Run processes files in argument order and writes one
// <name>_final.txt per file into opts.OutDir.
func Run(ctx context.Context, paths []string, opts Options) error {
	if len(paths) == 0 {
		return fault.Validationf("at least one input file is required")
	}
	out := opts.stdout()
	logger := opts.logger()
	sink := opts.sink()

	settings, err := ResolveSettings(opts)
	if err != nil {
		return err
	}
	prompt, err := resolvePrompt(opts, settings)
	if err != nil {
		return err
	}

	provider, err := createProvider(settings, opts.BaseURL, sink)
	if err != nil {
		return err
	}

	store, closeStore := openStore(settings, opts.NoCache, sink, logger)
	defer closeStore()
	responses := cache.New(store, cache.WithReporter(sink))

	sess := pipeline.NewSession(sink)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				sink.Report(diag.FileNotFound, fmt.Sprintf("File not found: %s", path))
				return fault.Validationf("input file %s not found", path)
			}
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !sess.Upload(filepath.Base(path), string(data)) {
			logger.Warn("duplicate file name ignored", zap.String("path", path))
		}
	}

	logger.Info("processing started",
		zap.String("session", sess.ID),
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.Int("files", len(sess.Files())),
		zap.Int("chunk_size", settings.Chunking.Size),
		zap.Stringer("chunk_by", settings.Chunking.By))

	run := pipeline.Settings{
		Prompt:         prompt,
		ChunkSize:      settings.Chunking.Size,
		Mode:           settings.Chunking.By,
		Retry:          settings.RetryPolicy(sink),
		RequestTimeout: settings.Runtime.RequestTimeout,
		Concurrency:    settings.Runtime.Concurrency,
	}

	p := pipeline.New(provider, pipeline.WithCache(responses), pipeline.WithReporter(sink))
	err = p.Process(ctx, sess, run, func(ev pipeline.Event) {
		fmt.Fprintln(out, ev.String())
		if opts.Verbose && ev.Kind == pipeline.ChunkDone {
			fmt.Fprintf(out, "  Response: %s\n", truncateString(ev.Text, maxEchoLen))
		}
	})
	interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !interrupted {
		return err
	}
	runErr := err

	// Files merged before an interruption still get their outputs.
	written, err := WriteOutputs(opts.OutDir, sess.Results())
	if err != nil {
		sink.Report(classifyWrite(err), err.Error())
		return err
	}
	for _, path := range written {
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	if runErr != nil {
		logger.Warn("processing interrupted",
			zap.String("session", sess.ID),
			zap.Int("written", len(written)),
			zap.Error(runErr))
		return runErr
	}

	stats := responses.Stats()
	logger.Info("processing finished",
		zap.String("session", sess.ID),
		zap.Int64("cache_hits", stats.Hits),
		zap.Int64("cache_misses", stats.Misses),
		zap.Int("errors", sink.Len()))

	PrintErrors(out, sink, diag.DefaultHistoryView)
	return nil
}

// ResolveSettings loads settings from the environment, overlays the config
// file and then the explicit flags.
func ResolveSettings(opts Options) (config.Settings, error) {
	if opts.Provider == "" && opts.ConfigFile == "" {
		return config.Settings{}, fault.Configurationf("--provider is required (one of %s)",
			strings.Join(config.SupportedProviders(), ", "))
	}

	base := opts.Provider
	if base == "" {
		base = "openai"
	}
	settings, err := config.New(base)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.ConfigFile != "" {
		if err := config.LoadFile(opts.ConfigFile, &settings); err != nil {
			return config.Settings{}, err
		}
	}

	if opts.Provider != "" {
		kind, err := llm.ParseProviderType(opts.Provider)
		if err != nil {
			return config.Settings{}, err
		}
		if kind.String() != settings.LLM.Provider {
			model, err := config.ModelFor(kind.String())
			if err != nil {
				return config.Settings{}, err
			}
			settings.LLM.Provider, settings.LLM.Model = kind.String(), model
		}
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}
	if opts.ChunkSize != 0 {
		settings.Chunking.Size = opts.ChunkSize
	}
	if opts.ChunkBy != "" {
		mode, err := chunk.ParseMode(opts.ChunkBy)
		if err != nil {
			return config.Settings{}, err
		}
		settings.Chunking.By = mode
	}
	if opts.Concurrency != 0 {
		settings.Runtime.Concurrency = opts.Concurrency
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func resolvePrompt(opts Options, settings config.Settings) (string, error) {
	switch {
	case opts.Prompt != "" && opts.PromptFile != "":
		return "", fault.Validationf("--prompt and --prompt-file are mutually exclusive")
	case opts.Prompt != "":
		return opts.Prompt, nil
	case opts.PromptFile != "":
		data, err := os.ReadFile(opts.PromptFile)
		if err != nil {
			return "", fault.Validationf("failed to read prompt file: %v", err)
		}
		return string(data), nil
	default:
		return settings.Prompt, nil
	}
}

func createProvider(settings config.Settings, baseURL string, reporter diag.Reporter) (llm.Provider, error) {
	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	builder, err := settings.ProviderBuilder()
	if err != nil {
		return nil, err
	}
	builder = builder.Reporter(reporter)
	if baseURL != "" {
		builder = builder.BaseURL(baseURL)
	}
	return builder.APIKey(apiKey)
}

// openStore returns the persistent store, or an in-memory one when
// persistence is disabled or cannot be opened.
func openStore(settings config.Settings, noCache bool, reporter diag.Reporter, logger *zap.Logger) (storage.ResponseStorage, func()) {
	memory := func() (storage.ResponseStorage, func()) {
		return storage.NewInMemoryStorage(settings.Cache.MaxEntries), func() {}
	}
	if noCache || !settings.Cache.Persist {
		return memory()
	}

	store, err := storage.OpenSqlite(settings.Cache.Path)
	if err != nil {
		reporter.Report(diag.StorageError, fmt.Sprintf("Persistent cache unavailable, using memory: %v", err))
		return memory()
	}
	logger.Debug("persistent cache opened", zap.String("path", settings.Cache.Path))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close cache", zap.Error(err))
		}
	}
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\r\n]+`)

// SanitizeFileName replaces runs of characters that are invalid in file
// names with a single underscore.
func SanitizeFileName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// OutputName returns the merged output file name for an input name.
func OutputName(name string) string {
	return SanitizeFileName(name) + "_final.txt"
}

// WriteOutputs writes each output into dir and returns the written paths.
func WriteOutputs(dir string, outputs []pipeline.Output) ([]string, error) {
	if dir == "" {
		dir = DefaultOutDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", fault.MarkLocalResource(err))
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, OutputName(o.Name))
		if err := os.WriteFile(path, []byte(o.Text), 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, fault.MarkLocalResource(err))
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func classifyWrite(err error) diag.Classification {
	if fault.IsLocalResource(err) {
		return diag.StorageError
	}
	return diag.ProcessingError
}

// PrintErrors writes the newest n reported errors, each followed by its
// user-facing suggestion once per classification.
func PrintErrors(w io.Writer, sink *diag.Sink, n int) {
	entries := sink.History(n)
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(w, "\n--- Errors (%d, newest first) ---\n", len(entries))
	var seen []diag.Classification
	for _, e := range entries {
		fmt.Fprintln(w, e.String())
		if !slices.Contains(seen, e.Classification) {
			seen = append(seen, e.Classification)
		}
	}
	fmt.Fprintln(w)
	for _, c := range seen {
		fmt.Fprintf(w, "%s: %s\n", c, diag.MessageFor(c))
	}
}

// CacheOptions selects the persistent cache to inspect.
type CacheOptions struct {
	Path   string
	Stdout io.Writer
}

func (o CacheOptions) resolve() (string, io.Writer, error) {
	path := o.Path
	if path == "" {
		settings, err := config.New("openai")
		if err != nil {
			return "", nil, err
		}
		path = settings.Cache.Path
	}
	w := o.Stdout
	if w == nil {
		w = os.Stdout
	}
	return path, w, nil
}

// CacheStats prints the persistent cache summary.
func CacheStats(ctx context.Context, opts CacheOptions) error {
	path, w, err := opts.resolve()
	if err != nil {
		return err
	}
	store, err := storage.OpenSqlite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summarize(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Cache: %s\n", path)
	fmt.Fprintf(w, "Entries: %d\n", sum.Entries)
	fmt.Fprintf(w, "Hits: %d\n", sum.TotalHits)
	providers := make([]string, 0, len(sum.ByProvider))
	for name := range sum.ByProvider {
		providers = append(providers, name)
	}
	slices.Sort(providers)
	for _, name := range providers {
		fmt.Fprintf(w, "  %-10s %d\n", name, sum.ByProvider[name])
	}
	return nil
}

// CacheClear removes every persisted response.
func CacheClear(ctx context.Context, opts CacheOptions) error {
	path, w, err := opts.resolve()
	if err != nil {
		return err
	}
	store, err := storage.OpenSqlite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	c := cache.New(store)
	n, err := c.Len(ctx)
	if err != nil {
		return err
	}
	if err := c.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %d cached responses from %s\n", n, path)
	return nil
}

// ClearErrors empties the error log in dir.
func ClearErrors(dir string, w io.Writer) error {
	if dir == "" {
		return fault.Validationf("no log directory configured")
	}
	if w == nil {
		w = os.Stdout
	}
	file := diag.NewRotatingFile(dir, 0)
	defer file.Close()

	if err := diag.NewSink(nil, file, 0).Clear(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %s\n", file.Path())
	return nil
}

// ListProviders prints every provider with its key variable and models.
func ListProviders(w io.Writer) {
	for _, p := range llm.ProviderTypes() {
		fmt.Fprintf(w, "%s (%s)\n", p.DisplayName(), p)
		fmt.Fprintf(w, "  API key: %s\n", p.EnvVar())
		fmt.Fprintf(w, "  Default model: %s\n", p.DefaultModel())
		fmt.Fprintf(w, "  Models: %s\n", strings.Join(p.Models(), ", "))
	}
}

const maxEchoLen = 200

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !isRuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
