// Package pipeline provides the orchestrator that turns uploaded files into
// merged provider outputs.
//
// Information Hiding:
// - Chunk resolution order (cache, then retry-wrapped provider call) hidden
// - Per-chunk failure collapse to the failure marker hidden
// - Sequential and bounded-concurrent dispatch hidden behind one event stream
// - Step accounting and ETA estimation hidden

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/chunkmill/cache"
	"github.com/richinex/chunkmill/chunk"
	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/llm"
	"github.com/richinex/chunkmill/model"
)

// Pipeline resolves every chunk of a session's files through the cache
// and the retry-wrapped provider.
type Pipeline struct {
	provider llm.Provider
	cache    *cache.Cache
	reporter diag.Reporter
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache sets the response cache. The default is a fresh in-memory cache.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithReporter overrides the session reporter for chunk failures.
func WithReporter(r diag.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// New creates a pipeline calling provider. A nil provider is accepted and
// rejected by Run with a configuration error.
func New(provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{provider: provider, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = cache.New(nil)
	}
	return p
}

// Cache returns the pipeline's response cache.
func (p *Pipeline) Cache() *cache.Cache {
	return p.cache
}

// errStopped ends a run whose consumer stopped iterating.
var errStopped = errors.New("pipeline: consumer stopped")

// run is the state of one Run invocation.
type run struct {
	*Pipeline
	sess     *Session
	settings Settings
	reporter diag.Reporter
	progress *progress
	yield    func(Event, error) bool
}

// Run returns the lazy progress sequence of processing sess.
//
// Settings and provider problems are yielded as a single error before any
// chunk work. A chunk that cannot be resolved contributes the failure
// marker and never aborts its file. Cancellation of ctx is checked before
// every file and chunk and is yielded as the final error. Stopping the
// iteration early cancels in-flight work.
func (p *Pipeline) Run(ctx context.Context, sess *Session, s Settings) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if err := s.Validate(); err != nil {
			yield(Event{}, err)
			return
		}
		if p.provider == nil {
			yield(Event{}, fault.Configurationf("no provider configured"))
			return
		}
		jobs, err := sess.begin()
		if err != nil {
			yield(Event{}, err)
			return
		}
		defer sess.end()

		reporter := p.reporter
		if reporter == nil {
			reporter = sess.Reporter()
		}
		if s.Retry.Reporter == nil {
			s.Retry.Reporter = reporter
		}

		r := &run{
			Pipeline: p,
			sess:     sess,
			settings: s,
			reporter: reporter,
			progress: newProgress(TotalSteps(sess.texts(jobs), s.ChunkSize, s.Mode), p.now),
			yield:    yield,
		}

		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}
			if err := r.processFile(ctx, i, len(jobs), job); err != nil {
				if !errors.Is(err, errStopped) {
					yield(Event{}, err)
				}
				return
			}
		}
	}
}

// Process runs the pipeline to completion, passing each event to onEvent
// (nil ignores them). It returns the first error Run yields.
func (p *Pipeline) Process(ctx context.Context, sess *Session, s Settings, onEvent func(Event)) error {
	for ev, err := range p.Run(ctx, sess, s) {
		if err != nil {
			return err
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
	return nil
}

// emit stamps ev with progress and hands it to the consumer.
func (r *run) emit(steps int, ev Event) error {
	if !r.yield(r.progress.advance(steps, ev), nil) {
		return errStopped
	}
	return nil
}

func (r *run) processFile(ctx context.Context, index, files int, job *FileJob) error {
	base := Event{File: job.Name, FileIndex: index + 1, Files: files}

	if r.sess.hasResult(job.Name) {
		n := chunk.Count(job.Text, r.settings.ChunkSize, r.settings.Mode)
		r.sess.update(job, func(j *FileJob) { j.State = Skipped })
		ev := base
		ev.Kind = FileSkipped
		ev.Chunks = n
		return r.emit(n+2, ev)
	}

	chunks := chunk.Chunks(job.Text, r.settings.ChunkSize, r.settings.Mode)
	results := make([]model.Result, len(chunks))
	r.sess.update(job, func(j *FileJob) {
		j.Chunks = chunks
		j.Results = nil
		j.State = Split
	})
	base.Chunks = len(chunks)

	ev := base
	ev.Kind = FileSplit
	if err := r.emit(1, ev); err != nil {
		return err
	}

	r.sess.update(job, func(j *FileJob) { j.State = Processing })
	emitChunk := func(o chunkOutcome) error {
		results[o.index] = o.res
		ev := base
		ev.Kind = ChunkDone
		ev.Chunk = o.index + 1
		ev.Text = o.res.Text
		ev.Cached = o.cached
		ev.Failed = o.res.Failed
		return r.emit(1, ev)
	}

	var err error
	if r.settings.Concurrency > 1 && len(chunks) > 1 {
		err = r.resolveConcurrent(ctx, job.Name, chunks, emitChunk)
	} else {
		err = r.resolveSequential(ctx, job.Name, chunks, emitChunk)
	}
	if err != nil {
		return err
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	merged := strings.Join(texts, "\n")
	r.sess.update(job, func(j *FileJob) { j.Results = results })
	r.sess.finish(job, merged)

	ev = base
	ev.Kind = FileMerged
	ev.Text = merged
	return r.emit(1, ev)
}

// chunkOutcome is one resolved chunk, tagged with its position.
type chunkOutcome struct {
	index  int
	res    model.Result
	cached bool
}

func (r *run) resolveSequential(ctx context.Context, file string, chunks []model.Chunk, emit func(chunkOutcome) error) error {
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := r.resolve(ctx, file, c)
		if err != nil {
			return err
		}
		if err := emit(o); err != nil {
			return err
		}
	}
	return nil
}

// resolveConcurrent dispatches chunks through a bounded errgroup. Outcomes
// come back over a channel so events are emitted from the calling goroutine;
// results are placed by index, not completion order.
func (r *run) resolveConcurrent(ctx context.Context, file string, chunks []model.Chunk, emit func(chunkOutcome) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.settings.Concurrency)
	outcomes := make(chan chunkOutcome)

	var waitErr error
	go func() {
		defer close(outcomes)
		for _, c := range chunks {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o, err := r.resolve(gctx, file, c)
				if err != nil {
					return err
				}
				select {
				case outcomes <- o:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr = g.Wait()
	}()

	var emitErr error
	for o := range outcomes {
		if emitErr != nil {
			continue
		}
		if err := emit(o); err != nil {
			emitErr = err
			cancel()
		}
	}
	if emitErr != nil {
		return emitErr
	}
	if waitErr != nil {
		// Parent cancellation surfaces as the parent's error.
		if err := ctx.Err(); err != nil {
			return err
		}
		return waitErr
	}
	return ctx.Err()
}

// resolve returns the result for one chunk. Only context errors are
// returned; every other failure becomes the failure marker and a report.
func (r *run) resolve(ctx context.Context, file string, c model.Chunk) (chunkOutcome, error) {
	if err := ctx.Err(); err != nil {
		return chunkOutcome{}, err
	}

	req := model.Request{
		Provider: r.provider.Name(),
		Model:    r.provider.Model(),
		Prompt:   r.settings.Prompt,
		Chunk:    c.Text,
	}
	label := fmt.Sprintf("chunk %d of %s", c.Index+1, file)

	res, cached, err := r.cache.GetOrCompute(ctx, req, func(ctx context.Context) (model.Result, error) {
		res, err := r.settings.Retry.Run(ctx, label, func(ctx context.Context) (string, error) {
			return r.generate(ctx, req)
		})
		if err != nil {
			if isCanceled(ctx, err) {
				return model.Result{}, err
			}
			r.reporter.Report(classify(err), fmt.Sprintf("Error processing %s: %v", label, err))
			return model.Failure(), nil
		}
		return res, nil
	})
	if err != nil {
		if isCanceled(ctx, err) {
			return chunkOutcome{}, err
		}
		r.reporter.Report(classify(err), fmt.Sprintf("Error processing %s: %v", label, err))
		return chunkOutcome{index: c.Index, res: model.Failure()}, nil
	}
	return chunkOutcome{index: c.Index, res: res, cached: cached}, nil
}

// generate performs one provider attempt under the request timeout.
func (r *run) generate(ctx context.Context, req model.Request) (string, error) {
	if r.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.RequestTimeout)
		defer cancel()
	}
	return r.provider.Generate(ctx, req.Prompt, req.Chunk)
}

// isCanceled reports whether err stems from ctx being done.
func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// classify maps a chunk failure to its reporting classification.
func classify(err error) diag.Classification {
	var perr *llm.ProviderError
	switch {
	case fault.IsLocalResource(err):
		return diag.StorageError
	case errors.As(err, &perr):
		return diag.APIError
	case errors.Is(err, fault.ErrConfiguration), errors.Is(err, fault.ErrValidation):
		return diag.InvalidInput
	default:
		return diag.ProcessingError
	}
}
