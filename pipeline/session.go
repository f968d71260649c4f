package pipeline

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/richinex/chunkmill/diag"
	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/model"
)

// State is the lifecycle stage of a FileJob.
type State int

const (
	Pending State = iota
	Split
	Processing
	Done
	Skipped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Split:
		return "split"
	case Processing:
		return "processing"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// FileJob is one uploaded file and its processing state.
type FileJob struct {
	Name    string
	Text    string
	Chunks  []model.Chunk
	Results []model.Result
	Merged  string
	State   State
}

// Output is the merged text of one processed file.
type Output struct {
	Name string
	Text string
}

// Session holds the uploaded files and merged outputs of one user.
// Methods are safe for concurrent use.
type Session struct {
	ID string

	mu         sync.Mutex
	files      []*FileJob
	byName     map[string]*FileJob
	results    map[string]string
	processing bool
	reporter   diag.Reporter
}

// NewSession creates an empty session reporting to r (nil discards).
func NewSession(r diag.Reporter) *Session {
	return &Session{
		ID:       uuid.NewString(),
		byName:   make(map[string]*FileJob),
		results:  make(map[string]string),
		reporter: diag.OrNop(r),
	}
}

// Reporter returns the session's error sink.
func (s *Session) Reporter() diag.Reporter {
	return s.reporter
}

// Upload adds a file. A name already uploaded is ignored and Upload
// returns false.
func (s *Session) Upload(name, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return false
	}
	job := &FileJob{Name: name, Text: text}
	s.files = append(s.files, job)
	s.byName[name] = job
	return true
}

// Edit replaces the text of an uploaded file. A merged output already
// recorded under the name is kept, so a rerun still skips the file.
func (s *Session) Edit(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return fault.Validationf("cannot edit %q while processing", name)
	}
	job, ok := s.byName[name]
	if !ok {
		return fault.Validationf("file %q has not been uploaded", name)
	}
	job.Text = text
	job.State = Pending
	job.Chunks, job.Results, job.Merged = nil, nil, ""
	return nil
}

// Files returns the uploaded file names in upload order.
func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name
	}
	return names
}

// Job returns a copy of the named file's job.
func (s *Session) Job(name string) (FileJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byName[name]
	if !ok {
		return FileJob{}, false
	}
	cp := *job
	cp.Chunks = slices.Clone(job.Chunks)
	cp.Results = slices.Clone(job.Results)
	return cp, true
}

// Results returns the merged outputs in upload order.
func (s *Session) Results() []Output {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Output
	for _, f := range s.files {
		if text, ok := s.results[f.Name]; ok {
			out = append(out, Output{Name: f.Name, Text: text})
		}
	}
	return out
}

// Result returns the merged output of one file.
func (s *Session) Result(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, ok := s.results[name]
	return text, ok
}

// Processing reports whether a run is in progress.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Clear removes every file and result.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return fault.Validationf("cannot clear session while processing")
	}
	s.files = nil
	s.byName = make(map[string]*FileJob)
	s.results = make(map[string]string)
	return nil
}

// begin marks the session busy and snapshots the files to process.
func (s *Session) begin() ([]*FileJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return nil, fault.Validationf("session %s is already processing", s.ID)
	}
	s.processing = true
	return slices.Clone(s.files), nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

func (s *Session) hasResult(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[name]
	return ok
}

// update applies fn to a job under the session lock.
func (s *Session) update(job *FileJob, fn func(*FileJob)) {
	s.mu.Lock()
	fn(job)
	s.mu.Unlock()
}

func (s *Session) finish(job *FileJob, merged string) {
	s.mu.Lock()
	job.Merged = merged
	job.State = Done
	s.results[job.Name] = merged
	s.mu.Unlock()
}

// texts returns the text of each job, read under the lock.
func (s *Session) texts(jobs []*FileJob) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Text
	}
	return out
}
