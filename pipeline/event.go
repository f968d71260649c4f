package pipeline

import (
	"fmt"
	"time"
)

// EventKind identifies a progress event.
type EventKind int

const (
	// FileSplit is emitted after a file was chunked.
	FileSplit EventKind = iota
	// ChunkDone is emitted after one chunk resolved (success or failure).
	ChunkDone
	// FileMerged is emitted after a file's results were merged.
	FileMerged
	// FileSkipped is emitted for a file that already has a result.
	FileSkipped
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case FileSplit:
		return "file_split"
	case ChunkDone:
		return "chunk_done"
	case FileMerged:
		return "file_merged"
	case FileSkipped:
		return "file_skipped"
	default:
		return "unknown"
	}
}

// Event is advisory progress telemetry. File and chunk positions are 1-based.
type Event struct {
	Kind      EventKind
	File      string
	FileIndex int
	Files     int
	Chunk     int
	Chunks    int

	Step       int
	TotalSteps int
	Percent    float64
	Elapsed    time.Duration
	Remaining  time.Duration

	// Text is the chunk's output for ChunkDone and the merged text for FileMerged.
	Text   string
	Cached bool
	Failed bool
}

// String renders the event as a one-line progress message.
func (e Event) String() string {
	switch e.Kind {
	case FileSplit:
		return fmt.Sprintf("Split %s into %d chunks", e.File, e.Chunks)
	case ChunkDone:
		status := "processed"
		switch {
		case e.Failed:
			status = "failed"
		case e.Cached:
			status = "cached"
		}
		return fmt.Sprintf("Chunk %d of %d of %s %s (%.1f%%, ETA %s)",
			e.Chunk, e.Chunks, e.File, status, e.Percent, e.Remaining.Round(time.Second))
	case FileMerged:
		return fmt.Sprintf("File %d of %d processed: %s", e.FileIndex, e.Files, e.File)
	case FileSkipped:
		return fmt.Sprintf("File %d of %d already processed, skipping: %s", e.FileIndex, e.Files, e.File)
	default:
		return e.Kind.String()
	}
}

// progress derives the step counter and ETA fields.
type progress struct {
	start time.Time
	step  int
	total int
	now   func() time.Time
}

func newProgress(total int, now func() time.Time) *progress {
	return &progress{start: now(), total: total, now: now}
}

// advance adds n steps and stamps ev with the resulting telemetry.
func (p *progress) advance(n int, ev Event) Event {
	p.step += n
	elapsed := p.now().Sub(p.start)

	ev.Step = p.step
	ev.TotalSteps = p.total
	ev.Elapsed = elapsed
	if p.total > 0 {
		ev.Percent = float64(p.step) / float64(p.total) * 100
	}
	if p.step > 0 {
		estimated := time.Duration(float64(elapsed) / float64(p.step) * float64(p.total))
		ev.Remaining = max(0, estimated-elapsed)
	}
	return ev
}
