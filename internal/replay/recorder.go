package replay

import (
	"sync"
	"time"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/shot"
)

// Stats summarises recorder activity for monitoring endpoints.
type Stats struct {
	Recording  bool      `json:"recording"`
	Bundles    int64     `json:"bundles"`
	Failures   int64     `json:"failures"`
	LastBundle string    `json:"last_bundle,omitempty"`
	LastClosed time.Time `json:"last_closed,omitempty"`
}

// Recorder is a shot.Sink that writes every stroke to its own bundle. A hit opens a
// bundle and holed, stopped or reset closes it.
type Recorder struct {
	mu      sync.Mutex
	root    string
	course  course.Course
	physics physics.Config
	tickHz  float64
	now     func() time.Time
	cleaner *Cleaner
	log     *logging.Logger

	current *Writer
	stats   Stats
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the clock used for bundle names and capture times.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithCleaner runs a retention sweep after every closed bundle.
func WithCleaner(cleaner *Cleaner) RecorderOption {
	return func(r *Recorder) {
		r.cleaner = cleaner
	}
}

// WithRecorderLogger overrides the global logger.
func WithRecorderLogger(logger *logging.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.log = logger
		}
	}
}

// NewRecorder records shots played on c with cfg into root.
func NewRecorder(root string, c course.Course, cfg physics.Config, tickHz float64, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		root:    root,
		course:  c,
		physics: cfg,
		tickHz:  tickHz,
		now:     time.Now,
		log:     logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// PublishFrame appends the frame to the open bundle, if any.
func (r *Recorder) PublishFrame(frame shot.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	if err := r.current.AppendFrame(frame); err != nil {
		r.failLocked("append frame", err)
	}
}

// PublishEvent drives the bundle lifecycle.
func (r *Recorder) PublishEvent(event shot.Event) {
	r.mu.Lock()
	closed := false
	switch event.Type {
	case shot.EventHit:
		//1.- A new stroke always starts a new bundle.
		r.closeLocked("abandoned")
		writer, _, err := NewWriter(r.root, event.SessionID, event.Shot, r.course, r.physics, r.tickHz, r.now)
		if err != nil {
			r.failLocked("open bundle", err)
			break
		}
		r.current = writer
		r.stats.Recording = true
		r.appendLocked(event)
	case shot.EventBounce:
		r.appendLocked(event)
	case shot.EventHoled, shot.EventStopped:
		r.appendLocked(event)
		closed = r.closeLocked(string(event.Type))
	case shot.EventReset:
		closed = r.closeLocked("reset")
	}
	r.mu.Unlock()

	if closed {
		r.cleaner.RunOnce()
	}
}

// Stats copies the recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close finishes any open bundle.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close("shutdown")
	r.current = nil
	r.stats.Recording = false
	return err
}

func (r *Recorder) appendLocked(event shot.Event) {
	if r.current == nil {
		return
	}
	if err := r.current.AppendEvent(event); err != nil {
		r.failLocked("append event", err)
	}
}

func (r *Recorder) closeLocked(outcome string) bool {
	if r.current == nil {
		return false
	}
	writer := r.current
	r.current = nil
	r.stats.Recording = false
	if err := writer.Close(outcome); err != nil {
		r.failLocked("close bundle", err)
		return false
	}
	r.stats.Bundles++
	r.stats.LastBundle = writer.Directory()
	r.stats.LastClosed = r.now().UTC()
	r.log.Debug("replay bundle written", logging.String("bundle", writer.Directory()), logging.String("outcome", outcome))
	return true
}

func (r *Recorder) failLocked(op string, err error) {
	r.stats.Failures++
	r.log.Warn("replay recording failed", logging.String("op", op), logging.Error(err))
}
