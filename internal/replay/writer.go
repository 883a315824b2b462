package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/shot"
)

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	manifestFile = "manifest.json"
	headerFile   = "header.json"
	eventsFile   = "events.jsonl.sz"
	framesFile   = "frames.bin.zst"

	// frameRecordHeaderSize is tick, simulated ms, capture time and payload length.
	frameRecordHeaderSize = 8 + 8 + 8 + 4
)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int     `json:"version"`
	CreatedAt  string  `json:"created_at"`
	TickHz     float64 `json:"tick_hz"`
	EventsPath string  `json:"events_path"`
	FramesPath string  `json:"frames_path"`
	HeaderPath string  `json:"header_path"`
}

// Writer streams one shot to a bundle directory: a snappy JSONL event log and a zstd
// stream of length-prefixed binary frames.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	tickHz      float64
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	header      Header
	closed      bool
}

// NewWriter creates the bundle directory for one shot of a session.
func NewWriter(root, sessionID string, shotNumber int, c course.Course, cfg physics.Config, tickHz float64, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if tickHz <= 0 {
		tickHz = 60
	}

	cleaned := bundleNameCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-shot%03d-%s", cleaned, shotNumber, created.Format("20060102T150405.000Z"))
	path := filepath.Join(root, folder)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:    1,
		CreatedAt:  created.Format(time.RFC3339Nano),
		TickHz:     tickHz,
		EventsPath: eventsFile,
		FramesPath: framesFile,
		HeaderPath: headerFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, manifestFile), data, 0o644); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(path, framesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		now:         clock,
		tickHz:      tickHz,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
		header: Header{
			SchemaVersion: HeaderSchemaVersion,
			SessionID:     sessionID,
			Shot:          shotNumber,
			Course:        CourseInfo{Name: c.Name, Fingerprint: strconv.FormatUint(c.Fingerprint(), 16)},
			Physics:       cfg,
			FilePointer:   manifestFile,
		},
	}
	return writer, manifest, nil
}

// Directory exposes the directory backing the bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

func (w *Writer) simulatedMs(tick int) int64 {
	return int64(float64(tick) * 1000 / w.tickHz)
}

// AppendEvent writes one JSON line to the compressed event log.
func (w *Writer) AppendEvent(event shot.Event) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	record := eventRecord{
		SimulatedMs: w.simulatedMs(event.Tick),
		CapturedAt:  captured.Format(time.RFC3339Nano),
		Event:       event,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	//1.- Flush per line so a crash loses at most the frame stream tail.
	return w.eventStream.Flush()
}

// AppendFrame writes one length-prefixed frame record.
func (w *Writer) AppendFrame(frame shot.Frame) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	payload := EncodeState(frame.State)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	header := make([]byte, frameRecordHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], uint64(frame.Tick))
	binary.LittleEndian.PutUint64(header[8:16], uint64(w.simulatedMs(frame.Tick)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(captured.UnixNano()))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(payload)))
	if _, err := w.frameStream.Write(header); err != nil {
		return err
	}
	if _, err := w.frameStream.Write(payload); err != nil {
		return err
	}
	w.header.Frames++
	return nil
}

// Close writes the header with the shot outcome and releases the streams. Further
// calls are no-ops.
func (w *Writer) Close(outcome string) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.header.Outcome = outcome

	//1.- Attempt every close so no handle leaks, then report all failures together.
	return errors.Join(
		WriteHeader(filepath.Join(w.dir, headerFile), w.header),
		w.eventStream.Close(),
		w.eventFile.Close(),
		w.frameStream.Close(),
		w.frameFile.Close(),
	)
}

type eventRecord struct {
	SimulatedMs int64      `json:"simulated_ms"`
	CapturedAt  string     `json:"captured_at"`
	Event       shot.Event `json:"event"`
}
