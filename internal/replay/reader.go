package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/shot"
	"minigolf/engine/internal/simulation"
)

// FrameEntry is one decoded frame record.
type FrameEntry struct {
	Tick        int               `json:"tick"`
	SimulatedMs int64             `json:"simulated_ms"`
	CapturedAt  time.Time         `json:"captured_at"`
	State       physics.BallState `json:"state"`
}

// EventEntry is one decoded event line.
type EventEntry struct {
	SimulatedMs int64      `json:"simulated_ms"`
	CapturedAt  time.Time  `json:"captured_at"`
	Event       shot.Event `json:"event"`
}

// Bundle is a fully decoded recorded shot.
type Bundle struct {
	Dir      string       `json:"dir"`
	Manifest Manifest     `json:"manifest"`
	Header   Header       `json:"header"`
	Events   []EventEntry `json:"events"`
	Frames   []FrameEntry `json:"frames"`
}

// ReadBundle decodes every artefact of a bundle directory.
func ReadBundle(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Dir: dir}
	if err := json.Unmarshal(data, &bundle.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	headerPath := bundle.Manifest.HeaderPath
	if headerPath == "" {
		headerPath = headerFile
	}
	if bundle.Header, err = ReadHeader(filepath.Join(dir, headerPath)); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if bundle.Events, err = readEvents(filepath.Join(dir, bundle.Manifest.EventsPath)); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	if bundle.Frames, err = readFrames(filepath.Join(dir, bundle.Manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return bundle, nil
}

func readEvents(path string) ([]EventEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []EventEntry
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		entries = append(entries, EventEntry{SimulatedMs: record.SimulatedMs, CapturedAt: captured, Event: record.Event})
	}
	return entries, scanner.Err()
}

func readFrames(path string) ([]FrameEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var frames []FrameEntry
	header := make([]byte, frameRecordHeaderSize)
	for {
		if _, err := io.ReadFull(decoder, header); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return nil, fmt.Errorf("frame header: %w", err)
		}
		size := binary.LittleEndian.Uint32(header[24:28])
		if size != StatePayloadSize {
			return nil, fmt.Errorf("frame payload length %d", size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, fmt.Errorf("frame payload: %w", err)
		}
		state, err := DecodeState(payload)
		if err != nil {
			return nil, err
		}
		frames = append(frames, FrameEntry{
			Tick:        int(binary.LittleEndian.Uint64(header[0:8])),
			SimulatedMs: int64(binary.LittleEndian.Uint64(header[8:16])),
			CapturedAt:  time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))).UTC(),
			State:       state,
		})
	}
}

// Verify re-simulates the shot from its hit event against c and reports the first
// frame that differs from the recording. The simulation is deterministic, so any
// difference means the bundle does not belong to this course and physics.
func (b *Bundle) Verify(c course.Course) error {
	if b == nil {
		return fmt.Errorf("bundle not loaded")
	}
	if want := strconv.FormatUint(c.Fingerprint(), 16); want != b.Header.Course.Fingerprint {
		return fmt.Errorf("course fingerprint %s does not match recording %s", want, b.Header.Course.Fingerprint)
	}
	var start *shot.Event
	for i := range b.Events {
		if b.Events[i].Event.Type == shot.EventHit {
			start = &b.Events[i].Event
			break
		}
	}
	if start == nil {
		return fmt.Errorf("recording has no hit event")
	}
	controller := simulation.NewController(b.Header.Physics, c.Obstacles(), c.Hole)
	state := start.State
	for _, frame := range b.Frames {
		state = controller.Advance(state).State
		if state != frame.State {
			return fmt.Errorf("tick %d diverged: recorded %+v, simulated %+v", frame.Tick, frame.State, state)
		}
	}
	return nil
}
