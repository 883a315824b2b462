// Package replayplayer loads recorded shots for inspection and re-verification.
package replayplayer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/replay"
	"minigolf/engine/internal/shot"
)

// Summary condenses a bundle into the facts operators usually look for.
type Summary struct {
	Dir         string            `json:"dir"`
	SessionID   string            `json:"session_id"`
	Shot        int               `json:"shot"`
	Course      string            `json:"course"`
	Outcome     string            `json:"outcome"`
	Frames      int               `json:"frames"`
	Bounces     int               `json:"bounces"`
	SimulatedMs int64             `json:"simulated_ms"`
	Launch      shot.Aim          `json:"launch"`
	Final       physics.BallState `json:"final"`
}

// Load accepts either a bundle directory or the path of its manifest.json.
func Load(path string) (*replay.Bundle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	//1.- Resolve manifest paths to their directory so relative asset paths keep working.
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	return replay.ReadBundle(dir)
}

// Summarise reports the launch aim, outcome and final state of a bundle.
func Summarise(b *replay.Bundle) Summary {
	summary := Summary{
		Dir:       b.Dir,
		SessionID: b.Header.SessionID,
		Shot:      b.Header.Shot,
		Course:    b.Header.Course.Name,
		Outcome:   b.Header.Outcome,
		Frames:    len(b.Frames),
	}
	for _, entry := range b.Events {
		switch entry.Event.Type {
		case shot.EventHit:
			summary.Launch = entry.Event.Aim
			summary.Final = entry.Event.State
		case shot.EventBounce:
			summary.Bounces++
		}
	}
	if n := len(b.Frames); n > 0 {
		summary.Final = b.Frames[n-1].State
		summary.SimulatedMs = b.Frames[n-1].SimulatedMs
	}
	return summary
}

// Verify re-simulates the bundle against the course stored at coursePath. An empty path
// selects the reference course.
func Verify(b *replay.Bundle, coursePath string) error {
	c, err := course.Load(coursePath)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}
	return b.Verify(c)
}
