package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"minigolf/engine/internal/replay"
)

// Entry captures a replay header alongside its bundle directory.
type Entry struct {
	HeaderPath string        `json:"header_path"`
	BundleDir  string        `json:"bundle_dir"`
	FramesPath string        `json:"frames_path"`
	Header     replay.Header `json:"header"`
}

// List walks the directory tree and returns parsed replay headers ordered by session
// and shot number.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Only finished bundles carry a header, so half-written shots are skipped.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		dir := filepath.Dir(path)
		frames := header.FilePointer
		if !filepath.IsAbs(frames) {
			frames = filepath.Join(dir, frames)
		}
		entries = append(entries, Entry{HeaderPath: path, BundleDir: dir, FramesPath: frames, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Header, entries[j].Header
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.Shot != b.Shot {
			return a.Shot < b.Shot
		}
		return entries[i].BundleDir < entries[j].BundleDir
	})
	return entries, nil
}

// Outcomes tallies entries by recorded outcome.
func Outcomes(entries []Entry) map[string]int {
	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.Header.Outcome]++
	}
	return counts
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
