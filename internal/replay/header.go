package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"minigolf/engine/internal/physics"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// CourseInfo identifies the geometry a shot was played on.
type CourseInfo struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// Header is the metadata persisted alongside a recorded shot.
type Header struct {
	SchemaVersion int            `json:"schema_version"`
	SessionID     string         `json:"session_id"`
	Shot          int            `json:"shot"`
	Course        CourseInfo     `json:"course"`
	Physics       physics.Config `json:"physics"`
	Frames        int            `json:"frames"`
	Outcome       string         `json:"outcome,omitempty"`
	FilePointer   string         `json:"file_pointer"`
}

// Validate ensures the header contains enough information for tooling to use the bundle.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	if strings.TrimSpace(h.Course.Fingerprint) == "" {
		return fmt.Errorf("course fingerprint must not be empty")
	}
	return nil
}

// WriteHeader persists the header as indented JSON.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
