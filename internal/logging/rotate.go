package logging

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"minigolf/engine/internal/config"
)

// newRotatingWriter opens the log file behind a lumberjack logger that rotates on size
// and prunes backups by count and age.
func newRotatingWriter(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if cfg.MaxSizeMB <= 0 {
		return nil, errors.New("GOLF_LOG_MAX_SIZE_MB must be positive")
	}
	if cfg.MaxBackups < 0 {
		return nil, errors.New("GOLF_LOG_MAX_BACKUPS must be non-negative")
	}
	if cfg.MaxAgeDays < 0 {
		return nil, errors.New("GOLF_LOG_MAX_AGE_DAYS must be non-negative")
	}
	//1.- Fail at startup rather than on the first write when the directory is unusable.
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	_ = file.Close()
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}
