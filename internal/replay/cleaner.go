package replay

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"minigolf/engine/internal/logging"
)

// RetentionPolicy bounds how many recorded shots stay on disk and for how long. Zero
// values disable the corresponding limit.
type RetentionPolicy struct {
	MaxShots int
	MaxAge   time.Duration
}

// StorageStats summarises the disk footprint of recorded shots.
type StorageStats struct {
	Shots     int       `json:"shots"`
	Bytes     int64     `json:"bytes"`
	Removed   int       `json:"removed"`
	LastSweep time.Time `json:"last_sweep"`
}

// Cleaner prunes bundle directories according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	sweep  sync.Mutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the provided replay directory.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now}
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.RunOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	c.sweep.Lock()
	defer c.sweep.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	bundles := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, b := range bundles {
		if remove, reason := c.shouldRemove(b, now, stats.Shots); remove {
			err := os.RemoveAll(b.path)
			if err == nil {
				stats.Removed++
				c.log.Info("replay retention removed shot", logging.String("bundle", b.name), logging.String("reason", reason))
				continue
			}
			c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("bundle", b.name))
		}
		stats.Shots++
		stats.Bytes += b.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// Stats returns the statistics recorded by the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundleDir struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) collect(entries []os.DirEntry) []bundleDir {
	bundles := make([]bundleDir, 0, len(entries))
	for _, entry := range entries {
		//1.- Only directories holding a manifest are bundles; anything else is left alone.
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		manifest, err := os.Stat(filepath.Join(path, manifestFile))
		if err != nil {
			continue
		}
		size, modTime, err := directoryFootprint(path)
		if err != nil {
			c.log.Warn("replay retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		if modTime.Before(manifest.ModTime()) {
			modTime = manifest.ModTime()
		}
		bundles = append(bundles, bundleDir{name: entry.Name(), path: path, size: size, modTime: modTime})
	}
	//2.- Newest first so the shot limit keeps the most recent recordings.
	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].modTime.Equal(bundles[j].modTime) {
			return bundles[i].name > bundles[j].name
		}
		return bundles[i].modTime.After(bundles[j].modTime)
	})
	return bundles
}

func (c *Cleaner) shouldRemove(b bundleDir, now time.Time, kept int) (bool, string) {
	var reasons []string
	if c.policy.MaxAge > 0 && now.Sub(b.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxShots > 0 && kept >= c.policy.MaxShots {
		reasons = append(reasons, fmt.Sprintf(">=%d shots", c.policy.MaxShots))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

// directoryFootprint returns the total file size and newest modification time.
func directoryFootprint(root string) (int64, time.Time, error) {
	var total int64
	var newest time.Time
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return total, newest, err
}
