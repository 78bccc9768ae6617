package diskstat

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Warning levels for disk space.
const (
	WarnNone   = 0
	WarnYellow = 1
	WarnRed    = 2
	WarnBlock  = 3
)

// Stats is a point-in-time snapshot of disk usage.
type Stats struct {
	TotalBytes       uint64    `json:"total_bytes"`
	FreeBytes        uint64    `json:"free_bytes"`
	AppBytes         uint64    `json:"app_bytes"` // bytes under DATA_DIR
	TemplateBytes    uint64    `json:"template_bytes"`
	CertificateBytes uint64    `json:"certificate_bytes"`
	CertificateCount int       `json:"certificate_files"`
	CapturedAt       time.Time `json:"captured_at"`
}

// PctFree returns the percentage of disk space that is free (0-100).
func (s Stats) PctFree() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.FreeBytes) / float64(s.TotalBytes) * 100
}

// WarningLevel returns the warning level given threshold percentages.
func (s Stats) WarningLevel(yellowPct, redPct, blockPct float64) int {
	pct := s.PctFree()
	switch {
	case pct <= blockPct:
		return WarnBlock
	case pct <= redPct:
		return WarnRed
	case pct <= yellowPct:
		return WarnYellow
	default:
		return WarnNone
	}
}

// Cache is a goroutine-safe cached disk stats value, refreshed periodically.
type Cache struct {
	mu       sync.RWMutex
	stats    Stats
	dataDir  string
	ttl      time.Duration
	blockPct float64
	stop     chan struct{}
	once     sync.Once
}

// New creates a Cache. Issuance is refused once free space drops to
// blockPct percent or below.
func New(dataDir string, ttl time.Duration, blockPct float64) *Cache {
	return &Cache{
		dataDir:  dataDir,
		ttl:      ttl,
		blockPct: blockPct,
		stop:     make(chan struct{}),
	}
}

// Start takes a first reading and begins background polling.
func (c *Cache) Start() {
	c.refresh()
	go func() {
		t := time.NewTicker(c.ttl)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.refresh()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Get returns the latest cached stats.
func (c *Cache) Get() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Refresh forces an immediate update.
func (c *Cache) Refresh() {
	c.refresh()
}

// LowSpace reports whether new artifacts should be refused. Before the
// first successful reading it reports false.
func (c *Cache) LowSpace() bool {
	s := c.Get()
	if s.CapturedAt.IsZero() || c.blockPct <= 0 {
		return false
	}
	return s.PctFree() <= c.blockPct
}

func (c *Cache) refresh() {
	total, free, err := statFS(c.dataDir)
	if err != nil {
		// leave previous values in place
		return
	}
	s := walkDirSizes(c.dataDir)
	s.TotalBytes = total
	s.FreeBytes = free
	s.CapturedAt = time.Now()
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

func statFS(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return bsize * stat.Blocks, bsize * stat.Bavail, nil
}

func walkDirSizes(dataDir string) Stats {
	var s Stats
	filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := uint64(info.Size())
		s.AppBytes += size
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return nil
		}
		switch {
		case strings.HasPrefix(rel, "templates"+string(filepath.Separator)):
			s.TemplateBytes += size
		case strings.HasPrefix(rel, "certificates"+string(filepath.Separator)):
			s.CertificateBytes += size
			s.CertificateCount++
		}
		return nil
	})
	return s
}
