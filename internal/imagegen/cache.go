package imagegen

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache provides file-based caching for generated card backgrounds.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a background cache in dir. Backgrounds are regenerated
// after maxAge.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("could not create image cache directory")
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

func (c *Cache) path(theme Theme) string {
	return filepath.Join(c.dir, fmt.Sprintf("background_%s.png", theme))
}

// Get returns a cached background if it exists and is not stale.
func (c *Cache) Get(theme Theme) ([]byte, bool) {
	path := c.path(theme)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(theme Theme, data []byte) error {
	return os.WriteFile(c.path(theme), data, 0644)
}
