package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source yields the bytes of one roster.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a roster from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return filepath.Base(f.Path) }

func (f FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.Path)
}

// ReaderSource is a roster already held in memory, such as an upload.
type ReaderSource struct {
	SourceName string
	Data       []byte
}

func (r ReaderSource) Name() string { return r.SourceName }

func (r ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.Data)), nil
}

// IsRosterFile reports whether name has an extension the roster reader accepts.
func IsRosterFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// DirSources lists every roster file in dir, sorted by name.
func DirSources(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read roster dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsRosterFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, n := range names {
		sources = append(sources, FileSource{Path: filepath.Join(dir, n)})
	}
	return sources, nil
}

// PathSources expands a mix of files and directories into sources,
// keeping argument order.
func PathSources(paths []string) ([]Source, error) {
	var sources []Source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			sources = append(sources, FileSource{Path: p})
			continue
		}
		dir, err := DirSources(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, dir...)
	}
	return sources, nil
}
