package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by loaders when a course does not exist.
var ErrNotFound = errors.New("course not found")

// FileLoader loads and caches course snapshots from YAML files on disk.
// Only files ending in .course.yaml or .course.yml are read.
type FileLoader struct {
	rootDir string
	courses map[ID]*Course
	mu      sync.RWMutex
}

// NewFileLoader creates a loader and reads every course file under rootDir.
func NewFileLoader(rootDir string) (*FileLoader, error) {
	l := &FileLoader{
		rootDir: rootDir,
		courses: make(map[ID]*Course),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}

	slog.Info("courses loaded", "dir", rootDir, "courses", len(l.courses))
	return l, nil
}

// LoadCourse returns the snapshot for id. The returned value is a private copy.
func (l *FileLoader) LoadCourse(_ context.Context, id ID) (*Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.courses[NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(c), nil
}

// IDs returns the identifiers of all loaded courses.
func (l *FileLoader) IDs() []ID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]ID, 0, len(l.courses))
	for id := range l.courses {
		ids = append(ids, id)
	}
	return ids
}

func (l *FileLoader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".course.yaml") || strings.HasSuffix(path, ".course.yml") {
			return l.loadCourse(path)
		}
		return nil
	})
}

func (l *FileLoader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var c Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}

	if c.ID.IsZero() {
		return nil
	}
	LinkSections(&c)

	l.mu.Lock()
	l.courses[c.ID] = &c
	l.mu.Unlock()

	return nil
}

func clone(c *Course) *Course {
	out := *c
	out.Sections = make([]Section, len(c.Sections))
	for i, s := range c.Sections {
		s.Lectures = append([]Lecture(nil), s.Lectures...)
		out.Sections[i] = s
	}
	return &out
}
