package stow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/meigma/stow/codec"
	"github.com/meigma/stow/internal/wire"
)

// maxPromptAttempts bounds how often one missing container is asked for.
const maxPromptAttempts = 3

// FolderPrompt is asked for a folder to search when a container of a
// fragment chain cannot be found. It returns false to give up on the chain.
// The prompt may block, for example on user input.
type FolderPrompt func(ctx context.Context, missing string) (dir string, ok bool)

// Manager resolves predicted container names to files for one extraction
// run and remembers which containers were already read to the end.
//
// A Manager is safe for concurrent use.
type Manager struct {
	codec  codec.Codec
	namer  wire.Namer
	prompt FolderPrompt
	logger *slog.Logger

	mu        sync.Mutex
	locations map[string]string
	indexed   map[string]bool
	explored  map[string]bool
	excluded  map[string]bool
	enclosing string
}

// NewManager returns an empty manager that opens containers with c.
// keyHash must be the key hash c was configured with. prompt and logger
// may be nil.
func NewManager(c codec.Codec, keyHash [codec.KeySize]byte, prompt FolderPrompt, logger *slog.Logger) *Manager {
	return &Manager{
		codec:     c,
		namer:     wire.NewNamer(keyHash, c.Ext()),
		prompt:    prompt,
		logger:    logger,
		locations: make(map[string]string),
		indexed:   make(map[string]bool),
		explored:  make(map[string]bool),
		excluded:  make(map[string]bool),
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (m *Manager) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// Exclude keeps dir and everything below it out of indexing.
func (m *Manager) Exclude(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excluded[cleanPath(dir)] = true
}

// Index scans dir breadth-first and maps the predicted name of every
// container found to its path, so renamed containers can still be
// located. Folders already indexed are not scanned again.
func (m *Manager) Index(ctx context.Context, dir string) error {
	queue := []string{cleanPath(dir)}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := queue[0]
		queue = queue[1:]

		m.mu.Lock()
		skip := m.indexed[d] || m.excluded[d]
		m.indexed[d] = true
		m.mu.Unlock()
		if skip {
			continue
		}

		entries, err := os.ReadDir(d)
		if err != nil {
			if d == cleanPath(dir) {
				return fmt.Errorf("index %s: %w", d, err)
			}
			m.log().Warn("skipped unreadable folder", "path", d, "error", err)
			continue
		}
		for _, e := range entries {
			path := filepath.Join(d, e.Name())
			switch {
			case e.IsDir():
				queue = append(queue, path)
			case e.Type().IsRegular():
				m.learn(path)
			}
		}
	}
	return nil
}

// learn records the predicted name of the container at path, if it is one.
func (m *Manager) learn(path string) {
	cr, err := openContainer(m.codec, path)
	if err != nil {
		return
	}
	name := m.namer.Name(cr.id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[name]; !ok {
		m.locations[name] = path
	}
}

// Locate returns the path of the container called name.
//
// It looks in the cache, in dir, in the folder the last prompt answered
// and in everything below dir, in that order. When all of that fails it
// asks the FolderPrompt for another folder to index. It returns
// ErrMissingContainer when the container cannot be found.
func (m *Manager) Locate(ctx context.Context, name, dir string) (string, error) {
	dir = cleanPath(dir)
	if path, ok := m.lookup(name); ok {
		return path, nil
	}

	m.mu.Lock()
	candidates := []string{dir}
	if m.enclosing != "" && m.enclosing != dir {
		candidates = append(candidates, m.enclosing)
	}
	m.mu.Unlock()
	for _, d := range candidates {
		if path, ok := m.findIn(d, name); ok {
			return path, nil
		}
	}

	if err := m.Index(ctx, dir); err != nil {
		return "", err
	}
	if path, ok := m.lookup(name); ok {
		return path, nil
	}

	if m.prompt == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingContainer, name)
	}
	for range maxPromptAttempts {
		next, ok := m.prompt(ctx, name)
		if !ok {
			break
		}
		next = cleanPath(next)
		m.mu.Lock()
		m.enclosing = next
		m.mu.Unlock()

		if path, ok := m.findIn(next, name); ok {
			return path, nil
		}
		if err := m.Index(ctx, next); err != nil {
			m.log().Warn("cannot index folder", "path", next, "error", err)
			continue
		}
		if path, ok := m.lookup(name); ok {
			return path, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrMissingContainer, name)
}

// lookup returns a cached location that still exists.
func (m *Manager) lookup(name string) (string, bool) {
	m.mu.Lock()
	path, ok := m.locations[name]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		m.mu.Lock()
		delete(m.locations, name)
		m.mu.Unlock()
		return "", false
	}
	return path, true
}

// findIn checks for dir/name and caches it when present.
func (m *Manager) findIn(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log().Debug("cannot stat container", "path", path, "error", err)
		}
		return "", false
	}
	if !info.Mode().IsRegular() {
		return "", false
	}
	m.mu.Lock()
	m.locations[name] = path
	m.mu.Unlock()
	return path, true
}

// MarkExplored records that the container at path was read to the end.
func (m *Manager) MarkExplored(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explored[cleanPath(path)] = true
}

// Explored reports whether the container at path was read to the end.
func (m *Manager) Explored(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explored[cleanPath(path)]
}

// ExploredPaths returns the explored containers in sorted order.
func (m *Manager) ExploredPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.explored))
	for p := range m.explored {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
