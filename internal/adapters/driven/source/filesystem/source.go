// Package filesystem provides a document source reading markdown files
// from a directory tree.
package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quillon/coachkb/internal/core/domain"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/logger"
)

// Ensure Source implements the interfaces.
var (
	_ driven.DocumentSource  = (*Source)(nil)
	_ driven.WatchableSource = (*Source)(nil)
)

// debounceWindow coalesces bursts of filesystem events (editors write,
// rename and chmod in quick succession) into one change signal.
const debounceWindow = 2 * time.Second

// Source reads .md files under a root directory. Paths are reported
// relative to the root with forward slashes, so the same corpus synced
// from different machines produces identical source paths.
type Source struct {
	root string
}

// NewSource creates a filesystem source rooted at dir.
func NewSource(dir string) (*Source, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving source root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("checking source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &Source{root: abs}, nil
}

// Root returns the absolute source root.
func (s *Source) Root() string {
	return s.root
}

// List enumerates every .md file under the root.
func (s *Source) List(ctx context.Context) ([]domain.SourceFile, error) {
	var files []domain.SourceFile
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Skip hidden directories like .git.
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("relativising %s: %w", path, err)
		}
		files = append(files, domain.SourceFile{
			Path:     filepath.ToSlash(rel),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source root: %w", err)
	}
	return files, nil
}

// Read returns the raw bytes of one document by its listed path.
func (s *Source) Read(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))

	// Reject traversal outside the root.
	rel, err := filepath.Rel(s.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("path %s escapes source root", path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Watch emits a debounced signal whenever a markdown file under the root
// changes. The channel closes when the context is cancelled.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the root and every subdirectory; fsnotify is not recursive.
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != s.root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching source tree: %w", err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevant(event) {
					continue
				}
				// New directories need watching too.
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
					timerC = timer.C
				} else {
					timer.Reset(debounceWindow)
				}

			case <-timerC:
				timer = nil
				timerC = nil
				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Source watcher error: %v", err)
			}
		}
	}()

	return changes, nil
}

// relevant reports whether an event should trigger a resync. Markdown
// writes and any create/rename/remove count; chmod noise does not.
func relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Chmod) && event.Op&^fsnotify.Chmod == 0 {
		return false
	}
	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		return true
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".md")
}
