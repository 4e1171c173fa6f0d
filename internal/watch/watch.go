// Package watch reports changes to a working tree as they settle.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDelay is how long the tree must stay quiet before a change fires.
const DefaultDelay = 350 * time.Millisecond

// Watcher watches every directory of a working tree.
type Watcher struct {
	root  string
	skip  map[string]bool
	delay time.Duration
	log   logrus.FieldLogger
}

// New watches root, never descending into directories named in skip.
func New(root string, delay time.Duration, skip []string, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := &Watcher{root: root, skip: make(map[string]bool, len(skip)), delay: delay, log: log}
	for _, s := range skip {
		w.skip[s] = true
	}
	return w
}

// Run calls onChange after each burst of file system events until ctx is
// done. onChange never runs concurrently with itself.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := w.addTree(fw, w.root); err != nil {
		return errors.Join(err, fw.Close())
	}

	changes := make(chan struct{}, 1)
	d := NewDebouncer(w.delay, func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer d.Stop()
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			onChange()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.ignored(ev.Name) {
				continue
			}
			w.log.WithFields(logrus.Fields{"op": ev.Op.String(), "path": ev.Name}).Debug("fsnotify event")
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.log.WithError(err).Warn("watch new directory")
					}
				}
			}
			d.Trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("fsnotify error")
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skip[d.Name()] {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// ignored filters events inside skipped directories and from temp or lock
// files.
func (w *Watcher) ignored(name string) bool {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.skip[part] {
			return true
		}
	}
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".tmp-") || strings.HasSuffix(base, ".lock") || strings.HasSuffix(base, "~")
}
