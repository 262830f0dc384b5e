package roster

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchSettle = 100 * time.Millisecond

// Watcher reloads a Store whenever its file is rewritten by someone else,
// and hands every resulting change to OnChange.
type Watcher struct {
	store    *Store
	path     string
	logger   *zap.Logger
	OnChange func(Event)
}

func NewWatcher(s *Store, path string, logger *zap.Logger, onChange func(Event)) *Watcher {
	return &Watcher{
		store:    s,
		path:     path,
		logger:   logger,
		OnChange: onChange,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself, since saves replace the file by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	w.logger.Info("watching party file", zap.String("file", w.path))

	target := filepath.Clean(w.path)

	settle := time.NewTimer(watchSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			settle.Reset(watchSettle)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-settle.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	ev, changed, err := w.store.Reload()
	if err != nil {
		w.logger.Warn("unable to reload party", zap.String("file", w.path), zap.Error(err))

		return
	}
	if !changed {
		return
	}

	w.logger.Info("party changed on disk",
		zap.Int("members", ev.Roster.Filled()),
		zap.Uint64("version", ev.Version))

	if w.OnChange != nil {
		w.OnChange(ev)
	}
}
