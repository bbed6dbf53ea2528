package filemonitor

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// UpdateFunc handles one filesystem event.
type UpdateFunc func(logger logrus.FieldLogger, event fsnotify.Event)

// Watcher delivers filesystem events on a set of paths to an UpdateFunc.
type Watcher struct {
	notify   *fsnotify.Watcher
	logger   logrus.FieldLogger
	onUpdate UpdateFunc
}

// NewWatch starts monitoring paths. Directories are watched
// non-recursively.
func NewWatch(logger logrus.FieldLogger, paths []string, onUpdate UpdateFunc) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating watcher")
	}
	for _, path := range paths {
		if err := notify.Add(path); err != nil {
			notify.Close()
			return nil, errors.Wrapf(err, "watching %s", path)
		}
		logger.Debugf("monitoring path %q", path)
	}
	return &Watcher{notify: notify, logger: logger, onUpdate: onUpdate}, nil
}

// Run dispatches events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.notify.Close()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("terminating watcher")
			return
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			w.logger.Debugf("watcher got event: %v", event)
			if w.onUpdate != nil {
				w.onUpdate(w.logger, event)
			}
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("watcher got error: %v", err)
		}
	}
}
