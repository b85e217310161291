package msglog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch delivers a wake signal whenever the log file or its WAL sidecars
// change, so the poll loop can react faster than its interval. The watcher
// observes the parent directory because Messages rewrites the -wal file
// rather than the database itself. Signals are coalesced: a slow consumer
// sees at most one pending wake.
//
// The watcher shuts down when ctx is cancelled, closing the channel.
func (l *Log) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	base := filepath.Base(l.path)
	interesting := map[string]bool{
		base:          true,
		base + "-wal": true,
		base + "-shm": true,
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		defer close(wake)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !interesting[filepath.Base(ev.Name)] {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				// Watch errors are advisory; polling still covers us.
			}
		}
	}()
	return wake, nil
}
