package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/treemana/quickdot/log"
)

const (
	// editors often truncate then write, a load right after the event can see
	// a partial file
	reloadRetries = 5
	reloadBackoff = 100 * time.Millisecond
)

// Watch loads the config file at path again every time it is written or created
// and hands the result to apply. A file that still fails to load after the
// retries is logged and skipped, the caller keeps its current config.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher error=[%+v]", err)
	}
	defer func() { _ = watcher.Close() }()

	// the directory survives rename based saves, the file itself does not
	if err = watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s error=[%+v]", abs, err)
	}

	log.Sugar.Infof("config watcher started, path=%s", abs)

	for {
		select {
		case <-ctx.Done():
			log.Sugar.Infof("config watcher stopped, path=%s", abs)
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs {
				continue
			}
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			reload(ctx, abs, apply)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Sugar.Warnf("config watcher error=[%+v]", err)
		}
	}
}

func reload(ctx context.Context, path string, apply func(*Config)) {
	var err error
	for i := 0; i < reloadRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reloadBackoff):
			}
		}

		var cfg *Config
		if cfg, err = Load(path); err == nil {
			apply(cfg)
			log.Sugar.Infof("config reloaded, path=%s", path)
			return
		}
	}

	log.Sugar.Warnf("config reload failed, keeping old config, path=%s error=[%+v]", path, err)
}
