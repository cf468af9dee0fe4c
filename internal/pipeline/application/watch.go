package application

import (
	"context"
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// WatchConfig monitors the yaml config file and applies each valid rewrite
// to the runner. It runs until ctx is cancelled. Invalid rewrites are logged
// and the previous config stays active.
func WatchConfig(ctx context.Context, path string, runner *Runner, logger *log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	if logger != nil {
		logger.Printf("config watch started path=%s", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which surfaces as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := reloadConfig(path, runner.config())
			if err != nil {
				if logger != nil {
					logger.Printf("config reload failed path=%s error=%v", path, err)
				}
				continue
			}
			if err := runner.SetConfig(cfg); err != nil {
				if logger != nil {
					logger.Printf("config rejected path=%s error=%v", path, err)
				}
				continue
			}
			if logger != nil {
				logger.Printf("config reloaded path=%s", path)
			}

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Printf("config watch error: %v", err)
			}
		}
	}
}

func reloadConfig(path string, current Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return current, err
	}
	cfg := current
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return current, err
	}
	return cfg, cfg.Validate()
}
