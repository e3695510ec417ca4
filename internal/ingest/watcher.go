package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Run watches the drop directory until ctx is done. Files are imported once
// they stop changing for the settle period, and the whole directory is swept
// on start and every SweepInterval.
func (i *Ingester) Run(ctx context.Context) error {
	if err := os.MkdirAll(i.cfg.Dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(i.cfg.Dir); err != nil {
		return err
	}
	i.logger.Info("Watching report directory", zap.String("dir", i.cfg.Dir))

	i.sweep(ctx)

	pending := make(map[string]time.Time)

	sweepTicker := time.NewTicker(i.cfg.SweepInterval)
	defer sweepTicker.Stop()
	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("Report watcher stopped.")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Error("Report watcher error", zap.Error(err))

		case <-debounceTicker.C:
			var ready []string
			for path, last := range pending {
				if time.Since(last) >= i.cfg.Settle {
					ready = append(ready, path)
					delete(pending, path)
				}
			}

			for _, path := range ready {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				if _, err := i.ImportFile(ctx, path); err != nil {
					// Left in place; the next write or sweep retries it.
					i.logger.Warn("Failed to import report file", zap.String("file", filepath.Base(path)), zap.Error(err))
				}
			}

		case <-sweepTicker.C:
			i.sweep(ctx)
		}
	}
}

func (i *Ingester) sweep(ctx context.Context) {
	n, err := i.Sweep(ctx, i.cfg.Dir)
	if err != nil {
		i.logger.Warn("Report sweep finished with errors", zap.Error(err))
	}
	if n > 0 {
		i.logger.Info("Report sweep imported records", zap.Int("inserted", n))
	}
}
