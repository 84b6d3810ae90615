package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/models"
)

// SiteBuilder runs one full build
type SiteBuilder interface {
	Run(ctx context.Context) (*models.BuildManifest, error)
}

// Watcher rebuilds the site when content or static files change, and optionally on
// a fixed interval.
type Watcher struct {
	cfg      *config.AppConfig
	builder  SiteBuilder
	state    *StateManager
	interval time.Duration // 0 disables periodic rebuilds
	debounce time.Duration
	log      *logrus.Entry
}

// NewWatcher creates a Watcher. cfg must be validated.
func NewWatcher(cfg *config.AppConfig, builder SiteBuilder, log *logrus.Entry) (*Watcher, error) {
	var interval time.Duration
	if cfg.Watch.RebuildInterval != "" {
		d, err := ParseInterval(cfg.Watch.RebuildInterval)
		if err != nil {
			return nil, fmt.Errorf("watch.rebuild_interval: %w", err)
		}
		interval = d
	}
	return &Watcher{
		cfg:      cfg,
		builder:  builder,
		state:    NewStateManager(cfg.StateDir),
		interval: interval,
		debounce: cfg.Watch.Debounce,
		log:      log.WithField("component", "watch"),
	}, nil
}

// State returns the persisted build state
func (w *Watcher) State() *StateManager {
	return w.state
}

// Run builds once, then rebuilds on changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.state.Load(); err != nil {
		w.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
	if prev, ok := w.state.Get(w.cfg.Site.Name); ok {
		status := "success"
		if !prev.LastRunSuccess {
			status = "failed"
		}
		w.log.Infof("Last build %s at %s (%d pages)", status, prev.LastRunTime.Format(time.RFC3339), prev.Pages)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	roots := append([]string{w.cfg.ContentDir}, w.cfg.StaticDirs...)
	for _, root := range roots {
		if err := w.addTree(fsw, root); err != nil {
			return err
		}
	}

	w.build(ctx, "initial")

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(tickInterval(w.interval))
		defer ticker.Stop()
		tick = ticker.C
		w.log.Infof("Periodic rebuild every %s", FormatInterval(w.interval))
	}

	var pending <-chan time.Time
	var changed []string
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Watch mode shutting down")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.log.Warnf("Failed to watch new directory: %v", err)
					}
				}
			}
			changed = append(changed, event.Name)
			pending = time.After(w.debounce)

		case <-pending:
			pending = nil
			w.log.WithField("files", len(changed)).Infof("Change detected in %s, rebuilding", changed[0])
			changed = nil
			w.build(ctx, "change")

		case <-tick:
			if w.state.ShouldRun(w.cfg.Site.Name, w.interval) {
				w.build(ctx, "schedule")
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) build(ctx context.Context, trigger string) {
	start := time.Now()
	manifest, err := w.builder.Run(ctx)

	state := BuildState{LastRunTime: start, LastRunSuccess: err == nil, Trigger: trigger}
	if manifest != nil {
		state.RunID = manifest.RunID
		state.Pages = manifest.TotalPages
		state.Rendered = manifest.Rendered
		state.Cached = manifest.Cached
	}
	if err != nil {
		state.ErrorMessage = err.Error()
		w.log.WithField("trigger", trigger).Errorf("Build failed: %v", err)
	} else {
		w.log.WithFields(logrus.Fields{
			"trigger":  trigger,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("Build finished")
	}

	w.state.Record(w.cfg.Site.Name, state)
	if err := w.state.Save(); err != nil {
		w.log.Errorf("Failed to save watch state: %v", err)
	}
	if w.interval > 0 {
		next := w.state.NextRunTime(w.cfg.Site.Name, w.interval)
		w.log.Debugf("Next scheduled rebuild at %s", next.Format("15:04:05"))
	}
}

// addTree watches root and every directory below it, skipping hidden directories.
// A missing root is skipped.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		w.log.Debugf("Not watching missing directory %s", root)
		return nil
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		w.log.Debugf("Watching directory: %s", p)
		return nil
	})
}

// relevant filters out permission changes and editor temp files
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp")
}

// tickInterval is how often the periodic schedule is checked: a tenth of the
// interval, clamped to [1m, 10m].
func tickInterval(interval time.Duration) time.Duration {
	check := interval / 10
	if check < time.Minute {
		check = time.Minute
	}
	if check > 10*time.Minute {
		check = 10 * time.Minute
	}
	return check
}
