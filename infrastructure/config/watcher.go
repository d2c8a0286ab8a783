package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// ConfigWatcher reloads the configuration when its YAML file changes and
// notifies subscribers. Without a file it only serves the initial value.
type ConfigWatcher struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
	load      func(path string) (*Config, error)
}

// NewConfigWatcher starts watching initial.File.
func NewConfigWatcher(initial *Config, logger *zap.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ConfigWatcher{
		config: initial,
		logger: logger,
		stopCh: make(chan struct{}),
		load:   Load,
	}
	if initial.File == "" {
		logger.Info("Configuration hot reloading disabled, no config file")
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files on save; watching the directory survives that.
	if err := fsWatcher.Add(filepath.Dir(initial.File)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", initial.File, err)
	}
	w.watcher = fsWatcher
	go w.watchLoop(filepath.Clean(initial.File))

	logger.Info("Configuration hot reloading enabled", zap.String("file", initial.File))
	return w, nil
}

func (w *ConfigWatcher) watchLoop(file string) {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != file || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() { w.reload(file) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *ConfigWatcher) reload(file string) {
	next, err := w.load(file)
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = next
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logChanges(prev, next)
	for i, cb := range callbacks {
		w.notify(i, cb, next)
	}
}

func (w *ConfigWatcher) notify(idx int, cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Config callback panicked", zap.Int("callback_index", idx), zap.Any("panic", r))
		}
	}()
	cb(cfg)
}

// OnChange registers a callback run after every successful reload.
func (w *ConfigWatcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// GetConfig returns the current configuration.
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops the watcher. It is safe to call more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *ConfigWatcher) logChanges(prev, next *Config) {
	var changes []string
	if prev.MaxHistorySteps != next.MaxHistorySteps {
		changes = append(changes, fmt.Sprintf("max_history_steps: %d -> %d", prev.MaxHistorySteps, next.MaxHistorySteps))
	}
	if prev.LogLevel != next.LogLevel {
		changes = append(changes, fmt.Sprintf("log_level: %s -> %s", prev.LogLevel, next.LogLevel))
	}
	if prev.DefaultImageModel != next.DefaultImageModel {
		changes = append(changes, fmt.Sprintf("default_image_model: %s -> %s", prev.DefaultImageModel, next.DefaultImageModel))
	}
	if prev.DefaultVideoModel != next.DefaultVideoModel {
		changes = append(changes, fmt.Sprintf("default_video_model: %s -> %s", prev.DefaultVideoModel, next.DefaultVideoModel))
	}
	w.logger.Info("Configuration reloaded", zap.Strings("changes", changes))
}
