package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/kupo/internal/config"
)

const watcherValidYAML = minimalYAML + `
server:
  log_level: info
commands:
  - phrase: guess what
    response: chicken butt
`

const watcherUpdatedYAML = minimalYAML + `
server:
  log_level: debug
commands:
  - phrase: guess what
    response: chicken butt
  - phrase: lights on
    response: "on"
    target: light
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// bumpMtime pushes the file's mtime forward so a rewrite within the same
// filesystem timestamp tick is still noticed.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

type changeLog struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
}

func (c *changeLog) record(_, _ *config.Config, d config.ConfigDiff) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diffs = append(c.diffs, d)
}

func (c *changeLog) snapshot() []config.ConfigDiff {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]config.ConfigDiff(nil), c.diffs...)
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("Current = %+v, want log level info", cfg)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherInvalidYAML)

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher with invalid config = nil error")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherValidYAML)

	log := &changeLog{}
	w, err := config.NewWatcher(path, log.record, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path)

	if !waitFor(t, func() bool { return len(log.snapshot()) == 1 }) {
		t.Fatal("onChange was not called")
	}
	d := log.snapshot()[0]
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff log level = %v %q", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.CommandsChanged || len(d.CommandChanges) != 1 || !d.CommandChanges[0].Added {
		t.Errorf("diff commands = %+v", d.CommandChanges)
	}
	if got := w.Current(); len(got.Commands) != 2 {
		t.Errorf("Current has %d commands, want 2", len(got.Commands))
	}
}

func TestWatcher_KeepsConfigOnInvalidEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherValidYAML)

	log := &changeLog{}
	w, err := config.NewWatcher(path, log.record, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, watcherInvalidYAML)
	bumpMtime(t, path)
	time.Sleep(150 * time.Millisecond)

	if n := len(log.snapshot()); n != 0 {
		t.Errorf("onChange called %d times for invalid config", n)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Error("Current should keep the last valid config")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherValidYAML)

	log := &changeLog{}
	w, err := config.NewWatcher(path, log.record, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	bumpMtime(t, path)
	time.Sleep(150 * time.Millisecond)

	if n := len(log.snapshot()); n != 0 {
		t.Errorf("onChange called %d times for a touch", n)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kupo.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
