package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/codejail/internal/limits"
)

// fileDocument is the on-disk YAML shape for a File provider.
type fileDocument struct {
	Commands map[string]struct {
		BinPath        string   `yaml:"bin_path"`
		User           string   `yaml:"user,omitempty"`
		Argv           []string `yaml:"argv,omitempty"`
		DriverTemplate string   `yaml:"driver_template,omitempty"`
	} `yaml:"commands"`
	Limits struct {
		CPU      int    `yaml:"cpu"`
		Realtime int    `yaml:"realtime"`
		VMem     int64  `yaml:"vmem"`
		FSize    int64  `yaml:"fsize"`
		NProc    int    `yaml:"nproc"`
		Proxy    string `yaml:"proxy"` // "inherit" | "on" | "off"
	} `yaml:"limits"`
	Overrides map[string]struct {
		CPU      *int   `yaml:"cpu,omitempty"`
		Realtime *int   `yaml:"realtime,omitempty"`
		VMem     *int64 `yaml:"vmem,omitempty"`
		FSize    *int64 `yaml:"fsize,omitempty"`
		NProc    *int   `yaml:"nproc,omitempty"`
		Proxy    *string `yaml:"proxy,omitempty"` // recognized but never applied, see Merge
	} `yaml:"overrides"`
}

// File is a Provider backed by a YAML file on disk, optionally watching
// that file for changes and hot-reloading limits/overrides without a host
// restart.
type File struct {
	path string
	log  *slog.Logger

	mu       sync.RWMutex
	commands map[string]CommandSpec
	defaults limits.Limits
	overrides map[string]limits.Patch

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadFile reads and parses a codejail YAML config file into a File
// provider. Call Watch to additionally hot-reload on subsequent edits.
func LoadFile(path string, log *slog.Logger) (*File, error) {
	if log == nil {
		log = slog.Default()
	}
	f := &File{path: path, log: log}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("codejail: read config %s: %w", f.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("codejail: parse config %s: %w", f.path, err)
	}
	f.logUnknownOverrideKeys(data)

	commands := make(map[string]CommandSpec, len(doc.Commands))
	for name, c := range doc.Commands {
		commands[name] = CommandSpec{
			Name:           name,
			BinPath:        c.BinPath,
			User:           c.User,
			Argv:           c.Argv,
			DriverTemplate: c.DriverTemplate,
		}
	}

	overrides := make(map[string]limits.Patch, len(doc.Overrides))
	for ctx, o := range doc.Overrides {
		if o.Proxy != nil {
			f.log.Warn("codejail: ignoring PROXY override in limits overrides", "context", ctx)
		}
		overrides[ctx] = limits.Patch{
			CPU:      o.CPU,
			Realtime: o.Realtime,
			VMem:     o.VMem,
			FSize:    o.FSize,
			NProc:    o.NProc,
		}
	}

	proxy := limits.ProxyInherit
	switch doc.Limits.Proxy {
	case "on":
		proxy = limits.ProxyOn
	case "off":
		proxy = limits.ProxyOff
	case "", "inherit":
		proxy = limits.ProxyInherit
	default:
		f.log.Warn("codejail: unrecognized proxy mode in config, using inherit", "value", doc.Limits.Proxy)
	}

	f.mu.Lock()
	f.commands = commands
	f.defaults = limits.Limits{
		CPU:      doc.Limits.CPU,
		Realtime: doc.Limits.Realtime,
		VMem:     doc.Limits.VMem,
		FSize:    doc.Limits.FSize,
		NProc:    doc.Limits.NProc,
		Proxy:    proxy,
	}
	f.overrides = overrides
	f.mu.Unlock()

	return nil
}

// knownOverrideKeys are the only limits override fields codejail acts on;
// see EffectiveLimits and limits.Patch.
var knownOverrideKeys = map[string]bool{
	"cpu":      true,
	"realtime": true,
	"vmem":     true,
	"fsize":    true,
	"nproc":    true,
	"proxy":    true,
}

// logUnknownOverrideKeys re-decodes the overrides document generically and
// debug-logs any key outside knownOverrideKeys, naming both the context and
// the key -- the fixed-field fileDocument above silently drops anything it
// doesn't recognize, which is fine for the values codejail loads but leaves
// a typo'd override key (e.g. "realtme") invisible to an operator without
// this separate pass.
func (f *File) logUnknownOverrideKeys(data []byte) {
	var raw struct {
		Overrides map[string]map[string]yaml.Node `yaml:"overrides"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	for ctx, fields := range raw.Overrides {
		for key := range fields {
			if !knownOverrideKeys[key] {
				f.log.Debug("codejail: ignoring unrecognized key in limits override", "context", ctx, "key", key)
			}
		}
	}
}

// Watch starts watching the backing file for changes and reloads on every
// write event. The returned error only reflects watcher setup; reload
// failures after that are logged, not returned, so a bad edit doesn't crash
// whatever is mid-flight using the last-known-good config.
func (f *File) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("codejail: create config watcher: %w", err)
	}
	if err := w.Add(f.path); err != nil {
		w.Close()
		return fmt.Errorf("codejail: watch config %s: %w", f.path, err)
	}
	f.watcher = w
	f.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := f.reload(); err != nil {
					f.log.Warn("codejail: config reload failed, keeping previous config", "error", err)
					continue
				}
				f.log.Info("codejail: reloaded config", "path", f.path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.log.Warn("codejail: config watcher error", "error", err)
			case <-f.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if one was started.
func (f *File) Close() error {
	if f.watcher == nil {
		return nil
	}
	close(f.done)
	return f.watcher.Close()
}

func (f *File) GetCommand(name string) (CommandSpec, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	spec, ok := f.commands[name]
	return spec, ok
}

func (f *File) GetDefaultLimits() limits.Limits {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaults
}

func (f *File) GetOverrides(contextKey string) limits.Patch {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.overrides[contextKey]
}

func (f *File) EffectiveLimits(contextKey string) limits.Limits {
	return effectiveLimits(f, contextKey)
}
