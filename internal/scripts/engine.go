// Package scripts expands user-defined aliases in chat input. Aliases live
// in a TOML file next to the main config:
//
//	[alias]
//	"/w" = "/msg"
//	"/hi" = "hello everyone"
package scripts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/peder1981/p2p-presence/internal/storage"
)

// Config holds alias definitions.
type Config struct {
	Aliases map[string]string `toml:"alias"`
}

// Engine manages alias expansion. It is safe for concurrent use.
type Engine struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

// DefaultScriptsPath returns the default aliases file under the XDG config dir.
func DefaultScriptsPath() (string, error) {
	return storage.ConfigFile("aliases.toml")
}

// NewEngine loads the aliases at path. A missing file means no aliases.
func NewEngine(path string) (*Engine, error) {
	e := &Engine{path: path, cfg: Config{Aliases: map[string]string{}}}
	if err := e.Load(); err != nil {
		return nil, err
	}
	return e, nil
}

// Load re-reads the aliases file.
func (e *Engine) Load() error {
	cfg := Config{Aliases: map[string]string{}}
	info, err := os.Stat(e.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	case info.IsDir():
	default:
		if _, err := toml.DecodeFile(e.path, &cfg); err != nil {
			return fmt.Errorf("decode %s: %w", e.path, err)
		}
		if cfg.Aliases == nil {
			cfg.Aliases = map[string]string{}
		}
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// Expand replaces a leading alias in input with its expansion. Expansion is
// not recursive.
func (e *Engine) Expand(input string) string {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return input
	}
	e.mu.RLock()
	exp, ok := e.cfg.Aliases[parts[0]]
	e.mu.RUnlock()
	if !ok {
		return input
	}
	if len(parts) > 1 {
		return exp + " " + strings.Join(parts[1:], " ")
	}
	return exp
}

// Names returns the defined aliases as "name = expansion", sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.cfg.Aliases))
	for name, exp := range e.cfg.Aliases {
		out = append(out, name+" = "+exp)
	}
	sort.Strings(out)
	return out
}

// AddAlias adds or updates an alias and saves the file.
func (e *Engine) AddAlias(name, expansion string) error {
	if name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid alias name %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Aliases[name] = expansion
	return e.save()
}

// RemoveAlias deletes an alias and saves the file.
func (e *Engine) RemoveAlias(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cfg.Aliases, name)
	return e.save()
}

// save writes the aliases; the caller holds mu.
func (e *Engine) save() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(e.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(e.cfg)
}
