package prompts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
)

//go:embed bundled
var bundledFS embed.FS

// EnvPromptsDir overrides the prompt directory.
const EnvPromptsDir = "DEEP_RESEARCH_PROMPTS_DIR"

// Manager loads prompts from an override directory with the bundled copies
// as fallback, and caches them until the directory changes.
type Manager struct {
	dir     string
	dirFS   fs.FS
	bundled fs.FS
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]Entry
}

// NewManager resolves the prompt directory. The first existing candidate
// wins: customDir, $DEEP_RESEARCH_PROMPTS_DIR, ~/.deep_research/prompts.
// With none, only the bundled prompts are used.
func NewManager(customDir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := fs.Sub(bundledFS, "bundled")
	if err != nil {
		panic(err)
	}
	m := &Manager{bundled: sub, logger: logger, cache: make(map[string]Entry)}

	for _, cand := range candidateDirs(customDir) {
		if info, err := os.Stat(cand); err == nil && info.IsDir() {
			m.dir = cand
			m.dirFS = os.DirFS(cand)
			logger.Info("Using prompts directory", zap.String("dir", cand))
			return m
		}
	}
	logger.Debug("No prompts directory found, using bundled prompts")
	return m
}

func candidateDirs(customDir string) []string {
	var dirs []string
	if customDir != "" {
		dirs = append(dirs, customDir)
	}
	if env := os.Getenv(EnvPromptsDir); env != "" {
		dirs = append(dirs, env)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".deep_research", "prompts"))
	}
	return dirs
}

// Dir returns the override directory, "" when only bundled prompts are used.
func (m *Manager) Dir() string { return m.dir }

// Load returns the prompt for category/name.
func (m *Manager) Load(category, name string) (Entry, error) {
	key := Key(category, name)

	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	file := path.Join(category, name+".yaml")
	var (
		p      *Prompt
		source string
		err    error
	)
	if m.dirFS != nil {
		p, err = loadFromFS(m.dirFS, file)
		source = filepath.Join(m.dir, filepath.FromSlash(file))
	}
	if m.dirFS == nil || errors.Is(err, fs.ErrNotExist) {
		p, err = loadFromFS(m.bundled, file)
		source = "bundled:" + file
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: %s", ErrPromptNotFound, key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("prompt %s: %w", key, err)
	}

	entry = Entry{Key: key, Prompt: p, Source: source}
	m.mu.Lock()
	m.cache[key] = entry
	m.mu.Unlock()
	return entry, nil
}

// Get loads and formats a prompt. Every declared variable must be supplied.
func (m *Manager) Get(category, name string, vars map[string]string) (string, error) {
	entry, err := m.Load(category, name)
	if err != nil {
		return "", err
	}
	if missing := entry.Prompt.MissingVariables(vars); len(missing) > 0 {
		return "", fmt.Errorf("missing required variables for prompt %s: %s", entry.Key, strings.Join(missing, ", "))
	}
	out, err := Format(entry.Prompt.Template, vars)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", entry.Key, err)
	}
	return out, nil
}

// TriagePrompt renders clarification/triage.
func (m *Manager) TriagePrompt(userQuery string) (string, error) {
	return m.Get("clarification", "triage", map[string]string{"user_query": userQuery})
}

// EnrichmentPrompt renders clarification/enrichment.
func (m *Manager) EnrichmentPrompt(userQuery, enrichedContext string) (string, error) {
	return m.Get("clarification", "enrichment", map[string]string{
		"user_query":       userQuery,
		"enriched_context": enrichedContext,
	})
}

// InstructionBuilderPrompt renders research/instruction_builder.
func (m *Manager) InstructionBuilderPrompt(query string) (string, error) {
	return m.Get("research", "instruction_builder", map[string]string{"query": query})
}

// List returns prompt names by category from the override directory, or the
// bundled set when there is none.
func (m *Manager) List() map[string][]string {
	fsys := m.bundled
	if m.dirFS != nil {
		fsys = m.dirFS
	}
	out := make(map[string][]string)
	_ = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".yaml") {
			return nil
		}
		category := path.Dir(p)
		if category == "." {
			return nil
		}
		out[category] = append(out[category], strings.TrimSuffix(path.Base(p), ".yaml"))
		return nil
	})
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}

// Invalidate drops every cached prompt.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cache = make(map[string]Entry)
	m.mu.Unlock()
	metrics.PromptReloads.Inc()
}

// Watch invalidates the cache whenever a YAML file under the override
// directory changes. It blocks until ctx is done and is a no-op without an
// override directory.
func (m *Manager) Watch(ctx context.Context) error {
	if m.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(m.dir, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch prompts directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			m.logger.Info("Prompt changed, reloading",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()),
			)
			m.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("Prompt watcher error", zap.Error(err))
		}
	}
}
