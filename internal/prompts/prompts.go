// Package prompts loads per-domain prompt template documents. A domain is a
// named template set ("enhance", "recommend") stored as <domain>.yaml in the
// configured prompts directory. Templates are addressed by (domain, key) and
// formatted with named {placeholder} substitutions.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"docvet/internal/fileio"
	"docvet/internal/logging"
	"docvet/internal/types"
)

// Template is one prompt template. In YAML it is either a bare string or a
// mapping with template and description keys.
type Template struct {
	Template    string `yaml:"template"`
	Description string `yaml:"description"`
}

// UnmarshalYAML accepts both template shapes.
func (t *Template) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*t = Template{Template: s}
		return nil
	}
	type plain Template
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*t = Template(p)
	return nil
}

// Document maps template keys to templates for one domain.
type Document map[string]Template

// Loader caches prompt documents for the process. Single writer (Reload),
// many readers.
type Loader struct {
	dir string

	mu     sync.RWMutex
	cache  map[string]Document
	hits   int64
	misses int64

	watchMu sync.Mutex
	watcher *fileio.Watcher
}

// NewLoader creates a prompt loader over a prompts directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]Document),
	}
}

// Dir returns the prompts directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Document returns the parsed document for a domain, loading and caching it
// on first use. A missing document file is a not-found error.
func (l *Loader) Document(domain string) (Document, error) {
	l.mu.RLock()
	doc, ok := l.cache[domain]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		l.hits++
		l.mu.Unlock()
		return doc, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if doc, ok = l.cache[domain]; ok {
		l.hits++
		return doc, nil
	}
	l.misses++

	doc, err := l.load(domain)
	if err != nil {
		return nil, err
	}
	l.cache[domain] = doc
	logging.Prompts("loaded prompt document: domain=%s (%d templates)", domain, len(doc))
	return doc, nil
}

func (l *Loader) load(domain string) (Document, error) {
	path, err := l.documentPath(domain)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt document %s: %w", path, err)
	}

	doc := Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prompt document %s: %w", path, err)
	}
	return doc, nil
}

func (l *Loader) documentPath(domain string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, domain+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", types.NewNotFound("Prompt document not found for domain: %s", domain)
}

// Get returns the template stored under (domain, key).
func (l *Loader) Get(domain, key string) (Template, error) {
	doc, err := l.Document(domain)
	if err != nil {
		return Template{}, err
	}
	tpl, ok := doc[key]
	if !ok {
		return Template{}, types.NewNotFound("Prompt template not found: %s.%s", domain, key)
	}
	return tpl, nil
}

// Keys lists the template keys of a domain, sorted.
func (l *Loader) Keys(domain string) ([]string, error) {
	doc, err := l.Document(domain)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Domains lists the domains that have a document on disk, sorted.
func (l *Loader) Domains() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read prompts directory %s: %w", l.dir, err)
	}

	seen := make(map[string]bool)
	domains := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		domain := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[domain] {
			seen[domain] = true
			domains = append(domains, domain)
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// Reload drops the cache so the next load re-reads from disk.
func (l *Loader) Reload() {
	l.mu.Lock()
	size := len(l.cache)
	l.cache = make(map[string]Document)
	l.mu.Unlock()
	logging.Prompts("prompt cache reloaded (%d documents dropped)", size)
}

// CacheStats reports cache size, hits, and misses.
func (l *Loader) CacheStats() (size int, hits, misses int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache), l.hits, l.misses
}

// =============================================================================
// FORMATTING
// =============================================================================

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Format renders the template stored under (domain, key) with named
// substitutions. A template with placeholders that subs does not cover is
// returned unformatted; the gap is logged, never an error.
func (l *Loader) Format(domain, key string, subs map[string]string) (string, error) {
	tpl, err := l.Get(domain, key)
	if err != nil {
		return "", err
	}

	out, missing := substitute(tpl.Template, subs)
	if len(missing) > 0 {
		logging.Get(logging.CategoryPrompts).Error(
			"missing substitutions for %s.%s: %s", domain, key, strings.Join(missing, ", "))
	}
	return out, nil
}

func substitute(tpl string, subs map[string]string) (string, []string) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if v, ok := subs[name]; ok {
			return v
		}
		missing = append(missing, name)
		return ph
	})
	if len(missing) > 0 {
		return tpl, missing
	}
	return out, nil
}

// StartWatcher begins watching the prompts directory; yaml changes trigger
// Reload. Safe to call once; a second call is a no-op.
func (l *Loader) StartWatcher() error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher != nil {
		return nil
	}

	w, err := fileio.NewWatcher(l.dir, []string{".yaml", ".yml"}, l.Reload)
	if err != nil {
		return err
	}
	l.watcher = w
	logging.Prompts("watching prompts directory: %s", l.dir)
	return nil
}

// StopWatcher stops the directory watcher if one is running.
func (l *Loader) StopWatcher() {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher == nil {
		return
	}
	l.watcher.Stop()
	l.watcher = nil
}
