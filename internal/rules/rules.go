// Package rules loads and serves per-family rule documents. A family is a
// named rule set ("words", "code", "config") stored as <family>.yaml in the
// configured rules directory. Documents are parsed once and cached under a
// read-write lock; invalidation is the explicit Reload, optionally triggered
// by the fsnotify watcher.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"docvet/internal/fileio"
	"docvet/internal/logging"
	"docvet/internal/types"
)

// GlobalNonEditableFields are header fields no family may permit editing,
// merged into every family's own non_editable_yaml_fields set.
var GlobalNonEditableFields = []string{
	"layout", "categories", "date", "draft", "lastmod", "title", "weight", "author",
}

// Requirements drives header validation for one family.
type Requirements struct {
	RequiredFields  []string         `yaml:"required_fields"`
	FieldTypes      map[string]string `yaml:"field_types"`
	EnumFields      map[string][]any `yaml:"enum_fields"`
	ForbiddenFields []string         `yaml:"forbidden_fields"`
}

// Document is one parsed family rule file.
type Document struct {
	Family                string              `yaml:"-"`
	PluginAliases         map[string]string   `yaml:"plugin_aliases"`
	APIPatterns           []string            `yaml:"api_patterns"`
	Dependencies          map[string][]string `yaml:"dependencies"`
	NonEditableYAMLFields []string            `yaml:"non_editable_yaml_fields"`
	ValidationRequirements Requirements       `yaml:"validation_requirements"`
	CodeQualityRules      map[string]any      `yaml:"code_quality_rules"`
	FormatPatterns        map[string]string   `yaml:"format_patterns"`
}

// Manager caches rule documents for the process. Single writer (Reload),
// many readers.
type Manager struct {
	dir string

	mu     sync.RWMutex
	cache  map[string]*Document
	hits   int64
	misses int64

	watchMu sync.Mutex
	watcher *fileio.Watcher
}

// NewManager creates a rule manager over a rules directory.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:   dir,
		cache: make(map[string]*Document),
	}
}

// Dir returns the rules directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Get returns the rule document for a family, loading and caching it on
// first use. A missing rule file is a not-found error.
func (m *Manager) Get(family string) (*Document, error) {
	m.mu.RLock()
	doc, ok := m.cache[family]
	m.mu.RUnlock()
	if ok {
		m.mu.Lock()
		m.hits++
		m.mu.Unlock()
		return doc, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok = m.cache[family]; ok {
		m.hits++
		return doc, nil
	}
	m.misses++

	doc, err := m.load(family)
	if err != nil {
		return nil, err
	}
	m.cache[family] = doc
	logging.Rules("loaded rule document: family=%s", family)
	return doc, nil
}

func (m *Manager) load(family string) (*Document, error) {
	path, err := m.documentPath(family)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule document %s: %w", path, err)
	}

	doc := &Document{Family: family}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule document %s: %w", path, err)
	}
	return doc, nil
}

func (m *Manager) documentPath(family string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(m.dir, family+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", types.NewNotFound("Rule document not found for family: %s", family)
}

// Families lists the families that have a rule file on disk, sorted.
func (m *Manager) Families() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules directory %s: %w", m.dir, err)
	}

	seen := make(map[string]bool)
	families := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		family := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[family] {
			seen[family] = true
			families = append(families, family)
		}
	}
	sort.Strings(families)
	return families, nil
}

// Reload drops the cache so the next Get re-reads from disk.
func (m *Manager) Reload() {
	m.mu.Lock()
	size := len(m.cache)
	m.cache = make(map[string]*Document)
	m.mu.Unlock()
	logging.Rules("rule cache reloaded (%d documents dropped)", size)
}

// CacheStats reports cache size, hits, and misses.
func (m *Manager) CacheStats() (size int, hits, misses int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache), m.hits, m.misses
}

// =============================================================================
// QUERY API
// =============================================================================

// ResolveAlias maps a plugin alias to its canonical name; unknown aliases
// map to themselves.
func (m *Manager) ResolveAlias(family, name string) (string, error) {
	doc, err := m.Get(family)
	if err != nil {
		return "", err
	}
	if canonical, ok := doc.PluginAliases[name]; ok {
		return canonical, nil
	}
	return name, nil
}

// APIPatterns returns the family's API URL patterns.
func (m *Manager) APIPatterns(family string) ([]string, error) {
	doc, err := m.Get(family)
	if err != nil {
		return nil, err
	}
	return doc.APIPatterns, nil
}

// Dependencies returns the family's plugin dependency map.
func (m *Manager) Dependencies(family string) (map[string][]string, error) {
	doc, err := m.Get(family)
	if err != nil {
		return nil, err
	}
	return doc.Dependencies, nil
}

// NonEditableFields returns the family's non-editable header fields merged
// with the global set, deduplicated, in global-then-family order.
func (m *Manager) NonEditableFields(family string) ([]string, error) {
	doc, err := m.Get(family)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(GlobalNonEditableFields))
	fields := make([]string, 0, len(GlobalNonEditableFields)+len(doc.NonEditableYAMLFields))
	for _, f := range GlobalNonEditableFields {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, f := range doc.NonEditableYAMLFields {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// Requirements returns the family's header validation requirements.
func (m *Manager) Requirements(family string) (Requirements, error) {
	doc, err := m.Get(family)
	if err != nil {
		return Requirements{}, err
	}
	return doc.ValidationRequirements, nil
}

// CodeQualityRules returns the family's code quality rule map.
func (m *Manager) CodeQualityRules(family string) (map[string]any, error) {
	doc, err := m.Get(family)
	if err != nil {
		return nil, err
	}
	return doc.CodeQualityRules, nil
}

// FormatPatterns returns the family's named format patterns.
func (m *Manager) FormatPatterns(family string) (map[string]string, error) {
	doc, err := m.Get(family)
	if err != nil {
		return nil, err
	}
	return doc.FormatPatterns, nil
}
