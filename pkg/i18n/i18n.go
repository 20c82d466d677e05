// Package i18n provides the translation catalog used for user-facing bot
// replies. Locales load from YAML files (one file per locale, flat key to
// string mappings); modules may add their built-in strings at init time.
// Lookup falls back from the requested locale to the default locale to the
// key itself, so a missing translation never breaks a reply.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tgdesk/tgdesk/pkg/logger"
)

type Catalog struct {
	mu            sync.RWMutex
	locales       map[string]map[string]string
	defaultLocale string
}

// NewCatalog returns an empty catalog with the given default locale.
func NewCatalog(defaultLocale string) *Catalog {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &Catalog{
		locales:       make(map[string]map[string]string),
		defaultLocale: defaultLocale,
	}
}

// Load builds a catalog from every *.yaml file in dir; the file name (minus
// extension) is the locale code. A missing directory is not an error, the
// catalog then serves module-registered strings only.
func Load(dir, defaultLocale string) (*Catalog, error) {
	c := NewCatalog(defaultLocale)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.WarnCF("i18n", "Locale directory missing, using built-in strings", map[string]interface{}{
			"dir": dir,
		})
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read locale dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		locale := strings.TrimSuffix(name, ".yaml")
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", locale, err)
		}
		strs := map[string]string{}
		if err := yaml.Unmarshal(data, &strs); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", locale, err)
		}
		c.Add(locale, strs)
	}

	logger.InfoCF("i18n", "Locales loaded", map[string]interface{}{
		"dir":     dir,
		"locales": strings.Join(c.Locales(), ","),
	})
	return c, nil
}

// Add merges entries into a locale. Existing keys are overwritten.
func (c *Catalog) Add(locale string, entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dst, ok := c.locales[locale]
	if !ok {
		dst = make(map[string]string, len(entries))
		c.locales[locale] = dst
	}
	for k, v := range entries {
		dst[k] = v
	}
}

// AddDefault merges entries into a locale without overwriting existing
// keys. Modules register their built-in strings this way, so translations
// loaded from locale files always win regardless of init order.
func (c *Catalog) AddDefault(locale string, entries map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dst, ok := c.locales[locale]
	if !ok {
		dst = make(map[string]string, len(entries))
		c.locales[locale] = dst
	}
	for k, v := range entries {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}

// T resolves key for the given locale and formats args into it. Resolution
// order: requested locale, default locale, the key itself.
func (c *Catalog) T(locale, key string, args ...interface{}) string {
	c.mu.RLock()
	msg, ok := c.locales[locale][key]
	if !ok {
		msg, ok = c.locales[c.defaultLocale][key]
	}
	c.mu.RUnlock()
	if !ok {
		msg = key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Has reports whether the key resolves in the locale or the default.
func (c *Catalog) Has(locale, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.locales[locale][key]; ok {
		return true
	}
	_, ok := c.locales[c.defaultLocale][key]
	return ok
}

// DefaultLocale returns the configured fallback locale.
func (c *Catalog) DefaultLocale() string { return c.defaultLocale }

// Locales lists every loaded locale, sorted.
func (c *Catalog) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.locales))
	for locale := range c.locales {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}
