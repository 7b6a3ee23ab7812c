// Package desktop simulates the host integration behind voice commands:
// the installed-application catalog, launching, and file search.
package desktop

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Application struct {
	Name           string `json:"name" yaml:"name"`
	ExecutablePath string `json:"executablePath" yaml:"executablePath"`
}

// DefaultApplications is the catalog used when no catalog file is configured.
func DefaultApplications() []Application {
	return []Application{
		{Name: "Calculator", ExecutablePath: "/usr/bin/calculator"},
		{Name: "Notepad", ExecutablePath: "/usr/bin/notepad"},
	}
}

type catalogFile struct {
	Applications []Application `yaml:"applications"`
}

// Catalog holds the installed applications. When backed by a file it can be
// reloaded at runtime; a failed reload keeps the previous list.
type Catalog struct {
	path string

	mu   sync.RWMutex
	apps []Application
}

// NewCatalog loads the catalog at path, or the defaults when path is empty.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path, apps: DefaultApplications()}
	if path == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Path() string { return c.path }

func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog %s: %w", c.path, err)
	}

	apps := make([]Application, 0, len(f.Applications))
	for _, a := range f.Applications {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			continue
		}
		apps = append(apps, a)
	}

	c.mu.Lock()
	c.apps = apps
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Applications() []Application {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.apps)
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.apps))
	for i, a := range c.apps {
		names[i] = a.Name
	}
	return names
}

// Find looks up an application by name, ignoring case.
func (c *Catalog) Find(name string) (Application, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, a := range c.apps {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Application{}, false
}
