package desktop

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var ErrEmptyName = errors.New("desktop: empty application name")

// Launcher simulates opening applications. Nothing is executed.
type Launcher struct {
	catalog *Catalog
}

func NewLauncher(catalog *Catalog) *Launcher {
	return &Launcher{catalog: catalog}
}

func (l *Launcher) Open(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	path := ""
	if l.catalog != nil {
		if app, ok := l.catalog.Find(name); ok {
			path = app.ExecutablePath
		}
	}
	slog.Info("opening application", "name", name, "executablePath", path)
	return nil
}
