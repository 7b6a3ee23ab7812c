// Package kvfactory opens a kv.Store from a URL.
package kvfactory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/omniassist/server/kv"
	"github.com/omniassist/server/kv/pgkv"
	"github.com/omniassist/server/kv/rediskv"
	"github.com/omniassist/server/kv/sqlitekv"
)

var errUnknownScheme = errors.New("unknown store scheme")

// Open returns the store described by rawURL. An empty URL selects a file
// store under dataDir/kv.
//
//	file:///path        one JSON file per key
//	memory://           in-process, lost on exit
//	redis://host:port   Redis
//	sqlite:///path.db   SQLite
//	postgres://...      PostgreSQL
func Open(ctx context.Context, rawURL, dataDir string) (kv.Store, error) {
	if rawURL == "" {
		return kv.NewFileStore(filepath.Join(dataDir, "kv"))
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return kv.NewFileStore(localPath(u, dataDir, "kv"))
	case "memory":
		return kv.NewMemoryStore(), nil
	case "redis", "rediss":
		return rediskv.New(rawURL, "")
	case "sqlite":
		return sqlitekv.Open(ctx, localPath(u, dataDir, "kv.db"))
	case "postgres", "postgresql":
		return pgkv.Open(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownScheme, u.Scheme)
	}
}

// localPath resolves file-style URLs. "file://name" (host only) is treated as
// relative to dataDir.
func localPath(u *url.URL, dataDir, def string) string {
	p := u.Host + u.Path
	if p == "" {
		return filepath.Join(dataDir, def)
	}
	if u.Host != "" {
		return filepath.Join(dataDir, p)
	}
	return p
}
