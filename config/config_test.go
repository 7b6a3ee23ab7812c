package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	if cfg.Server.Port != want.Server.Port {
		t.Errorf("got port %d, want %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.Model.Provider != "gemini" || cfg.Model.Timeout != 60*time.Second {
		t.Errorf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Sessions.StoreKey != "chatSessions" || !cfg.Sessions.SortPinned || cfg.Sessions.InterimTitleMax != 50 {
		t.Errorf("unexpected sessions config: %+v", cfg.Sessions)
	}
	if err := cfg.RequireAuthToken(); err != ErrMissingAuthToken {
		t.Errorf("got %v, want ErrMissingAuthToken", err)
	}
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "omniassist.yaml")
	content := `
server:
  port: 9000
  auth_token: from-file
model:
  provider: openai
  name: gpt-4o
  timeout: 5s
sessions:
  sort_pinned: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OMNIASSIST_SERVER_AUTH_TOKEN", "from-env")
	t.Setenv("OMNIASSIST_STORE_URL", "memory://")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	fs.String("model", "", "")
	if err := fs.Parse([]string{"--port", "9100"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Options{File: path, Flags: fs})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("flag should win: got port %d", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "from-env" {
		t.Errorf("env should beat file: got %q", cfg.Server.AuthToken)
	}
	if cfg.Model.Name != "gpt-4o" {
		t.Errorf("unset flag must not override file: got %q", cfg.Model.Name)
	}
	if cfg.Model.Timeout != 5*time.Second {
		t.Errorf("got timeout %s, want 5s", cfg.Model.Timeout)
	}
	if cfg.Store.URL != "memory://" {
		t.Errorf("got store %q", cfg.Store.URL)
	}
	if cfg.Sessions.SortPinned {
		t.Error("expected sort_pinned false from file")
	}
}

func TestLoad_APIKeyFallback(t *testing.T) {
	isolate(t)

	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.APIKey != "g-key" {
		t.Errorf("got key %q, want g-key", cfg.Model.APIKey)
	}

	t.Setenv("OMNIASSIST_MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg, err = Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.APIKey != "o-key" {
		t.Errorf("got key %q, want o-key", cfg.Model.APIKey)
	}

	t.Setenv("OMNIASSIST_MODEL_API_KEY", "explicit")
	cfg, _ = Load(Options{})
	if cfg.Model.APIKey != "explicit" {
		t.Errorf("explicit key should win, got %q", cfg.Model.APIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "unknown provider", env: map[string]string{"OMNIASSIST_MODEL_PROVIDER": "parrot"}},
		{name: "bad port", env: map[string]string{"OMNIASSIST_SERVER_PORT": "70000"}},
		{name: "missing explicit file", file: "/nonexistent/omniassist.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(Options{File: tt.file}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	cfg := Default()
	if err := cfg.ResolveDataDir(); err != nil {
		t.Fatalf("ResolveDataDir failed: %v", err)
	}
	if !filepath.IsAbs(cfg.Server.DataDir) {
		t.Errorf("expected absolute path, got %q", cfg.Server.DataDir)
	}
}
