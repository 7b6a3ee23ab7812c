package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/omniassist/server/config"
	"github.com/omniassist/server/llm"
	"github.com/omniassist/server/logger"
	"github.com/omniassist/server/server"
	"github.com/omniassist/server/startup"
)

const shutdownTimeout = 10 * time.Second

type ServeFlags struct {
	*ModelFlags

	Port      int
	AuthToken string
	DevMode   bool
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{
		ModelFlags: NewModelFlags(),
		Port:       config.Default().Server.Port,
	}
}

func (f *ServeFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.ModelFlags.BindFlags(flagSet)
	flagSet.IntVar(&f.Port, "port", f.Port, "server port")
	flagSet.StringVar(&f.AuthToken, "auth-token", f.AuthToken, "authentication token (required)")
	flagSet.BoolVar(&f.DevMode, "dev", f.DevMode, "enable development mode")
}

func NewServeCommand(version string, configFile *string) *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket and REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			if err := cfg.RequireAuthToken(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, version)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, version string) error {
	logger.Init(logger.Config{
		DataDir: cfg.Server.DataDir,
		DevMode: cfg.Server.DevMode,
		Level:   cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := services.Start(); err != nil {
		services.Close(context.Background())
		return err
	}

	port := strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: services.Handler(cfg.Server.AuthToken, cfg.Server.DevMode),
	}

	startup.PrintBanner(startup.BannerOptions{
		Version:  version,
		LocalURL: "http://localhost:" + port,
		Backend:  backendLabel(cfg),
		Store:    storeLabel(cfg),
	})
	startup.PrintFooter()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", port, "dataDir", cfg.Server.DataDir, "devMode", cfg.Server.DevMode, "provider", cfg.Model.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	services.Close(shutdownCtx)
	slog.Info("server stopped")
	return serveErr
}

func backendLabel(cfg *config.Config) string {
	name := cfg.Model.Name
	if name == "" {
		name = llm.Provider(cfg.Model.Provider).DefaultModel()
	}
	return cfg.Model.Provider + " / " + name
}

// storeLabel describes the store without credentials.
func storeLabel(cfg *config.Config) string {
	if cfg.Store.URL == "" {
		return "file " + filepath.Join(cfg.Server.DataDir, "kv")
	}
	u, err := url.Parse(cfg.Store.URL)
	if err != nil {
		return "unknown"
	}
	return u.Redacted()
}
