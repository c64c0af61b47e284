package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kavor/meshql"
	"github.com/kavor/meshql/internal/logging"
	"github.com/kavor/meshql/internal/server"
)

var (
	serveConfigPath string
	servePort       int
	serveDebug      bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "mesh.json", "Path to the mesh configuration file (JSON or YAML)")
	serveCmd.Flags().IntVar(&servePort, "port", 4000, "Port to serve the GraphQL endpoint on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the mesh source and serve it over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(serveConfigPath)
		if err != nil {
			return err
		}

		logger := logging.New(serveDebug || cfg.Debug)
		cfg.Logger = logger

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		source, err := meshql.SourceFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer source.Close()

		srv := server.New(source.Schema, source.RequestTimeout, logger)
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", servePort),
			Handler: srv.Routes(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving GraphQL endpoint",
				slog.String("addr", httpSrv.Addr),
				slog.String("endpoint", cfg.Endpoint),
			)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

// loadConfig reads the mesh configuration through viper (for JSON and YAML
// support) and decodes it into the typed config. Round-tripping through JSON
// keeps the dual-shape protoFilePath locator handling in one place.
func loadConfig(path string) (*meshql.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	var cfg meshql.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
