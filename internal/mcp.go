package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/makepost/corenote/internal/mcpserver"
)

// RunMCP serves the MCP tools on stdin/stdout against the configured store.
// Logs never go to stdout here; it carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := newLogger(cfg.App, app.errOut)
	defer logCloser.Close()
	slog.SetDefault(logger)

	svc, _, closeService, err := openService(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeService()

	srv := mcpserver.New(svc, cfg.Client.Retention())
	logger.Info("MCP server starting", slog.String("store_driver", cfg.Store.Driver))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
