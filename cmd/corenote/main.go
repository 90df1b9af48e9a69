package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/makepost/corenote/internal"
	pkgconfig "github.com/makepost/corenote/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncClient(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunClient(ctx, opts...); err != nil {
		return fmt.Errorf("sync error: %w", err)
	}
	return nil
}

func versions(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunVersions(ctx, cmd.Args().First(), opts...)
}

func show(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("usage: corenote show DIR [CREATED_AT]")
	}
	var createdAt int64
	if raw := cmd.Args().Get(1); raw != "" {
		var err error
		if createdAt, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("invalid created_at %q: %w", raw, err)
		}
	}

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunShow(ctx, dir, createdAt, opts...)
}

func deleteVersion(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: corenote delete DIR CREATED_AT")
	}
	dir := cmd.Args().Get(0)
	createdAt, err := strconv.ParseInt(cmd.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid created_at %q: %w", cmd.Args().Get(1), err)
	}

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunDelete(ctx, dir, createdAt, opts...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:  "corenote",
		Usage: "Plain-text notes with versioned history and offline sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the notes HTTP server",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Watch the draft file and sync every change to the server",
				Action: syncClient,
			},
			{
				Name:      "versions",
				Usage:     "List note directories, or the versions of one directory",
				ArgsUsage: "[DIR]",
				Action:    versions,
			},
			{
				Name:      "show",
				Usage:     "Print a version of a note, the newest by default",
				ArgsUsage: "DIR [CREATED_AT]",
				Action:    show,
			},
			{
				Name:      "delete",
				Usage:     "Delete one version of a note",
				ArgsUsage: "DIR CREATED_AT",
				Action:    deleteVersion,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
