package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/linkmend/internal"
	pkgconfig "github.com/starford/linkmend/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		slog.Info("config file not found, using defaults", slog.String("path", configPath))
	}
	// The flag wins over the file.
	if ws := cmd.String("workspace"); ws != "" {
		cfg.Workspace.Path = ws
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunScan(ctx, cmd.Bool("fail-on-broken"), opts...)
}

func candidates(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("candidates: broken path argument is required")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunCandidates(ctx, path, opts...)
}

func repairLinks(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunRepair(ctx, internal.RepairParams{
		Auto:        cmd.Bool("auto"),
		DryRun:      cmd.Bool("dry-run"),
		Document:    cmd.String("document"),
		Target:      cmd.String("target"),
		Replacement: cmd.String("replacement"),
	}, opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "linkmend",
		Usage:   "Find and repair broken relative links in Markdown and Jupyter notebook workspaces",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace root, overrides workspace.path",
				Sources: cli.EnvVars("LINKMEND_WORKSPACE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, watcher and periodic scan",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Sync the index and list broken links",
				Action: scan,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "fail-on-broken",
						Usage: "Exit with an error when broken links are found",
					},
				},
			},
			{
				Name:      "candidates",
				Usage:     "List replacement candidates for a broken path",
				ArgsUsage: "<broken-path>",
				Action:    candidates,
			},
			{
				Name:   "repair",
				Usage:  "Repair one broken link, or all resolvable ones with --auto",
				Action: repairLinks,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "auto", Usage: "Repair every link with a single best candidate"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report without writing"},
					&cli.StringFlag{Name: "document", Usage: "Document holding the link"},
					&cli.StringFlag{Name: "target", Usage: "Broken target path"},
					&cli.StringFlag{Name: "replacement", Usage: "Replacement path (default: selected candidate)"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
