package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/quillmark/quill/internal"
	pkgconfig "github.com/quillmark/quill/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.RunHub(ctx, opts...); err != nil {
		return fmt.Errorf("hub run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "quillhub",
		Usage:  "Coordination hub for collaborative PDF annotation: authoritative store, blob storage, and realtime fan-out",
		Action: run,
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
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("hub error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
