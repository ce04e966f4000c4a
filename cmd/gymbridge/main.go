package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gymbridge/gymbridge/cmd/gymbridge/server"
	"github.com/gymbridge/gymbridge/internal/config"
	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "gymbridge",
		Version: Version,
		Usage:   "script orchestration backend for live instrument panels",
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print the version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("gymbridge version %s\n", cmd.Root().Version)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate a panel configuration file",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("config file path required")
					}

					configPath := cmd.Args().Get(0)
					cfg, err := config.NewConfig(configPath)
					if err != nil {
						return fmt.Errorf("failed to load config: %w", err)
					}

					fmt.Printf("Configuration file %s is valid\n\n", configPath)
					fmt.Println(cfg)
					return nil
				},
			},
			{
				Name:  "run",
				Usage: "Run the panel backend",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "path to the panel config file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "log level (trace, debug, info, warn, error); overrides the config's [logging] section",
					},
					&cli.StringFlag{
						Name:  "log-format",
						Usage: "log format (text, json); overrides the config's [logging] section",
					},
					&cli.StringFlag{
						Name:  "metrics-listen",
						Usage: "optional address to serve Prometheus metrics on",
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "disable live config reloading",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					SetupLogger(cmd.String("log-level"), cmd.String("log-format"))
					return server.Run(ctx, server.Options{
						ConfigPath:    cmd.String("config"),
						LogLevel:      cmd.String("log-level"),
						LogFormat:     cmd.String("log-format"),
						MetricsListen: cmd.String("metrics-listen"),
						WatchConfig:   !cmd.Bool("no-watch"),
					})
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
