package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "dnspotify",
		Usage:   "Definitely Not Spotify API server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"DNSP_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP, WebSocket and gRPC health servers",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Apply or roll back schema migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "Apply every pending migration",
						Action: migrateUp,
					},
					{
						Name:  "down",
						Usage: "Roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back, 0 for all"},
						},
						Action: migrateDown,
					},
					{
						Name:   "version",
						Usage:  "Print the current schema version",
						Action: migrateVersion,
					},
				},
			},
			{
				Name:   "reconcile",
				Usage:  "Repair like counts and prune old notifications now",
				Action: reconcile,
			},
			{
				Name:  "import",
				Usage: "Import a legacy JSON export",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "legacy export file", Required: true},
				},
				Action: importLegacy,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
