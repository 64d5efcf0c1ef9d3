package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/chazu/knurl/pkg/config"
	"github.com/chazu/knurl/pkg/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed examples/vase.lisp
var defaultGraph string

func main() {
	app := &cli.App{
		Name:  "knurl-desktop",
		Usage: "Tune a parametric model with dials",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "HCL configuration file"},
			&cli.StringFlag{Name: "graph", Aliases: []string{"g"}, Usage: "graph definition loaded on startup"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	source := defaultGraph
	if path := c.String("graph"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading graph: %w", err)
		}
		source = string(b)
	}

	a, err := NewApp(cfg, logger, source)
	if err != nil {
		return err
	}
	return wails.Run(&options.App{
		Title:       "knurl",
		Width:       1280,
		Height:      800,
		AssetServer: &assetserver.Options{Assets: assets},
		OnStartup:   a.startup,
		OnShutdown:  a.shutdown,
		Bind:        []interface{}{a},
	})
}
