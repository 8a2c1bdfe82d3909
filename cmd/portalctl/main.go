package main

import (
	"context"

	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string   `short:"c" type:"path" help:"Path to a portal YAML config file."`
	EnvFile  []string `name:"env-file" type:"path" help:"Dotenv files loaded before reading the environment (repeatable)."`
	Mock     bool     `help:"Serve the built-in demo data instead of calling the backend."`
	LogLevel string   `name:"log-level" help:"Override the configured log level (debug, info, warn, error)."`
}

type cli struct {
	Globals

	Serve          serveCmd          `cmd:"" help:"Serve the portal over HTTP with live WebSocket updates."`
	Summary        summaryCmd        `cmd:"" help:"Print the KPI cards of a section."`
	Narrative      narrativeCmd      `cmd:"" help:"Print the derived insights, recommendations and actions of a section."`
	Drilldown      drilldownCmd      `cmd:"" help:"Fetch a metric drill-down and optionally export its trend as PNG."`
	Options        optionsCmd        `cmd:"" help:"List the state, district and city options for a filter."`
	Sections       sectionsCmd       `cmd:"" help:"List the configured dashboard sections."`
	TUI            tuiCmd            `cmd:"" name:"tui" help:"Browse the dashboard sections in the terminal."`
	Engine         engineCmd         `cmd:"" help:"Call the document, identity and vehicle verification engines."`
}

func main() {
	c := &cli{}
	ctx := kong.Parse(c,
		kong.Name("portalctl"),
		kong.Description("Citizen services analytics portal."),
		kong.UsageOnError(),
	)
	err := ctx.Run(context.Background(), &c.Globals)
	ctx.FatalIfErrorf(err)
}
