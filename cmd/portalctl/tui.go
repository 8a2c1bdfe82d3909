package main

import (
	"context"

	"github.com/goliatone/go-civic-dashboard/pkg/tui"
)

type tuiCmd struct {
	FilterFlags `embed:""`

	Style string `default:"auto" help:"Glamour style for the narrative pane."`
	Width int    `default:"100" help:"Narrative word wrap width."`
}

func (cmd *tuiCmd) Run(ctx context.Context, g *Globals) error {
	// Log records would tear the alternate screen.
	if g.LogLevel == "" {
		g.LogLevel = "error"
	}
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	loader := tui.ServiceLoader{
		Service: a.service,
		Query:   cmd.query(),
		Style:   cmd.Style,
		Width:   cmd.Width,
	}
	return tui.Run(tui.New(ctx, a.sections.Sections, loader))
}
