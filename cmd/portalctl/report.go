package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/pkg/export"
)

// FilterFlags select the geography and month of a report.
type FilterFlags struct {
	State    string `help:"State filter."`
	District string `help:"District filter (requires --state)."`
	City     string `help:"City filter (requires --district)."`
	Month    string `help:"Reporting month (YYYY-MM) for sections that support it."`
}

func (f FilterFlags) query() string {
	values := url.Values{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			values.Set(key, value)
		}
	}
	set(string(portal.FieldState), f.State)
	set(string(portal.FieldDistrict), f.District)
	set(string(portal.FieldCity), f.City)
	set("month", f.Month)
	return portal.EncodeQuery(values)
}

type summaryCmd struct {
	FilterFlags `embed:""`

	Section string `arg:"" default:"executive" help:"Section code."`
	JSON    bool   `name:"json" help:"Print the full session snapshot as JSON."`
}

func (cmd *summaryCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	session, err := a.open(ctx, cmd.Section, cmd.query())
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	if cmd.JSON {
		return writeJSON(os.Stdout, snap)
	}

	fmt.Fprintf(os.Stdout, "%s\n%s\n", lipgloss.NewStyle().Bold(true).Render(snap.Section.Title), snap.FilterLine)
	if snap.Month != "" {
		fmt.Fprintf(os.Stdout, "Month: %s\n", snap.Month)
	}
	rows := [][]string{}
	for _, card := range portal.SectionCards(snap.Section, snap.Dashboard.Data) {
		rows = append(rows, []string{card.Label, card.Value, card.Metric})
	}
	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Metric", "Value", "Drill-down").
			Rows(rows...)
		fmt.Fprintln(os.Stdout, t.String())
	}
	return reportToasts(os.Stderr, snap.Toasts, snap.Dashboard.Err)
}

type narrativeCmd struct {
	FilterFlags `embed:""`

	Section string `arg:"" default:"executive" help:"Section code."`
	Style   string `default:"auto" help:"Glamour style (auto, dark, light, notty)."`
	Width   int    `default:"100" help:"Word wrap width."`
	Raw     bool   `help:"Print markdown without terminal styling."`
}

func (cmd *narrativeCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	session, err := a.open(ctx, cmd.Section, cmd.query())
	if err != nil {
		return err
	}
	snap := session.Snapshot()
	keys := make([]string, 0, len(snap.Narrative))
	for key := range snap.Narrative {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	md := export.Narrative{
		Title:      snap.Section.Title,
		FilterLine: snap.FilterLine,
		Month:      snap.Month,
		Keys:       keys,
		Bundles:    snap.Narrative,
	}.Markdown()
	if !cmd.Raw {
		if rendered, err := export.RenderTerminal(md, cmd.Style, cmd.Width); err == nil {
			md = rendered
		}
	}
	fmt.Fprint(os.Stdout, md)
	return reportToasts(os.Stderr, snap.Toasts, snap.Dashboard.Err)
}

type drilldownCmd struct {
	FilterFlags `embed:""`

	Section string            `arg:"" help:"Section code the metric belongs to."`
	Metric  string            `arg:"" help:"Metric key (see the Drill-down column of summary)."`
	Param   map[string]string `help:"Extra drill-down query parameters (key=value)."`
	PNG     string            `name:"png" type:"path" help:"Write the trend as a PNG chart to this path."`
}

func (cmd *drilldownCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	session, err := a.open(ctx, cmd.Section, cmd.query())
	if err != nil {
		return err
	}
	if _, err := session.OpenDrillDown(ctx, cmd.Metric, cmd.Param); err != nil {
		return err
	}
	session.Wait()
	state := session.Snapshot().DrillDown
	if state.Status == portal.DrillError {
		return fmt.Errorf("portalctl: %s", state.Error)
	}
	if state.Result == nil {
		return fmt.Errorf("portalctl: drill-down for %s returned no data", cmd.Metric)
	}
	if cmd.PNG != "" {
		if err := writeTrendPNG(cmd.PNG, state.Title, state.Result.Detail.Trend); err != nil {
			return err
		}
		a.logger.Info("trend exported", "path", cmd.PNG, "points", len(state.Result.Detail.Trend))
	}
	return writeJSON(os.Stdout, state)
}

func writeTrendPNG(path, title string, trend []portal.TrendPoint) error {
	points := make([]portal.ChartPoint, 0, len(trend))
	for _, p := range trend {
		points = append(points, portal.ChartPoint{Label: p.Label, Value: p.Value})
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("portalctl: create png: %w", err)
	}
	if err := export.TrendPNG(f, title, points, export.PNGOptions{}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type optionsCmd struct {
	FilterFlags `embed:""`

	Section string `default:"executive" help:"Section used to mount the session."`
}

func (cmd *optionsCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	session, err := a.open(ctx, cmd.Section, cmd.query())
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, session.Snapshot().Options)
}

type sectionsCmd struct{}

func (cmd *sectionsCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	t := table.New().Border(lipgloss.NormalBorder()).Headers("Code", "Title", "Kind")
	for _, sec := range a.sections.Sections {
		t.Row(sec.Code, sec.Title, string(sec.Kind))
	}
	fmt.Fprintln(os.Stdout, t.String())
	return nil
}

func reportToasts(w io.Writer, toasts []portal.Toast, fetchErr *portal.FetchError) error {
	for _, toast := range toasts {
		if toast.Level == "error" {
			fmt.Fprintln(w, "error:", toast.Message)
		}
	}
	if fetchErr != nil {
		return fetchErr
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
