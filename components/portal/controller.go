package portal

import (
	"context"
	"errors"
	"io"
	"sort"
)

const defaultTemplate = "portal"

type sessionResolver interface {
	OpenSession(ctx context.Context, section, rawQuery string) (*Session, error)
	Session(id string) (*Session, error)
}

// ControllerOptions wires the controller collaborators.
type ControllerOptions struct {
	Service  sessionResolver
	Renderer Renderer
	Charts   *ChartRenderer
	Template string
}

// Controller turns sessions into renderable views.
type Controller struct {
	service  sessionResolver
	renderer Renderer
	charts   *ChartRenderer
	template string
}

// NewController builds a controller.
func NewController(opts ControllerOptions) *Controller {
	template := opts.Template
	if template == "" {
		template = defaultTemplate
	}
	charts := opts.Charts
	if charts == nil {
		charts = NewChartRenderer()
	}
	return &Controller{
		service:  opts.Service,
		renderer: opts.Renderer,
		charts:   charts,
		template: template,
	}
}

// Open mounts a section session.
func (c *Controller) Open(ctx context.Context, section, rawQuery string) (*Session, error) {
	if c.service == nil {
		return nil, errors.New("portal: controller requires service")
	}
	return c.service.OpenSession(ctx, section, rawQuery)
}

// Session resolves an open session.
func (c *Controller) Session(id string) (*Session, error) {
	if c.service == nil {
		return nil, errors.New("portal: controller requires service")
	}
	return c.service.Session(id)
}

// StatePayload returns the JSON view of a session.
func (c *Controller) StatePayload(ctx context.Context, id string) (SessionSnapshot, error) {
	session, err := c.Session(id)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// RenderTemplate renders the session page into out.
func (c *Controller) RenderTemplate(ctx context.Context, session *Session, out io.Writer) error {
	if c.renderer == nil {
		return errors.New("portal: renderer not configured")
	}
	if session == nil {
		return ErrSessionNotFound
	}
	view, err := c.View(session.Snapshot())
	if err != nil {
		return err
	}
	_, err = c.renderer.Render(c.template, view, out)
	return err
}

// View flattens a snapshot into template data.
func (c *Controller) View(snap SessionSnapshot) (map[string]any, error) {
	charts, err := c.charts.SectionCharts(snap.Section, snap.Dashboard.Data)
	if err != nil {
		return nil, err
	}
	drillCharts, err := c.charts.DrillCharts(snap.DrillDown.Title, snap.DrillDown.Result)
	if err != nil {
		return nil, err
	}

	narrative := make([]map[string]any, 0, len(snap.Narrative))
	for _, key := range sortedKeys(snap.Narrative) {
		bundle := snap.Narrative[key]
		narrative = append(narrative, map[string]any{
			"key":             key,
			"title":           SectionTitle(key),
			"insights":        bundle.Insights,
			"recommendations": bundle.Recommendations,
			"action_items":    bundle.ActionItems,
		})
	}

	errorMessage := ""
	if snap.Dashboard.Err != nil {
		errorMessage = snap.Dashboard.Err.Error()
	}
	lastUpdated := ""
	if !snap.Dashboard.LastUpdated.IsZero() {
		lastUpdated = snap.Dashboard.LastUpdated.Format("02 Jan 2006 15:04")
	}

	return map[string]any{
		"session_id":   snap.ID,
		"url":          snap.URL,
		"title":        snap.Section.Title,
		"section":      snap.Section.Code,
		"filter":       snap.Filter,
		"filter_line":  snap.FilterLine,
		"month":        snap.Month,
		"months":       snap.Months,
		"states":       snap.Options.States,
		"districts":    snap.Options.Districts,
		"cities":       snap.Options.Cities,
		"status":       string(snap.Dashboard.Status),
		"loading":      snap.Dashboard.Loading,
		"error":        errorMessage,
		"last_updated": lastUpdated,
		"cards":        SectionCards(snap.Section, snap.Dashboard.Data),
		"charts":       charts,
		"narrative":    narrative,
		"compliance":   snap.Compliance,
		"drilldown": map[string]any{
			"status": string(snap.DrillDown.Status),
			"metric": snap.DrillDown.Metric,
			"title":  snap.DrillDown.Title,
			"error":  snap.DrillDown.Error,
			"result": snap.DrillDown.Result,
			"charts": drillCharts,
		},
		"toasts": snap.Toasts,
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
