package tui

import (
	"context"
	"sort"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/pkg/export"
)

type sessionOpener interface {
	OpenSession(ctx context.Context, section, rawQuery string) (*portal.Session, error)
	CloseSession(id string)
}

// ServiceLoader loads pages by mounting a short-lived portal session.
type ServiceLoader struct {
	Service sessionOpener
	Query   string
	Style   string
	Width   int
}

// Load implements Loader. Only error toasts are kept on the page.
func (l ServiceLoader) Load(ctx context.Context, section string) (Page, error) {
	session, err := l.Service.OpenSession(ctx, section, l.Query)
	if err != nil {
		return Page{}, err
	}
	defer l.Service.CloseSession(session.ID)
	session.Wait()
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
	rendered, err := export.RenderTerminal(md, l.Style, l.Width)
	if err != nil {
		rendered = md
	}

	page := Page{
		Section:    section,
		Title:      snap.Section.Title,
		FilterLine: snap.FilterLine,
		Cards:      portal.SectionCards(snap.Section, snap.Dashboard.Data),
		Narrative:  rendered,
	}
	for _, toast := range snap.Toasts {
		if toast.Level == "error" {
			page.Toasts = append(page.Toasts, toast.Message)
		}
	}
	return page, nil
}
