package queries

import (
	"context"
	"sort"

	gocommand "github.com/goliatone/go-command"
	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

// NarrativeView is the narrative of a session with the filter it was
// derived for.
type NarrativeView struct {
	Section    string                            `json:"section"`
	Title      string                            `json:"title"`
	FilterLine string                            `json:"filter_line"`
	Month      string                            `json:"month,omitempty"`
	Keys       []string                          `json:"keys"`
	Bundles    map[string]portal.NarrativeBundle `json:"bundles"`
}

// NarrativeQuery derives the narrative bundles of a session.
type NarrativeQuery struct {
	service sessionLookup
}

// NewNarrativeQuery builds the query.
func NewNarrativeQuery(service sessionLookup) *NarrativeQuery {
	return &NarrativeQuery{service: service}
}

var _ gocommand.Querier[SessionInput, NarrativeView] = (*NarrativeQuery)(nil)

// Query reads the narrative. Keys are sorted so renderers are stable.
func (q *NarrativeQuery) Query(_ context.Context, input SessionInput) (NarrativeView, error) {
	session, err := resolve(q.service, input.SessionID)
	if err != nil {
		return NarrativeView{}, err
	}
	snap := session.Snapshot()
	keys := make([]string, 0, len(snap.Narrative))
	for key := range snap.Narrative {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return NarrativeView{
		Section:    snap.Section.Code,
		Title:      snap.Section.Title,
		FilterLine: snap.FilterLine,
		Month:      snap.Month,
		Keys:       keys,
		Bundles:    snap.Narrative,
	}, nil
}

type sectionSource interface {
	Sections() *portal.SectionManifest
}

// SectionsQuery lists the configured dashboard sections.
type SectionsQuery struct {
	service sectionSource
}

// NewSectionsQuery builds the query.
func NewSectionsQuery(service sectionSource) *SectionsQuery {
	return &SectionsQuery{service: service}
}

var _ gocommand.Querier[struct{}, []portal.Section] = (*SectionsQuery)(nil)

// Query returns the sections in manifest order.
func (q *SectionsQuery) Query(context.Context, struct{}) ([]portal.Section, error) {
	if q.service == nil {
		return nil, errMissingService
	}
	return append([]portal.Section(nil), q.service.Sections().Sections...), nil
}
