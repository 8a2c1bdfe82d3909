package portal

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/ettle/strcase"
	"gopkg.in/yaml.v3"
)

const (
	sectionManifestV1 = "1"
	// SectionManifestVersion exposes the manifest format version for tooling.
	SectionManifestVersion = sectionManifestV1
)

//go:embed sections.yaml
var defaultSectionsYAML []byte

// Scope selects which query parameters an endpoint receives.
type Scope string

const (
	// ScopeGeo sends state_cd, c_district and city.
	ScopeGeo Scope = "geo"
	// ScopeKPI sends state (the selected state code) and month.
	ScopeKPI Scope = "kpi"
	// ScopeNational sends month only.
	ScopeNational Scope = "national"
)

// SectionManifest describes the dashboard pages served by the portal.
type SectionManifest struct {
	Version     string                `json:"version" yaml:"version"`
	Sections    []Section             `json:"sections" yaml:"sections"`
	DrillRoutes map[string]DrillRoute `json:"drill_routes" yaml:"drill_routes"`
	Source      string                `json:"-" yaml:"-"`
}

// Section is one dashboard page.
type Section struct {
	Code           string          `json:"code" yaml:"code"`
	Title          string          `json:"title" yaml:"title"`
	Kind           PayloadKind     `json:"kind" yaml:"kind"`
	Subject        string          `json:"subject,omitempty" yaml:"subject,omitempty"`
	SuccessMessage string          `json:"success_message,omitempty" yaml:"success_message,omitempty"`
	AutoMonth      bool            `json:"auto_month,omitempty" yaml:"auto_month,omitempty"`
	Insights       SectionInsights `json:"insights,omitempty" yaml:"insights,omitempty"`
	Requests       []Endpoint      `json:"requests" yaml:"requests"`
	DrillDowns     []string        `json:"drilldowns,omitempty" yaml:"drilldowns,omitempty"`
}

// SectionInsights controls the insights request made with a section. Path
// overrides the default /kpi/insights endpoint.
type SectionInsights struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Endpoint is one backend GET request.
type Endpoint struct {
	Name     string            `json:"name" yaml:"name"`
	Path     string            `json:"path" yaml:"path"`
	Scope    Scope             `json:"scope" yaml:"scope"`
	Query    map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Optional bool              `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// DrillRoute maps a drill-down metric key to its backend endpoint. Path may
// hold {name} segments filled from the drill-down extra parameters. Kind
// selects the narrative derived from the detail payload.
type DrillRoute struct {
	Path  string            `json:"path" yaml:"path"`
	Scope Scope             `json:"scope" yaml:"scope"`
	Kind  PayloadKind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Query map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
}

// Expand fills the {name} segments of the route path from extra. It returns
// the path and the names it consumed.
func (r DrillRoute) Expand(extra map[string]string) (string, map[string]bool, error) {
	used := map[string]bool{}
	var b strings.Builder
	rest := r.Path
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", nil, fmt.Errorf("portal: drill route %s has an unterminated parameter", r.Path)
		}
		name := rest[open+1 : open+end]
		value := strings.TrimSpace(extra[name])
		if value == "" {
			return "", nil, fmt.Errorf("portal: drill route %s requires %q", r.Path, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		used[name] = true
		rest = rest[open+end+1:]
	}
	return b.String(), used, nil
}

// ScopeValues builds the query for scope from a geo filter and month.
func ScopeValues(scope Scope, geo GeoFilter, month string) url.Values {
	values := url.Values{}
	switch scope {
	case ScopeKPI:
		if geo.State != "" {
			values.Set("state", geo.State)
		}
		if month != "" {
			values.Set("month", month)
		}
	case ScopeNational:
		if month != "" {
			values.Set("month", month)
		}
	default:
		values = geo.Values()
	}
	return values
}

// Values returns the query for this endpoint.
func (e Endpoint) Values(snapshot FilterSnapshot) url.Values {
	values := ScopeValues(e.Scope, snapshot.Geo, snapshot.Month)
	keys := make([]string, 0, len(e.Query))
	for key := range e.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values.Set(key, e.Query[key])
	}
	return values
}

// DefaultSections returns the built-in manifest.
func DefaultSections() (*SectionManifest, error) {
	doc, err := DecodeSections(bytes.NewReader(defaultSectionsYAML))
	if err != nil {
		return nil, err
	}
	doc.Source = "embedded"
	return doc, nil
}

// ReadSections loads a manifest from disk.
func ReadSections(path string) (*SectionManifest, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("portal: open sections %s: %w", path, err)
	}
	defer f.Close()
	doc, err := DecodeSections(f)
	if err != nil {
		return nil, fmt.Errorf("portal: decode sections %s: %w", path, err)
	}
	doc.Source = path
	return doc, nil
}

// DecodeSections reads a manifest from any reader.
func DecodeSections(r io.Reader) (*SectionManifest, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var doc SectionManifest
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("portal: sections manifest is empty")
		}
		return nil, fmt.Errorf("portal: parse sections: %w", err)
	}
	doc.applyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate ensures every section and route is usable.
func (doc *SectionManifest) Validate() error {
	if doc.Version != sectionManifestV1 {
		return fmt.Errorf("portal: unsupported sections version %q", doc.Version)
	}
	seen := make(map[string]struct{}, len(doc.Sections))
	for idx, section := range doc.Sections {
		if section.Code == "" {
			return fmt.Errorf("portal: section at index %d is missing code", idx)
		}
		if _, exists := seen[section.Code]; exists {
			return fmt.Errorf("portal: sections duplicate code %s", section.Code)
		}
		seen[section.Code] = struct{}{}
		if len(section.Requests) == 0 {
			return fmt.Errorf("portal: section %s has no requests", section.Code)
		}
		for _, req := range section.Requests {
			if req.Name == "" || req.Path == "" {
				return fmt.Errorf("portal: section %s has a request without name or path", section.Code)
			}
		}
	}
	for metric, route := range doc.DrillRoutes {
		if route.Path == "" {
			return fmt.Errorf("portal: drill route %s is missing path", metric)
		}
		if strings.Count(route.Path, "{") != strings.Count(route.Path, "}") {
			return fmt.Errorf("portal: drill route %s has an unterminated parameter", metric)
		}
	}
	return nil
}

func (doc *SectionManifest) applyDefaults() {
	if doc.Version == "" {
		doc.Version = sectionManifestV1
	}
	for i := range doc.Sections {
		section := &doc.Sections[i]
		if section.Title == "" {
			section.Title = SectionTitle(section.Code)
		}
		if section.Kind == "" {
			section.Kind = PayloadKind(section.Code)
		}
		for j := range section.Requests {
			if section.Requests[j].Scope == "" {
				section.Requests[j].Scope = ScopeGeo
			}
		}
	}
	for metric, route := range doc.DrillRoutes {
		if route.Scope == "" {
			route.Scope = ScopeKPI
			doc.DrillRoutes[metric] = route
		}
	}
}

// Section returns the section with code.
func (doc *SectionManifest) Section(code string) (Section, bool) {
	for _, section := range doc.Sections {
		if section.Code == code {
			return section, true
		}
	}
	return Section{}, false
}

// Codes lists section codes in manifest order.
func (doc *SectionManifest) Codes() []string {
	codes := make([]string, 0, len(doc.Sections))
	for _, section := range doc.Sections {
		codes = append(codes, section.Code)
	}
	return codes
}

// Route resolves the endpoint of a drill-down metric. Unknown metrics fall
// back to /kpi/drilldown/<kebab-case metric>.
func (doc *SectionManifest) Route(metric string) DrillRoute {
	if doc != nil {
		if route, ok := doc.DrillRoutes[metric]; ok {
			return route
		}
	}
	return DrillRoute{Path: "/kpi/drilldown/" + strcase.ToKebab(metric), Scope: ScopeKPI}
}

// EndpointClient performs GET requests against the backend.
type EndpointClient interface {
	GetPayload(ctx context.Context, path string, query url.Values) (KPIPayload, error)
}

// KPIRequests builds the requests of the section backed by client.
func (s Section) KPIRequests(client EndpointClient) []KPIRequest {
	out := make([]KPIRequest, 0, len(s.Requests))
	for _, endpoint := range s.Requests {
		endpoint := endpoint
		out = append(out, KPIRequest{
			Name:     endpoint.Name,
			Optional: endpoint.Optional,
			Source: PayloadSourceFunc(func(ctx context.Context, snapshot FilterSnapshot) (KPIPayload, error) {
				return client.GetPayload(ctx, endpoint.Path, endpoint.Values(snapshot))
			}),
		})
	}
	return out
}

// RoutedDrillSource resolves metrics through a manifest.
type RoutedDrillSource struct {
	Client   EndpointClient
	Manifest *SectionManifest
}

// FetchDrilldown implements DrillSource. Extra parameters not consumed by
// the route path are sent as query parameters after the route defaults.
func (s RoutedDrillSource) FetchDrilldown(ctx context.Context, metric string, params DrillParams) (KPIPayload, error) {
	route := s.Manifest.Route(metric)
	path, used, err := route.Expand(params.Extra)
	if err != nil {
		return nil, err
	}
	values := ScopeValues(route.Scope, params.Geo, params.Month)
	for _, key := range sortedKeys(route.Query) {
		values.Set(key, route.Query[key])
	}
	for _, key := range sortedKeys(params.Extra) {
		if !used[key] {
			values.Set(key, params.Extra[key])
		}
	}
	return s.Client.GetPayload(ctx, path, values)
}

// Kind returns the narrative kind of metric's route.
func (s RoutedDrillSource) Kind(metric string) PayloadKind {
	return s.Manifest.Route(metric).Kind
}

// EndpointInsights reads insight items from a section specific endpoint.
type EndpointInsights struct {
	Client EndpointClient
	Path   string
}

// FetchInsights implements InsightSource.
func (s EndpointInsights) FetchInsights(ctx context.Context, query InsightQuery) (InsightsPayload, error) {
	values := url.Values{}
	if query.State != "" {
		values.Set("state", query.State)
	}
	if query.Month != "" {
		values.Set("month", query.Month)
	}
	if query.Section != "" {
		values.Set("section", query.Section)
	}
	payload, err := s.Client.GetPayload(ctx, s.Path, values)
	if err != nil {
		return InsightsPayload{}, err
	}
	return DecodeInsights(payload), nil
}
