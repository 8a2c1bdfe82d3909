package portal

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultSections(t *testing.T) {
	manifest := mustSections(t)
	want := []string{"executive", "process_efficiency", "fleet", "market", "vehicle_analytics", "advanced", "kpi"}
	if !reflect.DeepEqual(manifest.Codes(), want) {
		t.Fatalf("unexpected codes %#v", manifest.Codes())
	}
	if manifest.Source != "embedded" || manifest.Version != SectionManifestVersion {
		t.Fatalf("unexpected manifest metadata %#v", manifest)
	}
	fleet := mustSection(t, "fleet")
	if !fleet.AutoMonth || !fleet.Insights.Enabled || fleet.Requests[0].Scope != ScopeKPI {
		t.Fatalf("unexpected fleet section %#v", fleet)
	}
	advanced := mustSection(t, "advanced")
	if advanced.Insights.Path != "/kpi/advanced/insights" || len(advanced.Requests) != len(AdvancedGroups) {
		t.Fatalf("unexpected advanced section %#v", advanced)
	}
	vehicles := mustSection(t, "vehicle_analytics")
	if vehicles.Kind != KindVehicleAnalytics || vehicles.Requests[1].Path != "/dashboard/vahan/top-manufacturers" {
		t.Fatalf("unexpected vehicle analytics section %#v", vehicles)
	}
	if route := manifest.Route("process_efficiency"); route.Kind != KindProcessEfficiency {
		t.Fatalf("process efficiency drill-down should derive its narrative, got %#v", route)
	}
}

func TestDecodeSectionsRejectsUnknownFields(t *testing.T) {
	doc := "version: 1\nsections:\n  - code: executive\n    colour: red\n    requests:\n      - {name: summary, path: /x}\n"
	if _, err := DecodeSections(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestDecodeSectionsValidates(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"version":    "version: 2\nsections: []\n",
		"no code":    "version: 1\nsections:\n  - requests: [{name: a, path: /a}]\n",
		"duplicate":  "version: 1\nsections:\n  - {code: a, requests: [{name: a, path: /a}]}\n  - {code: a, requests: [{name: a, path: /a}]}\n",
		"no request": "version: 1\nsections:\n  - {code: a}\n",
		"no path":    "version: 1\nsections:\n  - {code: a, requests: [{name: a}]}\n",
		"bad route":  "version: 1\nsections:\n  - {code: a, requests: [{name: a, path: /a}]}\ndrill_routes:\n  x: {scope: kpi}\n",
	}
	for name, doc := range cases {
		if _, err := DecodeSections(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDecodeSectionsAppliesDefaults(t *testing.T) {
	doc := "version: 1\nsections:\n  - code: permit_renewals\n    requests: [{name: summary, path: /kpi/permits}]\ndrill_routes:\n  permits: {path: /kpi/drilldown/permits}\n"
	manifest, err := DecodeSections(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sec, _ := manifest.Section("permit_renewals")
	if sec.Title != "Permit Renewals" || sec.Kind != "permit_renewals" || sec.Requests[0].Scope != ScopeGeo {
		t.Fatalf("unexpected defaults %#v", sec)
	}
	if manifest.Route("permits").Scope != ScopeKPI {
		t.Fatalf("route scope should default to kpi")
	}
}

func TestReadSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.yaml")
	if err := os.WriteFile(path, defaultSectionsYAML, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	manifest, err := ReadSections(path)
	if err != nil {
		t.Fatalf("read sections: %v", err)
	}
	if manifest.Source != path {
		t.Fatalf("unexpected source %s", manifest.Source)
	}
	if _, err := ReadSections(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestScopeValues(t *testing.T) {
	geo := GeoFilter{State: "Maharashtra", District: "Pune", City: "Haveli"}
	if got := ScopeValues(ScopeGeo, geo, "2025-02").Encode(); got != "c_district=Pune&city=Haveli&state_cd=Maharashtra" {
		t.Fatalf("unexpected geo scope %s", got)
	}
	if got := ScopeValues(ScopeKPI, geo, "2025-02").Encode(); got != "month=2025-02&state=Maharashtra" {
		t.Fatalf("unexpected kpi scope %s", got)
	}
	if got := ScopeValues(ScopeNational, geo, "").Encode(); got != "" {
		t.Fatalf("unexpected national scope %s", got)
	}
}

func TestEndpointValuesAddFixedQuery(t *testing.T) {
	market := mustSection(t, "market")
	got := market.Requests[0].Values(FilterSnapshot{Geo: GeoFilter{State: "Maharashtra"}})
	want := url.Values{"state_cd": {"Maharashtra"}, "limit": {"10"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected values %#v", got)
	}
}

func TestRoutedDrillSourceAddsExtraParams(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload("/kpi/drilldown/rto/breakdown", KPIPayload{"type": "rto"})
	source := RoutedDrillSource{Client: backend, Manifest: mustSections(t)}

	_, err := source.FetchDrilldown(context.Background(), "rto_breakdown", DrillParams{
		Geo:   GeoFilter{State: "MH"},
		Month: "2025-02",
		Extra: map[string]string{"rto": "MH12"},
	})
	if err != nil {
		t.Fatalf("fetch drilldown: %v", err)
	}
	if got := backend.lastQuery("/kpi/drilldown/rto/breakdown").Encode(); got != "month=2025-02&rto=MH12&state=MH" {
		t.Fatalf("unexpected query %s", got)
	}
}

func TestRoutedDrillSourceExpandsPathParams(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload("/dashboard/vahan/oem/maker/1/drilldown", KPIPayload{"type": "oem_maker"})
	backend.setPayload("/dashboard/vahan/oem/model/Grand%20Vitara/drilldown", KPIPayload{"type": "oem_model"})
	source := RoutedDrillSource{Client: backend, Manifest: mustSections(t)}
	ctx := context.Background()

	payload, err := source.FetchDrilldown(ctx, MetricOEMMaker, DrillParams{
		Geo:   GeoFilter{State: "Maharashtra"},
		Extra: map[string]string{"maker_id": "1"},
	})
	if err != nil || payload["type"] != "oem_maker" {
		t.Fatalf("fetch maker drilldown: %#v %v", payload, err)
	}
	if got := backend.lastQuery("/dashboard/vahan/oem/maker/1/drilldown").Encode(); got != "state_cd=Maharashtra&top_n=12" {
		t.Fatalf("unexpected maker query %s", got)
	}

	if _, err := source.FetchDrilldown(ctx, MetricOEMModel, DrillParams{Extra: map[string]string{"model_name": "Grand Vitara"}}); err != nil {
		t.Fatalf("fetch model drilldown: %v", err)
	}
	if backend.callCount("/dashboard/vahan/oem/model/Grand%20Vitara/drilldown") != 1 {
		t.Fatalf("model name should be path escaped")
	}

	if _, err := source.FetchDrilldown(ctx, MetricOEMMaker, DrillParams{}); err == nil {
		t.Fatalf("expected error without maker_id")
	}
}

func TestDecodeSectionsRejectsUnterminatedRouteParam(t *testing.T) {
	doc := "version: 1\nsections:\n  - code: market\n    requests:\n      - {name: summary, path: /x}\ndrill_routes:\n  oem_maker: {path: \"/oem/{maker_id/drilldown\"}\n"
	if _, err := DecodeSections(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected unterminated parameter error")
	}
}
