package portal

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"
)

// fakeBackend serves canned geography and payloads. A request whose key has
// a gate blocks until the gate is closed.
type fakeBackend struct {
	mu        sync.Mutex
	states    []string
	districts map[string][]string
	cities    map[string][]string
	payloads  map[string]KPIPayload
	insights  InsightsPayload
	errs      map[string]error
	gates     map[string]chan struct{}
	calls     map[string]int
	queries   map[string]url.Values
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		states: []string{"Karnataka", "Maharashtra"},
		districts: map[string][]string{
			"Maharashtra": {"Mumbai", "Pune"},
			"Karnataka":   {"Mysuru"},
		},
		cities: map[string][]string{
			"Maharashtra|Pune": {"Haveli", "Pune City"},
		},
		payloads: map[string]KPIPayload{},
		errs:     map[string]error{},
		gates:    map[string]chan struct{}{},
		calls:    map[string]int{},
		queries:  map[string]url.Values{},
	}
}

func (f *fakeBackend) hold(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[key] = gate
	return gate
}

func (f *fakeBackend) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeBackend) setPayload(path string, payload KPIPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[path] = payload
}

func (f *fakeBackend) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeBackend) lastQuery(key string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[key]
}

func (f *fakeBackend) enter(ctx context.Context, key string, query url.Values) error {
	f.mu.Lock()
	f.calls[key]++
	f.queries[key] = query
	gate := f.gates[key]
	err := f.errs[key]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) States(ctx context.Context) ([]string, error) {
	if err := f.enter(ctx, "states", nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...), nil
}

func (f *fakeBackend) Districts(ctx context.Context, state string) ([]string, error) {
	if err := f.enter(ctx, "districts:"+state, url.Values{"state_cd": {state}}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.districts[state]...), nil
}

func (f *fakeBackend) Cities(ctx context.Context, state, district string) ([]string, error) {
	if err := f.enter(ctx, "cities:"+state+"|"+district, url.Values{"state_cd": {state}, "c_district": {district}}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cities[state+"|"+district]...), nil
}

func (f *fakeBackend) GetPayload(ctx context.Context, path string, query url.Values) (KPIPayload, error) {
	if err := f.enter(ctx, path, query); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.payloads[path]
	if !ok {
		return nil, &FetchError{Status: 404, Message: "Not Found", URL: path}
	}
	return payload, nil
}

func (f *fakeBackend) FetchInsights(ctx context.Context, query InsightQuery) (InsightsPayload, error) {
	values := url.Values{}
	values.Set("state", query.State)
	values.Set("month", query.Month)
	values.Set("section", query.Section)
	if err := f.enter(ctx, "insights", values); err != nil {
		return InsightsPayload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insights, nil
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingTelemetry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func executiveFixture(delay float64) KPIPayload {
	return KPIPayload{
		"total_registrations":          9536,
		"monthly_growth_percent":       4.2,
		"median_vehicle_value":         845000,
		"avg_registration_delay":       delay,
		"active_registrations_percent": 91.5,
		"ticket_closure_rate":          78.4,
		"avg_resolution_time":          36,
		"data_quality_score":           92.1,
		"compliance_risk_count":        312,
		"stale_ticket_percent":         12.5,
	}
}

func fleetFixture() (KPIPayload, KPIPayload) {
	vehicles := KPIPayload{
		"data": []any{
			map[string]any{"Month": "2025-01", "State": "Maharashtra", "Vehicle Owned": 1200.0},
			map[string]any{"Month": "2025-02", "State": "Maharashtra", "Vehicle Owned": 1260.0},
		},
	}
	compliance := KPIPayload{
		"kpis": map[string]any{
			"fleet_compliance_score":   42.0,
			"revenue_at_risk_fleet":    2350000.0,
			"fitness_risk_index":       18.2,
			"insurance_exposure_score": 60.0,
		},
	}
	return vehicles, compliance
}

func mustSections(t *testing.T) *SectionManifest {
	t.Helper()
	manifest, err := DefaultSections()
	if err != nil {
		t.Fatalf("default sections: %v", err)
	}
	return manifest
}

func mustSection(t *testing.T, code string) Section {
	t.Helper()
	sec, ok := mustSections(t).Section(code)
	if !ok {
		t.Fatalf("missing section %s", code)
	}
	return sec
}
