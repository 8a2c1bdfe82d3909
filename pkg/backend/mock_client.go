package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/goliatone/go-civic-dashboard/components/portal"
)

// MockData seeds deterministic backend responses for tests or local demos.
type MockData struct {
	States    []string
	Districts map[string][]string
	Cities    map[string][]string
	Payloads  map[string]portal.KPIPayload
	Insights  portal.InsightsPayload
}

// MockClient implements portal.Backend using in-memory fixtures. Payloads are
// keyed by path; geography filters are ignored.
type MockClient struct {
	mu    sync.RWMutex
	data  MockData
	fail  map[string]error
	calls map[string]int
}

var _ portal.Backend = (*MockClient)(nil)

// NewMockClient builds a mock backend from the provided fixtures.
func NewMockClient(data MockData) *MockClient {
	return &MockClient{data: data, fail: map[string]error{}, calls: map[string]int{}}
}

// Fail makes every call to path return err. A nil err clears the failure.
func (c *MockClient) Fail(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, path)
		return
	}
	c.fail[path] = err
}

// Calls reports how many times path was requested.
func (c *MockClient) Calls(path string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[path]
}

// States implements portal.GeoSource.
func (c *MockClient) States(context.Context) ([]string, error) {
	if err := c.record(PathStates); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.data.States...), nil
}

// Districts implements portal.GeoSource.
func (c *MockClient) Districts(_ context.Context, state string) ([]string, error) {
	if err := c.record(PathDistricts); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.data.Districts[state]...), nil
}

// Cities implements portal.GeoSource.
func (c *MockClient) Cities(_ context.Context, state, district string) ([]string, error) {
	if err := c.record(PathCities); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.data.Cities[state+"/"+district]...), nil
}

// GetPayload implements portal.EndpointClient.
func (c *MockClient) GetPayload(_ context.Context, path string, _ url.Values) (portal.KPIPayload, error) {
	if err := c.record(path); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.data.Payloads[path]
	if !ok {
		return nil, &portal.FetchError{Status: 404, Message: "Not Found", URL: path}
	}
	return clonePayload(payload)
}

// FetchInsights implements portal.InsightSource.
func (c *MockClient) FetchInsights(context.Context, portal.InsightQuery) (portal.InsightsPayload, error) {
	if err := c.record(PathInsights); err != nil {
		return portal.InsightsPayload{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.data.Insights
	out.Insights = append([]portal.InsightItem(nil), out.Insights...)
	out.Recommendations = append([]portal.InsightItem(nil), out.Recommendations...)
	out.ActionItems = append([]portal.InsightItem(nil), out.ActionItems...)
	return out, nil
}

func (c *MockClient) record(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[path]++
	return c.fail[path]
}

func clonePayload(payload portal.KPIPayload) (portal.KPIPayload, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backend: clone payload: %w", err)
	}
	var out portal.KPIPayload
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("backend: clone payload: %w", err)
	}
	return out, nil
}

// DemoData returns fixtures shaped like the live backend, used by
// `portalctl serve --mock` and command tests.
func DemoData() MockData {
	return MockData{
		States: []string{"Karnataka", "Maharashtra", "Tamil Nadu"},
		Districts: map[string][]string{
			"Maharashtra": {"Mumbai", "Nagpur", "Pune"},
			"Karnataka":   {"Bengaluru Urban", "Mysuru"},
		},
		Cities: map[string][]string{
			"Maharashtra/Pune":   {"Haveli", "Pimpri-Chinchwad", "Pune City"},
			"Maharashtra/Mumbai": {"Andheri", "Borivali"},
		},
		Payloads: map[string]portal.KPIPayload{
			PathExecutive: {
				"total_registrations":          9536,
				"monthly_growth_percent":       4.2,
				"median_vehicle_value":         845000,
				"avg_registration_delay":       65,
				"active_registrations_percent": 91.5,
				"total_tickets":                1280,
				"ticket_closure_rate":          78.4,
				"avg_resolution_time":          36,
				"data_quality_score":           92.1,
				"compliance_risk_count":        312,
				"stale_ticket_percent":         12.5,
			},
			PathEfficiency: {
				"avg_delay_days":              42.5,
				"median_delay_days":           31,
				"p95_delay_days":              120,
				"delayed_pct":                 map[string]any{"gt_30": 55.0, "gt_60": 28.0, "gt_90": 11.0},
				"invalid_date_sequence_count": 14,
				"record_count":                9536,
				"lag_buckets": []any{
					map[string]any{"bucket": "0-7", "count": 1800},
					map[string]any{"bucket": "8-30", "count": 2500},
					map[string]any{"bucket": "31-60", "count": 2560},
					map[string]any{"bucket": "61-90", "count": 1620},
					map[string]any{"bucket": "90+", "count": 1056},
				},
			},
			"/kpi/fleet/vehicles": {
				"data": []any{
					map[string]any{"Month": "2025-01", "State": "Maharashtra", "Vehicle Owned": 1200, "Vehicle Without Fitness": 80},
					map[string]any{"Month": "2025-02", "State": "Maharashtra", "Vehicle Owned": 1260, "Vehicle Without Fitness": 95},
				},
			},
			"/kpi/advanced/fleet-compliance": {
				"kpis": map[string]any{
					"fleet_compliance_score":   72.5,
					"revenue_at_risk_fleet":    2350000,
					"fitness_risk_index":       18.2,
					"insurance_exposure_score": 22.0,
				},
				"supporting_metrics": map[string]any{"vehicles_without_fitness": 95, "vehicles_without_insurance": 140},
			},
			"/dashboard/vahan/oem/summary": {
				"oems": []any{
					map[string]any{"maker_id": "1", "maker_label": "Maruti Suzuki", "volume": 4200, "total_value": 2.9e9, "avg_price": 690000, "revenue_share_pct": 38.5},
					map[string]any{"maker_id": "2", "maker_label": "Tata Motors", "volume": 2100, "total_value": 1.9e9, "avg_price": 905000, "revenue_share_pct": 25.2},
				},
				"market_total_value": 7.5e9,
			},
			"/dashboard/vahan/oem/top-models": {
				"items": []any{
					map[string]any{"maker_model": "Swift", "maker_label": "Maruti Suzuki", "volume": 900},
					map[string]any{"maker_model": "Nexon", "maker_label": "Tata Motors", "volume": 750},
				},
			},
			"/dashboard/vahan/oem/maker/1/drilldown": {
				"type":    "oem_maker",
				"summary": map[string]any{"maker_label": "Maruti Suzuki", "volume": 4200},
				"data": []any{
					map[string]any{"maker_model": "Swift", "volume": 900},
					map[string]any{"maker_model": "Baleno", "volume": 820},
				},
			},
			"/dashboard/vahan/oem/model/Swift/drilldown": {
				"type":    "oem_model",
				"summary": map[string]any{"maker_model": "Swift", "volume": 900},
				"data": []any{
					map[string]any{"state": "Maharashtra", "volume": 410},
					map[string]any{"state": "Karnataka", "volume": 230},
				},
			},
			"/dashboard/vahan/kpis": {
				"total_registrations":      9536,
				"unique_vehicles":          9311,
				"compliance_alerts":        214,
				"data_quality_score":       92.1,
				"registration_by_category": map[string]any{"LMV": 5120, "2W": 3480, "Transport": 936},
				"registration_by_fuel":     map[string]any{"Petrol": 5900, "Diesel": 2100, "Electric": 1536},
				"registration_by_state":    map[string]any{"Maharashtra": 4100, "Karnataka": 3200, "Tamil Nadu": 2236},
				"monthly_trend": []any{
					map[string]any{"month": "2025-01", "registrations": 4620},
					map[string]any{"month": "2025-02", "registrations": 4916},
				},
			},
			"/dashboard/vahan/top-manufacturers": {
				"items": []any{
					map[string]any{"maker_id": "1", "maker_label": "Maruti Suzuki", "count": 4200},
					map[string]any{"maker_id": "2", "maker_label": "Tata Motors", "count": 2100},
				},
			},
			"/dashboard/vahan/vehicle-class-distribution": {
				"items": []any{
					map[string]any{"class": "Motor Car", "count": 5120},
					map[string]any{"class": "Motor Cycle", "count": 3480},
				},
			},
			"/dashboard/vahan/registration-delay-stats": {
				"avg_delay_days":     18.4,
				"median_delay_days":  9,
				"p90_delay_days":     46,
				"delayed_percentage": 14.2,
				"delay_buckets": []any{
					map[string]any{"bucket": "0-7", "count": 4300},
					map[string]any{"bucket": "8-30", "count": 3880},
					map[string]any{"bucket": "30+", "count": 1356},
				},
			},
			"/kpi/advanced/mobility-growth": {
				"month": "2025-02",
				"kpis":  map[string]any{"vehicle_demand_momentum_index": 6.4, "registration_to_transaction_efficiency": 81.2},
			},
			"/kpi/advanced/digital-governance": {
				"kpis": map[string]any{"digital_service_penetration_score": 74.5, "service_reliability_index": 88.0},
			},
			"/kpi/advanced/revenue-intelligence": {
				"kpis": map[string]any{"revenue_quality_index": 0.82, "penalty_dependency_ratio": 12.5},
			},
			"/kpi/advanced/enforcement-safety": {
				"kpis": map[string]any{"enforcement_effectiveness_ratio": 1.9, "fatality_severity_index": 0.31},
			},
			"/kpi/advanced/insights": {
				"insights": []any{
					map[string]any{"type": "insight", "title": "Digital uptake", "description": "Faceless services cover three quarters of applications."},
				},
				"recommendations": []any{
					map[string]any{"title": "Enforcement", "description": "Shift checks towards high-risk periods."},
				},
			},
			"/kpi/summary": {
				"national_vehicle_registration": 125000,
				"national_revenue":              8.2e9,
				"state_breakdown":               28,
				"service_delivery":              86.5,
			},
			"/kpi/drilldown/fleet-vehicles": {
				"type":    "fleet_vehicles",
				"summary": map[string]any{"total": 1260},
				"trend_data": []any{
					map[string]any{"label": "2025-01", "value": 1200},
					map[string]any{"label": "2025-02", "value": 1260},
				},
			},
		},
		Insights: portal.InsightsPayload{
			Insights: []portal.InsightItem{
				{Type: "insight", Title: "Fleet growth", Description: "Owned vehicles grew 5% month on month."},
			},
			Recommendations: []portal.InsightItem{
				{Type: "recommendation", Title: "Fitness drive", Description: "Target fleets without fitness certificates."},
			},
		},
	}
}
