package portal

import "fmt"

// AdvancedGroup is one /kpi/advanced/* request of the advanced KPI section.
// Lead is the kpis key shown on its card; Metric is the drill-down it opens.
type AdvancedGroup struct {
	Request   string
	Metric    string
	Lead      string
	LeadLabel string
	Unit      string
}

// AdvancedGroups lists the advanced KPI requests in display order.
var AdvancedGroups = []AdvancedGroup{
	{Request: "mobility", Metric: "mobility_growth", Lead: "vehicle_demand_momentum_index", LeadLabel: "Vehicle Demand Momentum Index", Unit: "%"},
	{Request: "digital", Metric: "digital_governance", Lead: "digital_service_penetration_score", LeadLabel: "Digital Service Penetration Score", Unit: "%"},
	{Request: "revenue", Metric: "revenue_intelligence", Lead: "revenue_quality_index", LeadLabel: "Revenue Quality Index"},
	{Request: "enforcement", Metric: "enforcement_safety", Lead: "enforcement_effectiveness_ratio", LeadLabel: "Enforcement Effectiveness Ratio"},
}

// AdvancedKPIs holds the kpis object of every advanced request, keyed by
// request name.
type AdvancedKPIs struct {
	Month  string                        `json:"month,omitempty"`
	Groups map[string]map[string]float64 `json:"groups"`
}

// Lead returns the card value of group and whether the backend sent it.
func (a AdvancedKPIs) Lead(group AdvancedGroup) (float64, bool) {
	v, ok := a.Groups[group.Request][group.Lead]
	return v, ok
}

// DecodeAdvanced reads the advanced payloads keyed by request name.
func DecodeAdvanced(payloads map[string]KPIPayload) AdvancedKPIs {
	out := AdvancedKPIs{Groups: map[string]map[string]float64{}}
	for _, group := range AdvancedGroups {
		payload := payloads[group.Request]
		if out.Month == "" {
			out.Month = stringValue(payload["month"])
		}
		kpis := map[string]float64{}
		for key, value := range mapValue(payload["kpis"]) {
			if f, ok := numberValue(value); ok {
				kpis[key] = f
			}
		}
		out.Groups[group.Request] = kpis
	}
	return out
}

// DeriveAdvanced lists the lead index of every advanced group. Backend
// insights from /kpi/advanced/insights are merged by the caller.
func DeriveAdvanced(a AdvancedKPIs) NarrativeBundle {
	var insights []string
	if a.Month != "" {
		insights = append(insights, fmt.Sprintf("Reporting month: %s.", a.Month))
	}
	for _, group := range AdvancedGroups {
		if v, ok := a.Lead(group); ok {
			insights = append(insights, fmt.Sprintf("%s: %s%s.", group.LeadLabel, FormatNumber(v), group.Unit))
		}
	}
	return newBundle(insights, nil, []string{"Open an index card to review its state and trend breakdown."})
}
