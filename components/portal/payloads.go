package portal

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// KPIPayload is a backend response before decoding.
type KPIPayload map[string]any

// PayloadKind tags a KPIPayload with the endpoint that produced it.
type PayloadKind string

const (
	KindExecutive         PayloadKind = "executive"
	KindProcessEfficiency PayloadKind = "process_efficiency"
	KindFleet             PayloadKind = "fleet"
	KindFleetCompliance   PayloadKind = "fleet_compliance"
	KindMarket            PayloadKind = "market"
	KindVehicleAnalytics  PayloadKind = "vehicle_analytics"
	KindAdvanced          PayloadKind = "advanced"
	KindInsights          PayloadKind = "insights"
	KindDrillDown         PayloadKind = "drilldown"
)

// AIInsight is a backend-generated message attached to the executive summary.
type AIInsight struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExecutiveSummary is the decoded /dashboard/executive-summary response.
type ExecutiveSummary struct {
	TotalRegistrations         float64     `json:"total_registrations"`
	MonthlyGrowthPercent       float64     `json:"monthly_growth_percent"`
	MedianVehicleValue         float64     `json:"median_vehicle_value"`
	AvgRegistrationDelay       float64     `json:"avg_registration_delay"`
	ActiveRegistrationsPercent float64     `json:"active_registrations_percent"`
	TotalTickets               float64     `json:"total_tickets"`
	TicketClosureRate          float64     `json:"ticket_closure_rate"`
	AvgResolutionTime          float64     `json:"avg_resolution_time"`
	DataQualityScore           float64     `json:"data_quality_score"`
	ComplianceRiskCount        float64     `json:"compliance_risk_count"`
	StaleTicketPercent         float64     `json:"stale_ticket_percent"`
	AIInsights                 []AIInsight `json:"ai_insights"`
}

// LagBucket is one bar of the registration lag histogram.
type LagBucket struct {
	Bucket string  `json:"bucket"`
	Count  float64 `json:"count"`
}

// DelayedShare holds the share of registrations above each delay threshold.
type DelayedShare struct {
	GT30 float64 `json:"gt_30"`
	GT60 float64 `json:"gt_60"`
	GT90 float64 `json:"gt_90"`
}

// ProcessEfficiency is the decoded /dashboard/vahan/process-efficiency response.
type ProcessEfficiency struct {
	AvgDelayDays             float64      `json:"avg_delay_days"`
	MedianDelayDays          float64      `json:"median_delay_days"`
	P95DelayDays             float64      `json:"p95_delay_days"`
	DelayedPct               DelayedShare `json:"delayed_pct"`
	InvalidDateSequenceCount float64      `json:"invalid_date_sequence_count"`
	RecordCount              float64      `json:"record_count"`
	LagBuckets               []LagBucket  `json:"lag_buckets"`
}

// FleetRow is one monthly row of /kpi/fleet/vehicles. Column names follow
// the source spreadsheet.
type FleetRow struct {
	Month  string             `json:"month"`
	State  string             `json:"state,omitempty"`
	Values map[string]float64 `json:"values"`
}

// FleetCompliance is the decoded /kpi/advanced/fleet-compliance response.
type FleetCompliance struct {
	ComplianceScore        float64            `json:"fleet_compliance_score"`
	RevenueAtRisk          float64            `json:"revenue_at_risk_fleet"`
	FitnessRiskIndex       float64            `json:"fitness_risk_index"`
	InsuranceExposureScore float64            `json:"insurance_exposure_score"`
	SupportingMetrics      map[string]float64 `json:"supporting_metrics"`
}

// FleetSummary combines the fleet vehicles rows with the compliance scores.
type FleetSummary struct {
	Rows       []FleetRow      `json:"rows"`
	Latest     FleetRow        `json:"latest"`
	Months     []string        `json:"months"`
	Compliance FleetCompliance `json:"compliance"`
}

// OEM is one manufacturer in the market summary.
type OEM struct {
	MakerID         string  `json:"maker_id"`
	MakerLabel      string  `json:"maker_label"`
	Volume          float64 `json:"volume"`
	TotalValue      float64 `json:"total_value"`
	AvgPrice        float64 `json:"avg_price"`
	RevenueSharePct float64 `json:"revenue_share_pct"`
}

// TopModel is one entry of /dashboard/vahan/oem/top-models.
type TopModel struct {
	MakerModel string  `json:"maker_model"`
	MakerLabel string  `json:"maker_label"`
	Volume     float64 `json:"volume"`
}

// MarketSummary is the decoded manufacturer market data.
type MarketSummary struct {
	OEMs             []OEM      `json:"oems"`
	MarketTotalValue float64    `json:"market_total_value"`
	TopModels        []TopModel `json:"top_models"`
}

// InsightItem is one backend narrative entry.
type InsightItem struct {
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Metric      string `json:"metric,omitempty"`
	Trend       string `json:"trend,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Effort      string `json:"effort,omitempty"`
}

// Text renders the item as a single narrative line.
func (i InsightItem) Text() string {
	title := strings.TrimSpace(i.Title)
	desc := strings.TrimSpace(i.Description)
	switch {
	case title != "" && desc != "":
		return title + ": " + desc
	case desc != "":
		return desc
	default:
		return title
	}
}

// InsightsSummary carries the backend counters.
type InsightsSummary struct {
	TotalInsights        int `json:"total_insights"`
	TotalRecommendations int `json:"total_recommendations"`
	TotalActionItems     int `json:"total_action_items"`
}

// InsightsPayload is the decoded /kpi/insights response.
type InsightsPayload struct {
	Insights        []InsightItem   `json:"insights"`
	Recommendations []InsightItem   `json:"recommendations"`
	ActionItems     []InsightItem   `json:"action_items"`
	Summary         InsightsSummary `json:"summary"`
}

// Empty reports whether the payload has no items.
func (p InsightsPayload) Empty() bool {
	return len(p.Insights) == 0 && len(p.Recommendations) == 0 && len(p.ActionItems) == 0
}

// TrendPoint is one point of a drill-down trend series.
type TrendPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// DrilldownPayload is the decoded /kpi/drilldown/* response.
type DrilldownPayload struct {
	Type              string           `json:"type,omitempty"`
	Summary           map[string]any   `json:"summary,omitempty"`
	SupportingMetrics map[string]any   `json:"supporting_metrics,omitempty"`
	Trend             []TrendPoint     `json:"trend_data,omitempty"`
	Rows              []map[string]any `json:"data,omitempty"`
	Raw               KPIPayload       `json:"-"`
}

// DecodeExecutive reads an executive summary, defaulting missing fields to zero.
func DecodeExecutive(p KPIPayload) ExecutiveSummary {
	out := ExecutiveSummary{
		TotalRegistrations:         floatValue(p["total_registrations"]),
		MonthlyGrowthPercent:       floatValue(p["monthly_growth_percent"]),
		MedianVehicleValue:         floatValue(p["median_vehicle_value"]),
		AvgRegistrationDelay:       floatValue(p["avg_registration_delay"]),
		ActiveRegistrationsPercent: floatValue(p["active_registrations_percent"]),
		TotalTickets:               floatValue(p["total_tickets"]),
		TicketClosureRate:          floatValue(p["ticket_closure_rate"]),
		AvgResolutionTime:          floatValue(p["avg_resolution_time"]),
		DataQualityScore:           floatValue(p["data_quality_score"]),
		ComplianceRiskCount:        floatValue(p["compliance_risk_count"]),
		StaleTicketPercent:         floatValue(p["stale_ticket_percent"]),
	}
	for _, raw := range mapSlice(p["ai_insights"]) {
		out.AIInsights = append(out.AIInsights, AIInsight{
			Type:    stringValue(raw["type"]),
			Message: stringValue(raw["message"]),
		})
	}
	return out
}

// DecodeProcessEfficiency reads the process efficiency drill-down.
func DecodeProcessEfficiency(p KPIPayload) ProcessEfficiency {
	delayed := mapValue(p["delayed_pct"])
	out := ProcessEfficiency{
		AvgDelayDays:    floatValue(p["avg_delay_days"]),
		MedianDelayDays: floatValue(p["median_delay_days"]),
		P95DelayDays:    floatValue(p["p95_delay_days"]),
		DelayedPct: DelayedShare{
			GT30: floatValue(delayed["gt_30"]),
			GT60: floatValue(delayed["gt_60"]),
			GT90: floatValue(delayed["gt_90"]),
		},
		InvalidDateSequenceCount: floatValue(p["invalid_date_sequence_count"]),
		RecordCount:              floatValue(p["record_count"]),
	}
	for _, raw := range mapSlice(p["lag_buckets"]) {
		out.LagBuckets = append(out.LagBuckets, LagBucket{
			Bucket: stringValue(raw["bucket"]),
			Count:  floatValue(raw["count"]),
		})
	}
	return out
}

// DecodeFleetRows reads the `data` rows of /kpi/fleet/vehicles.
func DecodeFleetRows(p KPIPayload) []FleetRow {
	rows := mapSlice(p["data"])
	out := make([]FleetRow, 0, len(rows))
	for _, raw := range rows {
		row := FleetRow{
			Month:  stringValue(raw["Month"]),
			State:  stringValue(raw["State"]),
			Values: make(map[string]float64, len(raw)),
		}
		for key, value := range raw {
			if key == "Month" || key == "State" {
				continue
			}
			if f, ok := numberValue(value); ok {
				row.Values[key] = f
			}
		}
		out = append(out, row)
	}
	return out
}

// DecodeFleetCompliance reads /kpi/advanced/fleet-compliance.
func DecodeFleetCompliance(p KPIPayload) FleetCompliance {
	kpis := mapValue(p["kpis"])
	out := FleetCompliance{
		ComplianceScore:        floatValue(kpis["fleet_compliance_score"]),
		RevenueAtRisk:          floatValue(kpis["revenue_at_risk_fleet"]),
		FitnessRiskIndex:       floatValue(kpis["fitness_risk_index"]),
		InsuranceExposureScore: floatValue(kpis["insurance_exposure_score"]),
		SupportingMetrics:      map[string]float64{},
	}
	for key, value := range mapValue(p["supporting_metrics"]) {
		out.SupportingMetrics[key] = floatValue(value)
	}
	return out
}

// DecodeFleet builds a FleetSummary from the vehicles and compliance payloads.
func DecodeFleet(vehicles, compliance KPIPayload) FleetSummary {
	rows := DecodeFleetRows(vehicles)
	return FleetSummary{
		Rows:       rows,
		Latest:     LatestFleetRow(rows),
		Months:     FleetMonths(rows),
		Compliance: DecodeFleetCompliance(compliance),
	}
}

// FleetMonths returns the distinct months, newest first.
func FleetMonths(rows []FleetRow) []string {
	seen := map[string]struct{}{}
	months := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Month == "" {
			continue
		}
		if _, ok := seen[row.Month]; ok {
			continue
		}
		seen[row.Month] = struct{}{}
		months = append(months, row.Month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// LatestFleetRow returns the row with the greatest month.
func LatestFleetRow(rows []FleetRow) FleetRow {
	var latest FleetRow
	found := false
	for _, row := range rows {
		if !found || row.Month > latest.Month {
			latest = row
			found = true
		}
	}
	return latest
}

// DecodeMarket reads the OEM summary and top models responses.
func DecodeMarket(summary KPIPayload, models []map[string]any) MarketSummary {
	out := MarketSummary{MarketTotalValue: floatValue(summary["market_total_value"])}
	for _, raw := range mapSlice(summary["oems"]) {
		out.OEMs = append(out.OEMs, OEM{
			MakerID:         stringValue(raw["maker_id"]),
			MakerLabel:      stringValue(raw["maker_label"]),
			Volume:          floatValue(raw["volume"]),
			TotalValue:      floatValue(raw["total_value"]),
			AvgPrice:        floatValue(raw["avg_price"]),
			RevenueSharePct: floatValue(raw["revenue_share_pct"]),
		})
	}
	for _, raw := range models {
		out.TopModels = append(out.TopModels, TopModel{
			MakerModel: stringValue(raw["maker_model"]),
			MakerLabel: stringValue(raw["maker_label"]),
			Volume:     floatValue(raw["volume"]),
		})
	}
	return out
}

// DecodeInsights reads /kpi/insights. Items inside `insights` tagged as
// recommendations are moved to the recommendations list.
func DecodeInsights(p KPIPayload) InsightsPayload {
	var out InsightsPayload
	for _, item := range decodeInsightItems(p["insights"]) {
		if strings.EqualFold(item.Type, "recommendation") {
			out.Recommendations = append(out.Recommendations, item)
			continue
		}
		out.Insights = append(out.Insights, item)
	}
	for _, item := range decodeInsightItems(p["recommendations"]) {
		if item.Type == "" {
			item.Type = "recommendation"
		}
		out.Recommendations = append(out.Recommendations, item)
	}
	for _, item := range decodeInsightItems(p["action_items"]) {
		if item.Type == "" {
			item.Type = "action"
		}
		out.ActionItems = append(out.ActionItems, item)
	}
	summary := mapValue(p["summary"])
	out.Summary = InsightsSummary{
		TotalInsights:        intValue(summary["total_insights"]),
		TotalRecommendations: intValue(summary["total_recommendations"]),
		TotalActionItems:     intValue(summary["total_action_items"]),
	}
	return out
}

func decodeInsightItems(v any) []InsightItem {
	raw := mapSlice(v)
	out := make([]InsightItem, 0, len(raw))
	for _, item := range raw {
		out = append(out, InsightItem{
			Type:        stringValue(item["type"]),
			Title:       stringValue(item["title"]),
			Description: firstString(item["description"], item["message"]),
			Category:    stringValue(item["category"]),
			Metric:      stringValue(item["metric"]),
			Trend:       stringValue(item["trend"]),
			Priority:    stringValue(item["priority"]),
			Impact:      stringValue(item["impact"]),
			Effort:      stringValue(item["effort"]),
		})
	}
	return out
}

// DecodeDrilldown reads a drill-down detail response.
func DecodeDrilldown(p KPIPayload) DrilldownPayload {
	out := DrilldownPayload{
		Type:              stringValue(p["type"]),
		Summary:           mapValue(p["summary"]),
		SupportingMetrics: mapValue(p["supporting_metrics"]),
		Rows:              mapSlice(p["data"]),
		Raw:               p,
	}
	for _, raw := range mapSlice(p["trend_data"]) {
		label := firstString(raw["label"], raw["month"], raw["Month"], raw["name"])
		value, ok := numberValue(raw["value"])
		if !ok {
			value = firstNumber(raw)
		}
		out.Trend = append(out.Trend, TrendPoint{Label: label, Value: value})
	}
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := strings.TrimSpace(stringValue(v)); s != "" {
			return s
		}
	}
	return ""
}

// numberValue accepts JSON numbers and numeric strings such as "1,234".
func numberValue(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, val)
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func floatValue(v any) float64 {
	f, _ := numberValue(v)
	return f
}

func intValue(v any) int {
	return int(floatValue(v))
}

func firstNumber(m map[string]any) float64 {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, isString := m[key].(string); isString {
			continue
		}
		if f, ok := numberValue(m[key]); ok {
			return f
		}
	}
	return 0
}

func mapValue(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case KPIPayload:
		return val
	default:
		return map[string]any{}
	}
}

func mapSlice(v any) []map[string]any {
	switch val := v.(type) {
	case []map[string]any:
		return val
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
