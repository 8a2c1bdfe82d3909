package portal

import (
	"fmt"
	"sort"
)

// DelayedShareThreshold is the delayed percentage above which the vehicle
// analytics narrative asks for SLA work.
const DelayedShareThreshold = 10

// Vehicle analytics narrative tabs.
const (
	VehicleOverview      = "overview"
	VehicleComposition   = "composition"
	VehicleEfficiency    = "efficiency"
	VehicleManufacturers = "manufacturers"
)

// ManufacturerCount is one entry of /dashboard/vahan/top-manufacturers.
type ManufacturerCount struct {
	MakerID    string  `json:"maker_id,omitempty"`
	MakerLabel string  `json:"maker_label"`
	Count      float64 `json:"count"`
}

// RegistrationDelayStats is the decoded /dashboard/vahan/registration-delay-stats.
type RegistrationDelayStats struct {
	AvgDelayDays      float64     `json:"avg_delay_days"`
	MedianDelayDays   float64     `json:"median_delay_days"`
	P90DelayDays      float64     `json:"p90_delay_days"`
	DelayedPercentage float64     `json:"delayed_percentage"`
	Buckets           []LagBucket `json:"delay_buckets"`
}

// VehicleAnalytics combines the four vehicle analytics responses. Split
// series are sorted by value, largest first.
type VehicleAnalytics struct {
	TotalRegistrations float64                `json:"total_registrations"`
	UniqueVehicles     float64                `json:"unique_vehicles"`
	ComplianceAlerts   float64                `json:"compliance_alerts"`
	DataQualityScore   float64                `json:"data_quality_score"`
	ByCategory         []ChartPoint           `json:"by_category"`
	ByFuel             []ChartPoint           `json:"by_fuel"`
	ByState            []ChartPoint           `json:"by_state"`
	MonthlyTrend       []TrendPoint           `json:"monthly_trend"`
	Manufacturers      []ManufacturerCount    `json:"manufacturers"`
	Classes            []ChartPoint           `json:"classes"`
	Delay              RegistrationDelayStats `json:"delay"`
}

// DecodeVehicleAnalytics reads the kpis, manufacturers, classes and delays
// payloads. Array responses arrive wrapped under "items".
func DecodeVehicleAnalytics(kpis, manufacturers, classes, delays KPIPayload) VehicleAnalytics {
	out := VehicleAnalytics{
		TotalRegistrations: floatValue(kpis["total_registrations"]),
		UniqueVehicles:     floatValue(kpis["unique_vehicles"]),
		ComplianceAlerts:   floatValue(kpis["compliance_alerts"]),
		DataQualityScore:   floatValue(kpis["data_quality_score"]),
		ByCategory:         splitPoints(kpis["registration_by_category"]),
		ByFuel:             splitPoints(kpis["registration_by_fuel"]),
		ByState:            splitPoints(kpis["registration_by_state"]),
		Delay: RegistrationDelayStats{
			AvgDelayDays:      floatValue(delays["avg_delay_days"]),
			MedianDelayDays:   floatValue(delays["median_delay_days"]),
			P90DelayDays:      floatValue(delays["p90_delay_days"]),
			DelayedPercentage: floatValue(delays["delayed_percentage"]),
		},
	}
	for _, raw := range mapSlice(kpis["monthly_trend"]) {
		out.MonthlyTrend = append(out.MonthlyTrend, TrendPoint{
			Label: firstString(raw["month"], raw["label"]),
			Value: floatValue(raw["registrations"]),
		})
	}
	for _, raw := range mapSlice(manufacturers["items"]) {
		out.Manufacturers = append(out.Manufacturers, ManufacturerCount{
			MakerID:    stringValue(raw["maker_id"]),
			MakerLabel: stringValue(raw["maker_label"]),
			Count:      floatValue(raw["count"]),
		})
	}
	for _, raw := range mapSlice(classes["items"]) {
		out.Classes = append(out.Classes, ChartPoint{
			Label: firstString(raw["class"], raw["name"]),
			Value: floatValue(raw["count"]),
		})
	}
	for _, raw := range mapSlice(delays["delay_buckets"]) {
		out.Delay.Buckets = append(out.Delay.Buckets, LagBucket{
			Bucket: stringValue(raw["bucket"]),
			Count:  floatValue(raw["count"]),
		})
	}
	return out
}

// splitPoints turns a {name: count} object into points, largest first.
func splitPoints(v any) []ChartPoint {
	raw := mapValue(v)
	points := make([]ChartPoint, 0, len(raw))
	for name, value := range raw {
		points = append(points, ChartPoint{Label: name, Value: floatValue(value)})
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Value == points[j].Value {
			return points[i].Label < points[j].Label
		}
		return points[i].Value > points[j].Value
	})
	return points
}

func firstPoint(points []ChartPoint) (ChartPoint, bool) {
	if len(points) == 0 || points[0].Label == "" {
		return ChartPoint{}, false
	}
	return points[0], true
}

func peakTrend(trend []TrendPoint) (TrendPoint, bool) {
	var peak TrendPoint
	found := false
	for _, p := range trend {
		if !found || p.Value > peak.Value {
			peak = p
			found = true
		}
	}
	return peak, found && peak.Label != ""
}

// DeriveVehicleAnalytics builds the vehicle analytics dashboard narrative.
func DeriveVehicleAnalytics(v VehicleAnalytics) NarrativeBundle {
	insights := []string{
		fmt.Sprintf("Total registrations: %s (unique vehicles: %s).", FormatCount(v.TotalRegistrations), FormatCount(v.UniqueVehicles)),
	}
	category, hasCategory := firstPoint(v.ByCategory)
	if hasCategory {
		insights = append(insights, fmt.Sprintf("Largest category: %s (%s regs).", category.Label, FormatCount(category.Value)))
	}
	if fuel, ok := firstPoint(v.ByFuel); ok {
		insights = append(insights, fmt.Sprintf("Dominant fuel: %s (%s regs).", fuel.Label, FormatCount(fuel.Value)))
	}
	if peak, ok := peakTrend(v.MonthlyTrend); ok {
		insights = append(insights, fmt.Sprintf("Peak month: %s (%s regs).", peak.Label, FormatCount(peak.Value)))
	}
	if len(v.Manufacturers) > 0 && v.Manufacturers[0].MakerLabel != "" {
		top := v.Manufacturers[0]
		insights = append(insights, fmt.Sprintf("Top manufacturer: %s (%s vehicles).", top.MakerLabel, FormatCount(top.Count)))
	}
	insights = append(insights, fmt.Sprintf("Compliance alerts: %s; Data quality: %s%%.", FormatCount(v.ComplianceAlerts), FormatNumber(v.DataQualityScore)))

	var recs []string
	if v.ComplianceAlerts > 0 {
		recs = append(recs, "Run a compliance campaign for expiring/expired registrations and fitness.")
	}
	if v.Delay.DelayedPercentage > DelayedShareThreshold {
		recs = append(recs, "Improve processing SLA by prioritizing delayed buckets and fixing bottlenecks.")
	}
	if hasCategory {
		recs = append(recs, fmt.Sprintf("Allocate resources to the highest-volume category (%s) for maximum impact.", category.Label))
	}

	return newBundle(insights, recs, []string{
		"Open **Total Registrations** drilldown to validate mix and volatility drivers.",
		"Open **Vehicle Value** drilldown to identify revenue concentration by state/category.",
		"Open **Compliance Validity** drilldown to act on expiring/expired buckets.",
	})
}

// DeriveVehicleTabs builds one narrative per vehicle analytics tab.
func DeriveVehicleTabs(v VehicleAnalytics) map[string]NarrativeBundle {
	var overview []string
	if top, ok := firstPoint(v.ByState); ok {
		overview = append(overview, fmt.Sprintf("Top state: %s (%s regs).", top.Label, FormatCount(top.Value)))
	}
	overview = append(overview, "Use monthly trend to spot seasonality and plan capacity.")

	var composition []string
	if top, ok := firstPoint(v.ByCategory); ok {
		composition = append(composition, fmt.Sprintf("Largest category: %s (%s regs).", top.Label, FormatCount(top.Value)))
	}
	if top, ok := firstPoint(v.ByFuel); ok {
		composition = append(composition, fmt.Sprintf("Dominant fuel: %s (%s regs).", top.Label, FormatCount(top.Value)))
	}
	if top, ok := firstPoint(v.Classes); ok {
		composition = append(composition, fmt.Sprintf("Top class: %s (%s regs).", top.Label, FormatCount(top.Value)))
	}

	d := v.Delay
	efficiencyRec := "Maintain SLA performance; monitor the largest delay bucket for drift."
	if d.DelayedPercentage > DelayedShareThreshold {
		efficiencyRec = "Reduce delayed share by focusing on the largest delay bucket and process bottlenecks."
	}

	var makers []string
	if len(v.Manufacturers) > 0 && v.Manufacturers[0].MakerLabel != "" {
		top := v.Manufacturers[0]
		makers = append(makers, fmt.Sprintf("Top manufacturer: %s (%s vehicles).", top.MakerLabel, FormatCount(top.Count)))
	}

	return map[string]NarrativeBundle{
		VehicleOverview: newBundle(overview,
			[]string{"Validate state outliers by drilling into category/fuel composition."},
			[]string{"Export top-10 states and share with state ops leads."}),
		VehicleComposition: newBundle(composition,
			[]string{"Use composition splits to tailor policy nudges (EV, emission norms) and capacity planning."},
			[]string{"Review top 3 classes monthly for compliance and road-safety impact."}),
		VehicleEfficiency: newBundle([]string{
			fmt.Sprintf("On-time processing rate: %.1f%% (delayed: %s%%).", 100-d.DelayedPercentage, FormatNumber(d.DelayedPercentage)),
			fmt.Sprintf("Avg delay: %sd; median: %sd; P90: %sd.", FormatNumber(d.AvgDelayDays), FormatNumber(d.MedianDelayDays), FormatNumber(d.P90DelayDays)),
		}, []string{efficiencyRec}, []string{"Assign owners to the top delay bucket and track weekly burn-down."}),
		VehicleManufacturers: newBundle(makers,
			[]string{"Use OEM split to align enforcement, recall comms, and revenue projections."},
			[]string{"Open the **Manufacturer Market** section for OEM drilldowns on volume, revenue, and pricing."}),
	}
}
