package portal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ettle/strcase"
)

// NarrativeBundle is the derived text for one dashboard section. Each list is
// in derivation order.
type NarrativeBundle struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	ActionItems     []string `json:"action_items"`
}

// Empty reports whether every list is empty.
func (b NarrativeBundle) Empty() bool {
	return len(b.Insights) == 0 && len(b.Recommendations) == 0 && len(b.ActionItems) == 0
}

// Merge appends other after b.
func (b NarrativeBundle) Merge(other NarrativeBundle) NarrativeBundle {
	return newBundle(
		appendNonEmpty(append([]string(nil), b.Insights...), other.Insights...),
		appendNonEmpty(append([]string(nil), b.Recommendations...), other.Recommendations...),
		appendNonEmpty(append([]string(nil), b.ActionItems...), other.ActionItems...),
	)
}

// Thresholds used by the derivation rules.
const (
	RegistrationDelayThresholdDays  = 30
	RegistrationEscalationDays      = 60
	StaleTicketPercentThreshold     = 25
	ProcessDelayedShareThreshold    = 10
	FleetComplianceScoreThreshold   = 50
	FleetInsuranceExposureThreshold = 50
)

// Fixed narrative lines.
const (
	RecReduceRegistrationDelay = "Reduce registration delays by prioritizing long-lag cases and fixing upstream data issues."
	RecEscalateRegistrations   = "Escalate registrations delayed >60 days to district transport officers with a weekly SLA review."
	RecComplianceDrive         = "Run targeted compliance drives for expiring/expired registrations (SMS/IVR nudges + RTO queue)."
	ActionOpenProcessDrilldown = "Open **Process Efficiency** drilldown and focus on buckets >60 days."
	ActionStaleTicketWarRoom   = "Create a ‘stale ticket’ war-room: reassign >30-day tickets and publish daily closure targets."
	ActionComplianceReminders  = "Generate compliance-risk list and schedule automated reminders for expiring cases."

	RecClearLongDelays      = "Prioritize clearing cases delayed >60 days; add SLA escalation and daily backlog burn-down."
	RecMaintainSLA          = "Maintain current SLA performance; monitor P95 for early signals."
	RecValidateDates        = "Add data validation at source (purchase_dt/regn_dt) and auto-flag negative lags for review."
	ActionOwnLagBucket      = "Identify top contributing RTOs/regions for the highest lag bucket and assign owners."
	ActionExceptionQueue    = "Create an exception queue for invalid sequences and fix at ingestion."
	ActionRerunDrilldown    = "Re-run the drilldown after fixes to confirm lag distribution shift."
	RecFleetCompliance      = "Launch a fleet compliance drive for operators below the compliance score target."
	RecFleetRevenueRecovery = "Recover fleet dues at risk through operator-level notices and payment reminders."
	RecFleetInsurance       = "Flag fleets with high insurance exposure for verification before permit renewal."
	ActionFleetDrilldown    = "Open the **Fleet Vehicles** drilldown to review operators with pending dues."
)

// DeriveExecutive builds the executive dashboard narrative.
func DeriveExecutive(s ExecutiveSummary) NarrativeBundle {
	var aiInsights, aiRecs []string
	for _, item := range s.AIInsights {
		if strings.TrimSpace(item.Message) == "" {
			continue
		}
		if item.Type == "recommendation" {
			aiRecs = append(aiRecs, item.Message)
		} else {
			aiInsights = append(aiInsights, item.Message)
		}
	}

	insights := []string{
		fmt.Sprintf("Total registrations: %s (MoM: %s%%).", FormatCount(s.TotalRegistrations), FormatNumber(s.MonthlyGrowthPercent)),
		fmt.Sprintf("Ticket closure rate: %s%% (avg resolution: %s days).", FormatNumber(s.TicketClosureRate), FormatNumber(s.AvgResolutionTime)),
		fmt.Sprintf("Active registrations: %s%%. Data quality score: %s%%.", FormatNumber(s.ActiveRegistrationsPercent), FormatNumber(s.DataQualityScore)),
	}
	insights = appendNonEmpty(insights, aiInsights...)

	var recs []string
	if s.AvgRegistrationDelay > RegistrationDelayThresholdDays {
		recs = append(recs, RecReduceRegistrationDelay)
	}
	if s.AvgRegistrationDelay > RegistrationEscalationDays {
		recs = append(recs, RecEscalateRegistrations)
	}
	if s.ComplianceRiskCount > 0 {
		recs = append(recs, RecComplianceDrive)
	}
	recs = appendNonEmpty(recs, aiRecs...)

	actions := []string{ActionOpenProcessDrilldown}
	if s.StaleTicketPercent > StaleTicketPercentThreshold {
		actions = append(actions, ActionStaleTicketWarRoom)
	}
	if s.ComplianceRiskCount > 0 {
		actions = append(actions, ActionComplianceReminders)
	}
	return newBundle(insights, recs, actions)
}

// DeriveProcessEfficiency builds the registration lag narrative.
func DeriveProcessEfficiency(p ProcessEfficiency) NarrativeBundle {
	insights := []string{
		fmt.Sprintf("Avg delay: %sd; median: %sd; P95: %sd.", FormatNumber(p.AvgDelayDays), FormatNumber(p.MedianDelayDays), FormatNumber(p.P95DelayDays)),
	}
	if top, ok := topLagBucket(p.LagBuckets); ok {
		insights = append(insights, fmt.Sprintf("Highest volume lag bucket: %s (%s records).", top.Bucket, FormatCount(top.Count)))
	}
	if p.DelayedPct.GT60 != 0 {
		insights = append(insights, fmt.Sprintf("%s%% registrations are delayed >60 days.", FormatNumber(p.DelayedPct.GT60)))
	}
	if p.InvalidDateSequenceCount != 0 {
		insights = append(insights, fmt.Sprintf("%s records have invalid date sequences.", FormatCount(p.InvalidDateSequenceCount)))
	}

	recs := []string{RecMaintainSLA}
	if p.DelayedPct.GT60 > ProcessDelayedShareThreshold {
		recs[0] = RecClearLongDelays
	}
	if p.InvalidDateSequenceCount > 0 {
		recs = append(recs, RecValidateDates)
	}
	return newBundle(insights, recs, []string{ActionOwnLagBucket, ActionExceptionQueue, ActionRerunDrilldown})
}

func topLagBucket(buckets []LagBucket) (LagBucket, bool) {
	var top LagBucket
	found := false
	for _, b := range buckets {
		if !found || b.Count > top.Count {
			top = b
			found = true
		}
	}
	return top, found && top.Bucket != ""
}

// DeriveFleet builds the fleet narrative from the latest month and the
// compliance scores, followed by backend insights.
func DeriveFleet(f FleetSummary, insights InsightsPayload) NarrativeBundle {
	var lines, recs, actions []string
	if f.Latest.Month != "" {
		lines = append(lines, fmt.Sprintf("Latest month: %s (%s fleet vehicles).", f.Latest.Month, FormatCount(f.Latest.Values["Vehicle Owned"])))
	}
	c := f.Compliance
	lines = append(lines, fmt.Sprintf("Fleet compliance score: %s; fitness risk index: %s.", FormatNumber(c.ComplianceScore), FormatNumber(c.FitnessRiskIndex)))
	if c.RevenueAtRisk > 0 {
		lines = append(lines, fmt.Sprintf("Revenue at risk from fleet dues: %s.", FormatINRShort(c.RevenueAtRisk)))
	}
	if c.ComplianceScore < FleetComplianceScoreThreshold {
		recs = append(recs, RecFleetCompliance)
	}
	if c.RevenueAtRisk > 0 {
		recs = append(recs, RecFleetRevenueRecovery)
	}
	if c.InsuranceExposureScore > FleetInsuranceExposureThreshold {
		recs = append(recs, RecFleetInsurance)
	}
	actions = append(actions, ActionFleetDrilldown)
	return newBundle(lines, recs, actions).Merge(DeriveInsights(insights))
}

// DeriveInsights converts backend insight items into narrative lines.
func DeriveInsights(p InsightsPayload) NarrativeBundle {
	var b NarrativeBundle
	for _, item := range p.Insights {
		target := &b.Insights
		if strings.EqualFold(item.Type, "recommendation") {
			target = &b.Recommendations
		}
		*target = appendNonEmpty(*target, item.Text())
	}
	for _, item := range p.Recommendations {
		b.Recommendations = appendNonEmpty(b.Recommendations, item.Text())
	}
	for _, item := range p.ActionItems {
		b.ActionItems = appendNonEmpty(b.ActionItems, item.Text())
	}
	return newBundle(b.Insights, b.Recommendations, b.ActionItems)
}

// Market narrative sections.
const (
	MarketVolume  = "oem-volume"
	MarketModels  = "models"
	MarketRevenue = "revenue"
	MarketPricing = "pricing"
)

// DeriveMarket builds one narrative per manufacturer market chart.
func DeriveMarket(m MarketSummary) map[string]NarrativeBundle {
	var totalVolume float64
	for _, o := range m.OEMs {
		totalVolume += o.Volume
	}
	topVol, hasOEM := topOEM(m.OEMs, func(o OEM) float64 { return o.Volume })
	topRev, _ := topOEM(m.OEMs, func(o OEM) float64 { return o.TotalValue })
	topPrice, _ := topOEM(m.OEMs, func(o OEM) float64 { return o.AvgPrice })

	var volume []string
	if hasOEM && topVol.MakerLabel != "" {
		volume = append(volume, fmt.Sprintf("Top OEM by volume: %s (%s regs).", topVol.MakerLabel, FormatCount(topVol.Volume)))
	}
	if hasOEM && totalVolume > 0 && topVol.Volume > 0 {
		volume = append(volume, fmt.Sprintf("Top OEM contributes ~%.1f%% of total volume (top 10 OEMs).", topVol.Volume/totalVolume*100))
	}

	var models []string
	if len(m.TopModels) > 0 {
		top := m.TopModels[0]
		if top.MakerModel != "" {
			models = append(models, fmt.Sprintf("Top model: %s (%s regs).", top.MakerModel, FormatCount(top.Volume)))
		}
		if top.MakerLabel != "" {
			models = append(models, fmt.Sprintf("Top OEM for this model: %s.", top.MakerLabel))
		}
	}

	revenue := []string{fmt.Sprintf("Market total value: %s.", FormatINRShort(m.MarketTotalValue))}
	if hasOEM && topRev.MakerLabel != "" {
		revenue = append(revenue, fmt.Sprintf("Top OEM by revenue: %s (%s).", topRev.MakerLabel, FormatINRShort(topRev.TotalValue)))
	}

	var pricing []string
	if hasOEM && topPrice.MakerLabel != "" {
		pricing = append(pricing, fmt.Sprintf("Highest avg price OEM: %s (%s).", topPrice.MakerLabel, FormatINRShort(topPrice.AvgPrice)))
	}

	return map[string]NarrativeBundle{
		MarketVolume: newBundle(volume, []string{
			"Use concentration to prioritize OEM engagement for compliance and service readiness.",
			"Monitor shifts in volume share after policy changes or new launches.",
		}, []string{"Click an OEM card below the chart to open the drilldown (L1→L3)."}),
		MarketModels: newBundle(models,
			[]string{"Use model-level concentration to forecast RTO load and compliance demand by geography."},
			[]string{"Click a model card to open the model drilldown (OEM dependency → geography → specs)."}),
		MarketRevenue: newBundle(revenue,
			[]string{"Focus revenue assurance on top-revenue OEMs and their highest-value categories."},
			[]string{"Cross-check revenue share vs volume share to identify premium OEMs."}),
		MarketPricing: newBundle(pricing,
			[]string{"Investigate price outliers for data quality, valuation practices, or segment shifts."},
			[]string{"Use pricing drilldowns to compare avg/median and spread for selected OEMs."}),
	}
}

func topOEM(oems []OEM, by func(OEM) float64) (OEM, bool) {
	if len(oems) == 0 {
		return OEM{}, false
	}
	sorted := append([]OEM(nil), oems...)
	sort.SliceStable(sorted, func(i, j int) bool { return by(sorted[i]) > by(sorted[j]) })
	return sorted[0], true
}

// Derive decodes payload according to kind and derives its narrative.
// Unknown kinds fall back to the backend insight items.
func Derive(kind PayloadKind, payload KPIPayload) NarrativeBundle {
	switch kind {
	case KindExecutive:
		return DeriveExecutive(DecodeExecutive(payload))
	case KindProcessEfficiency:
		return DeriveProcessEfficiency(DecodeProcessEfficiency(payload))
	case KindFleet:
		return DeriveFleet(DecodeFleet(payload, mapValue(payload["compliance"])), DecodeInsights(mapValue(payload["insights"])))
	case KindFleetCompliance:
		return DeriveFleet(FleetSummary{Compliance: DecodeFleetCompliance(payload)}, InsightsPayload{})
	case KindMarket:
		merged := NarrativeBundle{}
		sections := DeriveMarket(DecodeMarket(payload, mapSlice(payload["top_models"])))
		for _, key := range []string{MarketVolume, MarketModels, MarketRevenue, MarketPricing} {
			merged = merged.Merge(sections[key])
		}
		return merged
	case KindVehicleAnalytics:
		return DeriveVehicleAnalytics(DecodeVehicleAnalytics(payload,
			KPIPayload(mapValue(payload["manufacturers"])),
			KPIPayload(mapValue(payload["classes"])),
			KPIPayload(mapValue(payload["delays"]))))
	case KindAdvanced:
		groups := make(map[string]KPIPayload, len(AdvancedGroups))
		for _, group := range AdvancedGroups {
			groups[group.Request] = KPIPayload(mapValue(payload[group.Request]))
		}
		return DeriveAdvanced(DecodeAdvanced(groups))
	default:
		return DeriveInsights(DecodeInsights(payload))
	}
}

// SectionTitle turns a section or metric key into a heading.
func SectionTitle(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strcase.ToCase(key, strcase.TitleCase, ' ')
}

func newBundle(insights, recs, actions []string) NarrativeBundle {
	return NarrativeBundle{
		Insights:        nonNilStrings(insights),
		Recommendations: nonNilStrings(recs),
		ActionItems:     nonNilStrings(actions),
	}
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
