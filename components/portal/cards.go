package portal

import "fmt"

// Drill-down keys of the manufacturer cards.
const (
	MetricOEMMaker = "oem_maker"
	MetricOEMModel = "oem_model"
)

// KPICard is one headline metric on a section. Metric is the drill-down key
// opened when the card is clicked; it is empty for cards without detail.
// Params are passed to the drill-down as extra parameters.
type KPICard struct {
	Label  string            `json:"label"`
	Value  string            `json:"value"`
	Metric string            `json:"metric,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// SectionCards formats the headline metrics of a section. A nil data yields
// no cards.
func SectionCards(sec Section, data *DashboardData) []KPICard {
	if data == nil {
		return nil
	}
	primary := data.Payload(primaryRequest(sec))
	switch sec.Kind {
	case KindExecutive:
		s := DecodeExecutive(primary)
		return []KPICard{
			{Label: "Total Registrations", Value: FormatCount(s.TotalRegistrations)},
			{Label: "Monthly Growth", Value: fmt.Sprintf("%.1f%%", s.MonthlyGrowthPercent)},
			{Label: "Median Vehicle Value", Value: FormatLakh(s.MedianVehicleValue)},
			{Label: "Avg Registration Delay", Value: fmt.Sprintf("%s days", FormatNumber(s.AvgRegistrationDelay)), Metric: "process_efficiency"},
			{Label: "Ticket Closure Rate", Value: fmt.Sprintf("%.1f%%", s.TicketClosureRate)},
			{Label: "Data Quality Score", Value: fmt.Sprintf("%.1f%%", s.DataQualityScore)},
		}
	case KindProcessEfficiency:
		p := DecodeProcessEfficiency(primary)
		return []KPICard{
			{Label: "Average Delay", Value: fmt.Sprintf("%s days", FormatNumber(p.AvgDelayDays))},
			{Label: "Median Delay", Value: fmt.Sprintf("%s days", FormatNumber(p.MedianDelayDays))},
			{Label: "P95 Delay", Value: fmt.Sprintf("%s days", FormatNumber(p.P95DelayDays))},
			{Label: "Delayed > 30 days", Value: fmt.Sprintf("%.1f%%", p.DelayedPct.GT30)},
			{Label: "Records", Value: FormatCount(p.RecordCount)},
		}
	case KindFleet:
		f := DecodeFleet(primary, data.Payload("compliance"))
		return []KPICard{
			{Label: "Vehicles Owned", Value: FormatCount(f.Latest.Values["Vehicle Owned"]), Metric: "fleet_vehicles"},
			{Label: "Fleet Compliance Score", Value: fmt.Sprintf("%.1f", f.Compliance.ComplianceScore), Metric: "fleet_compliance"},
			{Label: "Revenue at Risk", Value: FormatINRShort(f.Compliance.RevenueAtRisk)},
			{Label: "Fitness Risk Index", Value: fmt.Sprintf("%.1f", f.Compliance.FitnessRiskIndex)},
		}
	case KindMarket:
		m := DecodeMarket(primary, mapSlice(data.Payload("top_models")["items"]))
		cards := []KPICard{
			{Label: "Manufacturers", Value: FormatCount(float64(len(m.OEMs)))},
			{Label: "Market Value", Value: FormatINRShort(m.MarketTotalValue)},
		}
		if top, ok := topOEM(m.OEMs, func(o OEM) float64 { return o.Volume }); ok {
			card := KPICard{Label: "Volume Leader", Value: top.MakerLabel}
			if top.MakerID != "" {
				card.Metric = MetricOEMMaker
				card.Params = map[string]string{"maker_id": top.MakerID}
			}
			cards = append(cards, card)
		}
		if len(m.TopModels) > 0 && m.TopModels[0].MakerModel != "" {
			model := m.TopModels[0].MakerModel
			cards = append(cards, KPICard{
				Label:  "Top Model",
				Value:  model,
				Metric: MetricOEMModel,
				Params: map[string]string{"model_name": model},
			})
		}
		return cards
	case KindVehicleAnalytics:
		v := decodeVehicleData(data)
		return []KPICard{
			{Label: "Total Registrations", Value: FormatCount(v.TotalRegistrations), Metric: "registrations"},
			{Label: "Unique Vehicles", Value: FormatCount(v.UniqueVehicles), Metric: "vehicle_value"},
			{Label: "Compliance Alerts", Value: FormatCount(v.ComplianceAlerts), Metric: "compliance_validity"},
			{Label: "Data Quality Score", Value: fmt.Sprintf("%.1f%%", v.DataQualityScore)},
			{Label: "Delayed Registrations", Value: fmt.Sprintf("%.1f%%", v.Delay.DelayedPercentage)},
		}
	case KindAdvanced:
		a := DecodeAdvanced(data.Payloads)
		cards := make([]KPICard, 0, len(AdvancedGroups))
		for _, group := range AdvancedGroups {
			value := "N/A"
			if v, ok := a.Lead(group); ok {
				value = FormatNumber(v) + group.Unit
			}
			cards = append(cards, KPICard{Label: group.LeadLabel, Value: value, Metric: group.Metric})
		}
		return cards
	default:
		cards := make([]KPICard, 0, len(sec.DrillDowns))
		for _, metric := range sec.DrillDowns {
			cards = append(cards, KPICard{
				Label:  SectionTitle(metric),
				Value:  FormatNumber(floatValue(primary[metric])),
				Metric: metric,
			})
		}
		return cards
	}
}
