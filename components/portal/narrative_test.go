package portal

import (
	"slices"
	"testing"
)

func TestDeriveExecutiveEscalatesLongDelays(t *testing.T) {
	bundle := DeriveExecutive(DecodeExecutive(executiveFixture(65)))

	if bundle.Insights[0] != "Total registrations: 9,536 (MoM: 4.2%)." {
		t.Fatalf("unexpected first insight %q", bundle.Insights[0])
	}
	if !slices.Contains(bundle.Recommendations, RecReduceRegistrationDelay) {
		t.Fatalf("expected delay recommendation, got %#v", bundle.Recommendations)
	}
	if !slices.Contains(bundle.Recommendations, RecEscalateRegistrations) {
		t.Fatalf("expected escalation recommendation, got %#v", bundle.Recommendations)
	}
	if bundle.ActionItems[0] != ActionOpenProcessDrilldown {
		t.Fatalf("process drilldown action must come first, got %#v", bundle.ActionItems)
	}
	if !slices.Contains(bundle.ActionItems, ActionComplianceReminders) {
		t.Fatalf("expected compliance reminders, got %#v", bundle.ActionItems)
	}
}

func TestDeriveExecutiveShortDelayHasNoEscalation(t *testing.T) {
	bundle := DeriveExecutive(DecodeExecutive(executiveFixture(10)))
	if slices.Contains(bundle.Recommendations, RecEscalateRegistrations) || slices.Contains(bundle.Recommendations, RecReduceRegistrationDelay) {
		t.Fatalf("unexpected delay recommendations %#v", bundle.Recommendations)
	}
}

func TestDeriveExecutiveSplitsAIInsights(t *testing.T) {
	payload := executiveFixture(10)
	payload["ai_insights"] = []any{
		map[string]any{"type": "trend", "message": "Registrations up in Pune"},
		map[string]any{"type": "recommendation", "message": "Add weekend RTO slots"},
		map[string]any{"type": "trend", "message": "   "},
	}
	bundle := DeriveExecutive(DecodeExecutive(payload))
	if bundle.Insights[len(bundle.Insights)-1] != "Registrations up in Pune" {
		t.Fatalf("unexpected insights %#v", bundle.Insights)
	}
	if got := bundle.Recommendations[len(bundle.Recommendations)-1]; got != "Add weekend RTO slots" {
		t.Fatalf("ai recommendations must trail the derived ones, got %#v", bundle.Recommendations)
	}
}

func TestDeriveExecutiveAppendsAIRecommendationsAfterDerived(t *testing.T) {
	payload := executiveFixture(65)
	payload["ai_insights"] = []any{
		map[string]any{"type": "recommendation", "message": "Open weekend counters"},
	}
	bundle := DeriveExecutive(DecodeExecutive(payload))
	want := []string{RecReduceRegistrationDelay, RecEscalateRegistrations}
	if len(bundle.Recommendations) < len(want)+1 {
		t.Fatalf("unexpected recommendations %#v", bundle.Recommendations)
	}
	for i, rec := range want {
		if bundle.Recommendations[i] != rec {
			t.Fatalf("recommendation %d = %q, want %q", i, bundle.Recommendations[i], rec)
		}
	}
	if got := bundle.Recommendations[len(bundle.Recommendations)-1]; got != "Open weekend counters" {
		t.Fatalf("backend recommendation should be last, got %#v", bundle.Recommendations)
	}
}

func TestDeriveProcessEfficiency(t *testing.T) {
	bundle := DeriveProcessEfficiency(DecodeProcessEfficiency(KPIPayload{
		"avg_delay_days":              42.5,
		"median_delay_days":           31,
		"p95_delay_days":              120,
		"delayed_pct":                 map[string]any{"gt_60": 28.0},
		"invalid_date_sequence_count": 14,
		"lag_buckets": []any{
			map[string]any{"bucket": "0-7", "count": 1800},
			map[string]any{"bucket": "31-60", "count": 2560},
		},
	}))
	want := []string{
		"Avg delay: 42.5d; median: 31d; P95: 120d.",
		"Highest volume lag bucket: 31-60 (2,560 records).",
		"28% registrations are delayed >60 days.",
		"14 records have invalid date sequences.",
	}
	if !slices.Equal(bundle.Insights, want) {
		t.Fatalf("unexpected insights %#v", bundle.Insights)
	}
	if !slices.Equal(bundle.Recommendations, []string{RecClearLongDelays, RecValidateDates}) {
		t.Fatalf("unexpected recommendations %#v", bundle.Recommendations)
	}
	if len(bundle.ActionItems) != 3 {
		t.Fatalf("unexpected actions %#v", bundle.ActionItems)
	}
}

func TestDeriveFleet(t *testing.T) {
	vehicles, compliance := fleetFixture()
	insights := InsightsPayload{Recommendations: []InsightItem{{Title: "Fitness drive", Description: "Target fleets"}}}
	bundle := DeriveFleet(DecodeFleet(vehicles, compliance), insights)

	if bundle.Insights[0] != "Latest month: 2025-02 (1,260 fleet vehicles)." {
		t.Fatalf("unexpected insights %#v", bundle.Insights)
	}
	want := []string{RecFleetCompliance, RecFleetRevenueRecovery, RecFleetInsurance, "Fitness drive: Target fleets"}
	if !slices.Equal(bundle.Recommendations, want) {
		t.Fatalf("unexpected recommendations %#v", bundle.Recommendations)
	}
}

func TestDeriveInsightsMovesTaggedRecommendations(t *testing.T) {
	bundle := DeriveInsights(DecodeInsights(KPIPayload{
		"insights": []any{
			map[string]any{"type": "insight", "title": "Growth", "description": "Up 5%"},
			map[string]any{"type": "Recommendation", "message": "Run a drive"},
		},
		"action_items": []any{map[string]any{"title": "Call RTOs"}},
	}))
	if !slices.Equal(bundle.Insights, []string{"Growth: Up 5%"}) {
		t.Fatalf("unexpected insights %#v", bundle.Insights)
	}
	if !slices.Equal(bundle.Recommendations, []string{"Run a drive"}) {
		t.Fatalf("unexpected recommendations %#v", bundle.Recommendations)
	}
	if !slices.Equal(bundle.ActionItems, []string{"Call RTOs"}) {
		t.Fatalf("unexpected actions %#v", bundle.ActionItems)
	}
}

func TestDeriveMarket(t *testing.T) {
	market := DecodeMarket(KPIPayload{
		"oems": []any{
			map[string]any{"maker_label": "Tata Motors", "volume": 2100, "total_value": 1.9e9, "avg_price": 912000},
			map[string]any{"maker_label": "Maruti Suzuki", "volume": 4200, "total_value": 2.9e9, "avg_price": 690000},
		},
		"market_total_value": 7.5e9,
	}, []map[string]any{{"maker_model": "Swift", "maker_label": "Maruti Suzuki", "volume": 900}})

	sections := DeriveMarket(market)
	volume := sections[MarketVolume].Insights
	if len(volume) != 2 || volume[0] != "Top OEM by volume: Maruti Suzuki (4,200 regs)." || volume[1] != "Top OEM contributes ~66.7% of total volume (top 10 OEMs)." {
		t.Fatalf("unexpected volume insights %#v", volume)
	}
	if got := sections[MarketPricing].Insights; len(got) != 1 || got[0] != "Highest avg price OEM: Tata Motors (₹9.1L)." {
		t.Fatalf("unexpected pricing insights %#v", got)
	}
	if got := sections[MarketRevenue].Insights[0]; got != "Market total value: ₹750.0Cr." {
		t.Fatalf("unexpected revenue insight %q", got)
	}
	if got := sections[MarketModels].Insights; len(got) != 2 {
		t.Fatalf("unexpected model insights %#v", got)
	}
}

func TestDeriveIsTotalOverEmptyPayloads(t *testing.T) {
	kinds := []PayloadKind{KindExecutive, KindProcessEfficiency, KindFleet, KindFleetCompliance, KindMarket, KindInsights, KindDrillDown, "unknown"}
	for _, kind := range kinds {
		for _, payload := range []KPIPayload{nil, {}, {"lag_buckets": "garbage", "oems": 7, "insights": "x"}} {
			bundle := Derive(kind, payload)
			if bundle.Insights == nil || bundle.Recommendations == nil || bundle.ActionItems == nil {
				t.Fatalf("kind %s: bundle lists must be non-nil, got %#v", kind, bundle)
			}
		}
	}
}

func TestNarrativeMergeDoesNotAlias(t *testing.T) {
	base := NarrativeBundle{Insights: make([]string, 1, 4)}
	base.Insights[0] = "a"
	merged := base.Merge(NarrativeBundle{Insights: []string{"b"}})
	merged.Insights[0] = "changed"
	if base.Insights[0] != "a" {
		t.Fatalf("merge aliased the receiver")
	}
	if !slices.Equal(merged.Insights, []string{"changed", "b"}) {
		t.Fatalf("unexpected merge %#v", merged.Insights)
	}
	if !(NarrativeBundle{}).Empty() || merged.Empty() {
		t.Fatalf("unexpected Empty results")
	}
}

func TestSectionTitle(t *testing.T) {
	if got := SectionTitle("fleet_vehicles"); got != "Fleet Vehicles" {
		t.Fatalf("unexpected title %q", got)
	}
	if SectionTitle("  ") != "" {
		t.Fatalf("blank key must yield empty title")
	}
}
