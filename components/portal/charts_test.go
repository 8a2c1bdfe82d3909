package portal

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	inner  *MemoryCache
	misses atomic.Int32
}

func (c *countingCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	return c.inner.GetOrRender(key, func() (string, error) {
		c.misses.Add(1)
		return render()
	})
}

func TestChartRendererKinds(t *testing.T) {
	t.Parallel()
	renderer := NewChartRenderer()
	points := []ChartPoint{{Label: "0-7", Value: 1800}, {Label: "8-30", Value: 2500}}

	line, err := renderer.Line("Trend", points)
	require.NoError(t, err)
	assert.Contains(t, line, "echarts")

	bar, err := renderer.Bar("Registration Lag", points)
	require.NoError(t, err)
	assert.Contains(t, bar, "8-30")

	pie, err := renderer.Pie("Compliance Status", []ChartPoint{{Value: 1}, {Label: "Expired", Value: 2}})
	require.NoError(t, err)
	assert.Contains(t, pie, "Slice 1")
	assert.Contains(t, pie, "Expired")
}

func TestChartRendererCachesByContent(t *testing.T) {
	t.Parallel()
	cache := &countingCache{inner: NewMemoryCache(time.Minute)}
	renderer := NewChartRenderer(WithChartCache(cache), WithChartTheme(types.ThemeInfographic))
	points := []ChartPoint{{Label: "2025-01", Value: 1200}}

	_, err := renderer.Line("Fleet Vehicles", points)
	require.NoError(t, err)
	_, err = renderer.Line("Fleet Vehicles", points)
	require.NoError(t, err)
	assert.Equal(t, int32(1), cache.misses.Load())

	_, err = renderer.Line("Fleet Vehicles", []ChartPoint{{Label: "2025-01", Value: 1300}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), cache.misses.Load())
}

func TestChartRendererAssetsHost(t *testing.T) {
	t.Parallel()
	renderer := NewChartRenderer(WithChartAssetsHost("https://cdn.example.test/echarts/"))
	html, err := renderer.Bar("OEM Volume", []ChartPoint{{Label: "Tata", Value: 2}})
	require.NoError(t, err)
	assert.Contains(t, html, "cdn.example.test")
}

func TestSectionCharts(t *testing.T) {
	t.Parallel()
	renderer := NewChartRenderer()
	vehicles, compliance := fleetFixture()

	cases := map[string]struct {
		data *DashboardData
		key  string
	}{
		"executive": {&DashboardData{Payloads: map[string]KPIPayload{"summary": executiveFixture(65)}}, "compliance"},
		"process_efficiency": {&DashboardData{Payloads: map[string]KPIPayload{"summary": {
			"lag_buckets": []any{map[string]any{"bucket": "0-7", "count": 10}},
		}}}, "lag_buckets"},
		"fleet": {&DashboardData{Payloads: map[string]KPIPayload{"vehicles": vehicles, "compliance": compliance}}, "fleet_vehicles"},
		"market": {&DashboardData{Payloads: map[string]KPIPayload{"summary": {
			"oems": []any{map[string]any{"maker_label": "Tata Motors", "volume": 2100}},
		}}}, "oem_volume"},
	}
	for code, tc := range cases {
		charts, err := renderer.SectionCharts(mustSection(t, code), tc.data)
		require.NoError(t, err, code)
		assert.Contains(t, charts[tc.key], "echarts", code)
	}

	empty, err := renderer.SectionCharts(mustSection(t, "fleet"), &DashboardData{})
	require.NoError(t, err)
	assert.Empty(t, empty)
	none, err := renderer.SectionCharts(mustSection(t, "fleet"), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDrillCharts(t *testing.T) {
	t.Parallel()
	renderer := NewChartRenderer()
	result := &DrillResult{Detail: DecodeDrilldown(fleetDrillPayload())}
	charts, err := renderer.DrillCharts("Fleet Vehicles", result)
	require.NoError(t, err)
	assert.Contains(t, charts["trend"], "2025-02")

	empty, err := renderer.DrillCharts("Fleet Vehicles", &DrillResult{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFleetSeriesIsChronological(t *testing.T) {
	t.Parallel()
	rows := []FleetRow{
		{Month: "2025-02", Values: map[string]float64{"Vehicle Owned": 2}},
		{Month: "", Values: map[string]float64{"Vehicle Owned": 9}},
		{Month: "2025-01", Values: map[string]float64{"Vehicle Owned": 1}},
	}
	points := FleetSeries(rows, "Vehicle Owned")
	assert.Equal(t, []ChartPoint{{Label: "2025-01", Value: 1}, {Label: "2025-02", Value: 2}}, points)
}
