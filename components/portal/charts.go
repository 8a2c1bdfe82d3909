package portal

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const defaultChartHeight = "360px"

// ChartPoint is one labelled value.
type ChartPoint struct {
	Label string
	Value float64
}

// ChartRenderer renders server-side ECharts HTML for dashboard payloads.
type ChartRenderer struct {
	cache      RenderCache
	theme      string
	assetsHost string
}

// ChartOption customizes a ChartRenderer.
type ChartOption func(*ChartRenderer)

// WithChartCache injects a render cache.
func WithChartCache(cache RenderCache) ChartOption {
	return func(r *ChartRenderer) {
		r.cache = cache
	}
}

// WithChartTheme sets the theme (defaults to Westeros).
func WithChartTheme(theme string) ChartOption {
	return func(r *ChartRenderer) {
		r.theme = theme
	}
}

// WithChartAssetsHost rewrites the host the ECharts runtime is loaded from.
func WithChartAssetsHost(host string) ChartOption {
	return func(r *ChartRenderer) {
		r.assetsHost = host
	}
}

// NewChartRenderer builds a renderer with a five minute cache.
func NewChartRenderer(options ...ChartOption) *ChartRenderer {
	r := &ChartRenderer{
		cache: NewMemoryCache(5 * time.Minute),
		theme: types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Line renders a single-series line chart.
func (r *ChartRenderer) Line(title string, points []ChartPoint) (string, error) {
	return r.cached("line", title, points, func() (string, error) {
		line := charts.NewLine()
		line.SetGlobalOptions(r.globalOptions(title)...)
		line.SetXAxis(labels(points))
		data := make([]opts.LineData, len(points))
		for i, p := range points {
			data[i] = opts.LineData{Name: p.Label, Value: p.Value}
		}
		line.AddSeries(title, data)
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
		return renderChart(line)
	})
}

// Bar renders a single-series bar chart.
func (r *ChartRenderer) Bar(title string, points []ChartPoint) (string, error) {
	return r.cached("bar", title, points, func() (string, error) {
		bar := charts.NewBar()
		bar.SetGlobalOptions(r.globalOptions(title)...)
		bar.SetXAxis(labels(points))
		data := make([]opts.BarData, len(points))
		for i, p := range points {
			data[i] = opts.BarData{Name: p.Label, Value: p.Value}
		}
		bar.AddSeries(title, data)
		return renderChart(bar)
	})
}

// Pie renders a pie chart.
func (r *ChartRenderer) Pie(title string, points []ChartPoint) (string, error) {
	return r.cached("pie", title, points, func() (string, error) {
		pie := charts.NewPie()
		pie.SetGlobalOptions(r.globalOptions(title)...)
		data := make([]opts.PieData, len(points))
		for i, p := range points {
			name := p.Label
			if name == "" {
				name = fmt.Sprintf("Slice %d", i+1)
			}
			data[i] = opts.PieData{Name: name, Value: p.Value}
		}
		pie.AddSeries(title, data)
		return renderChart(pie)
	})
}

// SectionCharts renders the charts shown for a section, keyed by chart name.
// Charts without data are omitted.
func (r *ChartRenderer) SectionCharts(sec Section, data *DashboardData) (map[string]string, error) {
	out := map[string]string{}
	if data == nil {
		return out, nil
	}
	primary := data.Payload(primaryRequest(sec))
	add := func(name string, render func() (string, error)) error {
		html, err := render()
		if err != nil {
			return fmt.Errorf("portal: render %s chart: %w", name, err)
		}
		out[name] = html
		return nil
	}

	switch sec.Kind {
	case KindExecutive:
		split := ComplianceSplit(DecodeExecutive(primary))
		points := make([]ChartPoint, len(split))
		for i, slice := range split {
			points[i] = ChartPoint{Label: slice.Name, Value: slice.Percent}
		}
		if err := add("compliance", func() (string, error) { return r.Pie("Compliance Status", points) }); err != nil {
			return nil, err
		}
	case KindProcessEfficiency:
		if points := LagBucketPoints(DecodeProcessEfficiency(primary).LagBuckets); len(points) > 0 {
			if err := add("lag_buckets", func() (string, error) { return r.Bar("Registration Lag", points) }); err != nil {
				return nil, err
			}
		}
	case KindFleet:
		if points := FleetSeries(DecodeFleetRows(primary), "Vehicle Owned"); len(points) > 0 {
			if err := add("fleet_vehicles", func() (string, error) { return r.Line("Fleet Vehicles", points) }); err != nil {
				return nil, err
			}
		}
	case KindMarket:
		market := DecodeMarket(primary, nil)
		points := make([]ChartPoint, 0, len(market.OEMs))
		for _, oem := range market.OEMs {
			points = append(points, ChartPoint{Label: oem.MakerLabel, Value: oem.Volume})
		}
		if len(points) > 0 {
			if err := add("oem_volume", func() (string, error) { return r.Bar("OEM Volume", points) }); err != nil {
				return nil, err
			}
		}
	case KindVehicleAnalytics:
		v := decodeVehicleData(data)
		if len(v.MonthlyTrend) > 0 {
			if err := add("monthly_trend", func() (string, error) { return r.Line("Monthly Registrations", TrendPoints(v.MonthlyTrend)) }); err != nil {
				return nil, err
			}
		}
		if len(v.ByFuel) > 0 {
			if err := add("fuel", func() (string, error) { return r.Pie("Registrations by Fuel", v.ByFuel) }); err != nil {
				return nil, err
			}
		}
		if len(v.Classes) > 0 {
			classes := v.Classes[:min(len(v.Classes), 8)]
			if err := add("vehicle_classes", func() (string, error) { return r.Bar("Vehicle Classes", classes) }); err != nil {
				return nil, err
			}
		}
		if points := LagBucketPoints(v.Delay.Buckets); len(points) > 0 {
			if err := add("delay_buckets", func() (string, error) { return r.Bar("Registration Delay", points) }); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// DrillCharts renders the trend chart of a drill-down result.
func (r *ChartRenderer) DrillCharts(title string, result *DrillResult) (map[string]string, error) {
	out := map[string]string{}
	if result == nil || len(result.Detail.Trend) == 0 {
		return out, nil
	}
	points := TrendPoints(result.Detail.Trend)
	html, err := r.Line(title, points)
	if err != nil {
		return nil, fmt.Errorf("portal: render drill-down trend: %w", err)
	}
	out["trend"] = html
	return out, nil
}

// TrendPoints converts a drill-down trend to chart points.
func TrendPoints(trend []TrendPoint) []ChartPoint {
	points := make([]ChartPoint, len(trend))
	for i, p := range trend {
		points[i] = ChartPoint{Label: p.Label, Value: p.Value}
	}
	return points
}

// LagBucketPoints converts lag buckets to chart points in backend order.
func LagBucketPoints(buckets []LagBucket) []ChartPoint {
	points := make([]ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, ChartPoint{Label: b.Bucket, Value: b.Count})
	}
	return points
}

// FleetSeries returns one fleet column per month, oldest first.
func FleetSeries(rows []FleetRow, column string) []ChartPoint {
	sorted := append([]FleetRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Month < sorted[j].Month })
	points := make([]ChartPoint, 0, len(sorted))
	for _, row := range sorted {
		if row.Month == "" {
			continue
		}
		points = append(points, ChartPoint{Label: row.Month, Value: row.Values[column]})
	}
	return points
}

func (r *ChartRenderer) cached(kind, title string, points []ChartPoint, render func() (string, error)) (string, error) {
	if r.cache == nil {
		return render()
	}
	key := fmt.Sprintf("%s:%s:%s:%s", kind, title, r.theme, contentHash(points))
	return r.cache.GetOrRender(key, render)
}

func (r *ChartRenderer) globalOptions(title string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		Theme:  r.theme,
		Width:  "100%",
		Height: defaultChartHeight,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithToolboxOpts(opts.Toolbox{Show: opts.Bool(true)}),
	}
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func labels(points []ChartPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Label
	}
	return out
}
