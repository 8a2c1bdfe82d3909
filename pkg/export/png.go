package export

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

// ErrNoData is returned when a chart has no points to draw.
var ErrNoData = errors.New("export: no data points")

// PNGOptions sizes the rendered image.
type PNGOptions struct {
	Width  int
	Height int
	YName  string
}

func (o PNGOptions) withDefaults() PNGOptions {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	return o
}

// TrendPNG draws points as a line chart. Points are plotted in order with
// their labels as x ticks.
func TrendPNG(w io.Writer, title string, points []portal.ChartPoint, opts PNGOptions) error {
	if len(points) == 0 {
		return ErrNoData
	}
	opts = opts.withDefaults()
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	// the x range follows the ticks; unlabeled edge ticks pad it by half a slot
	lo, hi := 0.5, float64(len(points))+0.5
	ticks := make([]chart.Tick, 0, len(points)+2)
	ticks = append(ticks, chart.Tick{Value: lo})
	for i, p := range points {
		xs[i] = float64(i + 1)
		ys[i] = p.Value
		ticks = append(ticks, chart.Tick{Value: xs[i], Label: p.Label})
	}
	ticks = append(ticks, chart.Tick{Value: hi})
	minY, maxY := yRange(ys)
	if len(points) == 1 {
		// a lone point is drawn as a short flat segment
		xs = []float64{0.75, 1.25}
		ys = []float64{ys[0], ys[0]}
	}
	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 48}},
		XAxis:      chart.XAxis{Range: &chart.ContinuousRange{Min: lo, Max: hi}, Ticks: ticks},
		YAxis:      chart.YAxis{Name: opts.YName, Range: &chart.ContinuousRange{Min: minY, Max: maxY}},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 2,
					StrokeColor: chart.ColorBlue,
					DotWidth:    5,
					DotColor:    chart.ColorBlue,
				},
			},
		},
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("export: render %q: %w", title, err)
	}
	return nil
}

// BarPNG draws one bar per point.
func BarPNG(w io.Writer, title string, points []portal.ChartPoint, opts PNGOptions) error {
	if len(points) == 0 {
		return ErrNoData
	}
	opts = opts.withDefaults()
	bars := make([]chart.Value, 0, len(points))
	for _, p := range points {
		bars = append(bars, chart.Value{Label: p.Label, Value: p.Value})
	}
	ch := chart.BarChart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		BarWidth:   max(12, opts.Width/(2*len(points)+1)),
		Bars:       bars,
	}
	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("export: render %q: %w", title, err)
	}
	return nil
}

// yRange pads the value range so flat or single-point series still render.
func yRange(ys []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	if lo > 0 {
		lo = 0
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi * 1.1
}
