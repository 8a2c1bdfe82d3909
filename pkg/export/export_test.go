package export

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

func TestTrendPNG(t *testing.T) {
	var buf bytes.Buffer
	points := []portal.ChartPoint{{Label: "2025-01", Value: 1200}, {Label: "2025-02", Value: 1260}}
	require.NoError(t, TrendPNG(&buf, "Fleet Vehicles", points, PNGOptions{Width: 640, Height: 320}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 320, img.Bounds().Dy())
}

func TestTrendPNGSinglePoint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TrendPNG(&buf, "Revenue", []portal.ChartPoint{{Label: "2025-02", Value: 0}}, PNGOptions{}))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 960, img.Bounds().Dx())

	buf.Reset()
	require.NoError(t, TrendPNG(&buf, "Registrations", []portal.ChartPoint{{Label: "2025-02", Value: 4916}}, PNGOptions{Width: 320, Height: 200}))
	_, err = png.Decode(&buf)
	require.NoError(t, err)
}

func TestBarPNG(t *testing.T) {
	var buf bytes.Buffer
	points := []portal.ChartPoint{{Label: "0-7", Value: 1800}, {Label: "8-30", Value: 2500}, {Label: "90+", Value: 1056}}
	require.NoError(t, BarPNG(&buf, "Registration Lag", points, PNGOptions{}))
	_, err := png.Decode(&buf)
	require.NoError(t, err)
}

func TestPNGRequiresData(t *testing.T) {
	assert.ErrorIs(t, TrendPNG(&bytes.Buffer{}, "x", nil, PNGOptions{}), ErrNoData)
	assert.ErrorIs(t, BarPNG(&bytes.Buffer{}, "x", nil, PNGOptions{}), ErrNoData)
}

func TestYRange(t *testing.T) {
	lo, hi := yRange([]float64{5, 5})
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 5.5, hi, 1e-9)
	lo, hi = yRange([]float64{0})
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 1.1, hi, 1e-9)
}

func TestNarrativeMarkdown(t *testing.T) {
	n := Narrative{
		Title:      "Manufacturer Market",
		FilterLine: "state_cd=Maharashtra",
		Month:      "2025-02",
		Keys:       []string{"oem_volume", "missing"},
		Bundles: map[string]portal.NarrativeBundle{
			"oem_volume": {Insights: []string{"Top OEM by volume: Maruti Suzuki."}},
		},
	}
	md := n.Markdown()
	assert.Contains(t, md, "# Manufacturer Market")
	assert.Contains(t, md, "Active filters: state_cd=Maharashtra (month 2025-02)")
	assert.Contains(t, md, "## Oem Volume")
	assert.Contains(t, md, "- Top OEM by volume: Maruti Suzuki.")
	assert.NotContains(t, md, "Recommendations")
}

func TestRenderTerminal(t *testing.T) {
	out, err := RenderTerminal("# Executive\n\n- Escalate delayed registrations\n", "notty", 60)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "Executive"))
	assert.True(t, strings.Contains(out, "Escalate delayed registrations"))
}
