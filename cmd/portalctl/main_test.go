package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/httpapi"
)

func newMockApp(t *testing.T) *app {
	t.Helper()
	for _, key := range []string{"REDIS_ADDR", "PORTAL_BACKEND_URL", "PORTAL_TRANSPORT", "PORTAL_SECTIONS", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	a, err := newApp(context.Background(), &Globals{Mock: true, LogLevel: "error"})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestFilterFlagsQuery(t *testing.T) {
	flags := FilterFlags{Month: "2025-01", District: "Pune", State: " Maharashtra "}
	assert.Equal(t, "state_cd=Maharashtra&c_district=Pune&month=2025-01", flags.query())
	assert.Equal(t, "", FilterFlags{}.query())
}

func TestPageQueryDropsUnknownParams(t *testing.T) {
	q := url.Values{"city": {"Pune City"}, "state_cd": {"Maharashtra"}, "utm_source": {"mail"}}
	assert.Equal(t, "state_cd=Maharashtra&city=Pune+City", pageQuery(q))
}

func TestNewAppWithMockBackend(t *testing.T) {
	a := newMockApp(t)
	assert.Nil(t, a.client)
	assert.Nil(t, a.redis)
	_, err := a.engines()
	assert.Error(t, err)

	session, err := a.open(context.Background(), "executive", "")
	require.NoError(t, err)
	cards := portal.SectionCards(session.Section(), session.Snapshot().Dashboard.Data)
	require.NotEmpty(t, cards)
	assert.Equal(t, "9,536", cards[0].Value)
}

func TestHTTPHandler(t *testing.T) {
	a := newMockApp(t)
	renderer, err := portal.NewTemplateRenderer()
	require.NoError(t, err)
	controller := portal.NewController(portal.ControllerOptions{Service: a.service, Renderer: renderer, Charts: a.charts})
	server := httptest.NewServer(a.httpHandler(controller, httpapi.NewCommandExecutor(a.service, a.metrics)))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/portal/executive?state_cd=Maharashtra&utm=x")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	id := resp.Header.Get(httpapi.SessionHeader)
	require.NotEmpty(t, id)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	session, err := a.service.Session(id)
	require.NoError(t, err)
	session.Wait()

	resp, err = http.Get(server.URL + "/portal/_state?session=" + id)
	require.NoError(t, err)
	var snap struct {
		URL    string `json:"url"`
		Filter struct {
			State string `json:"state_cd"`
		} `json:"filter"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, "/portal/executive?state_cd=Maharashtra", snap.URL)
	assert.Equal(t, "Maharashtra", snap.Filter.State)

	resp, err = http.Get(server.URL + "/portal/nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metricsBody), "go_goroutines")
}

func TestWriteTrendPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trend.png")
	err := writeTrendPNG(path, "Fleet Vehicles", []portal.TrendPoint{{Label: "2025-01", Value: 1200}, {Label: "2025-02", Value: 1260}})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	assert.Error(t, writeTrendPNG(filepath.Join(t.TempDir(), "empty.png"), "Empty", nil))
}

func TestReportToasts(t *testing.T) {
	var buf bytes.Buffer
	toasts := []portal.Toast{{Level: "success", Message: "loaded"}, {Level: "error", Message: "Failed to fetch fleet data (HTTP 502)"}}
	assert.NoError(t, reportToasts(&buf, toasts, nil))
	assert.Equal(t, "error: Failed to fetch fleet data (HTTP 502)\n", buf.String())

	err := reportToasts(io.Discard, nil, &portal.FetchError{Status: 502})
	assert.Error(t, err)
	assert.False(t, strings.Contains(buf.String(), "loaded"))
}

func TestMockAppServesAddedSections(t *testing.T) {
	a := newMockApp(t)
	ctx := context.Background()

	market, err := a.open(ctx, "market", "")
	require.NoError(t, err)
	cards := portal.SectionCards(market.Section(), market.Snapshot().Dashboard.Data)
	require.Len(t, cards, 4)
	assert.Equal(t, map[string]string{"maker_id": "1"}, cards[2].Params)

	state, err := market.OpenDrillDown(ctx, cards[2].Metric, cards[2].Params)
	require.NoError(t, err)
	market.Wait()
	state = market.Snapshot().DrillDown
	require.Equal(t, portal.DrillReady, state.Status, state.Error)
	assert.Equal(t, "oem_maker", state.Result.Detail.Type)

	for _, code := range []string{"vehicle_analytics", "advanced"} {
		session, err := a.open(ctx, code, "")
		require.NoError(t, err)
		snap := session.Snapshot()
		require.Equal(t, portal.StatusSuccess, snap.Dashboard.Status, code)
		assert.False(t, snap.Narrative[code].Empty(), code)
	}
}
