package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func executiveFetcher(t *testing.T, backend *fakeBackend, notifier Notifier) *DashboardFetcher {
	t.Helper()
	sec := mustSection(t, "executive")
	fetcher, err := NewDashboardFetcher(DashboardOptions{
		Subject:  sec.Subject,
		Requests: sec.KPIRequests(backend),
		Notifier: notifier,
		Clock:    func() time.Time { return time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return fetcher
}

func TestNewDashboardFetcherRequiresRequests(t *testing.T) {
	if _, err := NewDashboardFetcher(DashboardOptions{}); err == nil {
		t.Fatalf("expected error without requests")
	}
}

func TestDashboardFetcherAppliesPayload(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload(executivePath, executiveFixture(65))
	toasts := &ToastLog{}
	fetcher := executiveFetcher(t, backend, toasts)

	snapshot := FilterSnapshot{Geo: GeoFilter{State: "Maharashtra", District: "Pune"}, Section: "executive"}
	data, err := fetcher.Fetch(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if DecodeExecutive(data.Payload("summary")).TotalRegistrations != 9536 {
		t.Fatalf("unexpected payload %#v", data.Payloads)
	}
	if got := backend.lastQuery(executivePath).Encode(); got != "c_district=Pune&state_cd=Maharashtra" {
		t.Fatalf("unexpected query %s", got)
	}
	state := fetcher.State()
	if state.Status != StatusSuccess || state.Loading || state.LastUpdated.IsZero() {
		t.Fatalf("unexpected state %#v", state)
	}
	if got := toasts.Toasts(); len(got) != 1 || got[0].Message != "Dashboard data refreshed" {
		t.Fatalf("expected success toast, got %#v", got)
	}
}

func TestDashboardFetcherUnchangedSnapshotIsNoop(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload(executivePath, executiveFixture(65))
	fetcher := executiveFetcher(t, backend, nil)
	snapshot := FilterSnapshot{Section: "executive"}

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Fetch(context.Background(), snapshot); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if backend.callCount(executivePath) != 1 {
		t.Fatalf("expected one request, got %d", backend.callCount(executivePath))
	}
}

func TestDashboardFetcherDropsSupersededResponse(t *testing.T) {
	gates := map[string]chan struct{}{"A": make(chan struct{}), "B": make(chan struct{})}
	fetcher, err := NewDashboardFetcher(DashboardOptions{
		Requests: []KPIRequest{{
			Name: "summary",
			Source: PayloadSourceFunc(func(ctx context.Context, s FilterSnapshot) (KPIPayload, error) {
				<-gates[s.Geo.State]
				return KPIPayload{"state": s.Geo.State}, nil
			}),
		}},
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(map[string]error)
	var mu sync.Mutex
	start := func(state string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fetcher.Fetch(ctx, FilterSnapshot{Geo: GeoFilter{State: state}})
			mu.Lock()
			results[state] = err
			mu.Unlock()
		}()
		eventually(t, func() bool { return fetcher.State().Snapshot.Geo.State == state })
	}
	start("A")
	start("B")

	close(gates["B"])
	eventually(t, func() bool { return fetcher.State().Status == StatusSuccess })
	close(gates["A"])
	wg.Wait()

	if !errors.Is(results["A"], ErrStale) || results["B"] != nil {
		t.Fatalf("unexpected results %#v", results)
	}
	if got := fetcher.State().Data.Payload("summary")["state"]; got != "B" {
		t.Fatalf("late response for A overwrote B: %v", got)
	}
}

func TestDashboardFetcherRefreshKeepsDataOnFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload(executivePath, executiveFixture(65))
	toasts := &ToastLog{}
	fetcher := executiveFetcher(t, backend, toasts)
	ctx := context.Background()

	if _, err := fetcher.Refresh(ctx); !errors.Is(err, ErrNothingToFetch) {
		t.Fatalf("expected ErrNothingToFetch, got %v", err)
	}
	if _, err := fetcher.Fetch(ctx, FilterSnapshot{Section: "executive"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	backend.fail(executivePath, &FetchError{Status: 500, Message: "database unavailable"})
	if _, err := fetcher.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh error")
	}

	state := fetcher.State()
	if state.Status != StatusError || state.Data == nil {
		t.Fatalf("refresh failure must keep the previous payload, got %#v", state)
	}
	if state.Err == nil || state.Err.Status != 500 {
		t.Fatalf("expected normalized error, got %#v", state.Err)
	}
	toastList := toasts.Toasts()
	last := toastList[len(toastList)-1]
	if last.Level != "error" || last.Message != "Failed to fetch dashboard data (HTTP 500): database unavailable" {
		t.Fatalf("unexpected toast %#v", last)
	}
}

func TestDashboardFetcherNewSnapshotFailureClearsData(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload(executivePath, executiveFixture(65))
	fetcher := executiveFetcher(t, backend, nil)
	ctx := context.Background()

	if _, err := fetcher.Fetch(ctx, FilterSnapshot{Section: "executive"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	backend.fail(executivePath, errors.New("boom"))
	if _, err := fetcher.Fetch(ctx, FilterSnapshot{Geo: GeoFilter{State: "Maharashtra"}, Section: "executive"}); err == nil {
		t.Fatalf("expected fetch error")
	}
	if state := fetcher.State(); state.Data != nil || state.Status != StatusError {
		t.Fatalf("expected cleared data, got %#v", state)
	}
}

func TestDashboardFetcherOptionalRequestsAndInsightsDegrade(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload("/kpi/summary", KPIPayload{"national_revenue": 8.2e9})
	backend.fail("/kpi/state/service-delivery", errors.New("not deployed"))
	backend.fail("insights", errors.New("insights offline"))
	sec := mustSection(t, "kpi")

	fetcher, err := NewDashboardFetcher(DashboardOptions{
		Requests: sec.KPIRequests(backend),
		Insights: backend,
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	data, err := fetcher.Fetch(context.Background(), FilterSnapshot{Geo: GeoFilter{State: "MH"}, Month: "2025-02", Section: "kpi"})
	if err != nil {
		t.Fatalf("optional failures must not fail the fetch: %v", err)
	}
	if _, ok := data.Payloads["service_delivery"]; ok {
		t.Fatalf("failed optional request must be absent")
	}
	if !data.InsightsFailed || !data.Insights.Empty() {
		t.Fatalf("expected insights failure flag, got %#v", data)
	}
	if got := backend.lastQuery("/kpi/summary").Encode(); got != "month=2025-02&state=MH" {
		t.Fatalf("unexpected kpi query %s", got)
	}
	if got := backend.lastQuery("/kpi/national/summary").Encode(); got != "month=2025-02" {
		t.Fatalf("unexpected national query %s", got)
	}
	if got := backend.lastQuery("insights").Get("section"); got != "kpi" {
		t.Fatalf("unexpected insights section %s", got)
	}
}

func TestDashboardFetcherCloseDropsLateCompletion(t *testing.T) {
	backend := newFakeBackend()
	backend.setPayload(executivePath, executiveFixture(65))
	gate := backend.hold(executivePath)
	fetcher := executiveFetcher(t, backend, nil)

	fetcher.Trigger(context.Background(), FilterSnapshot{Section: "executive"})
	eventually(t, func() bool { return backend.callCount(executivePath) == 1 })
	fetcher.Close()
	close(gate)
	fetcher.Wait()

	if fetcher.State().Data != nil {
		t.Fatalf("closed fetcher must not apply late data")
	}
}

func TestFilterSnapshotKey(t *testing.T) {
	snapshot := FilterSnapshot{Geo: GeoFilter{State: "Maharashtra"}, Month: "2025-02", Section: "fleet"}
	if got := snapshot.Key(); got != "state_cd=Maharashtra&month=2025-02&section=fleet" {
		t.Fatalf("unexpected key %s", got)
	}
	parsed := SnapshotFromQuery(snapshot.Values(), "fleet")
	if parsed != snapshot {
		t.Fatalf("expected round trip, got %#v", parsed)
	}
}

const executivePath = "/dashboard/executive-summary"

func TestDashboardFetcherPrimaryFailureFailsWholeUnit(t *testing.T) {
	backend := newFakeBackend()
	_, compliance := fleetFixture()
	backend.setPayload("/kpi/advanced/fleet-compliance", compliance)
	backend.fail("/kpi/fleet/vehicles", &FetchError{Status: 502, Message: "Bad Gateway"})
	backend.insights = InsightsPayload{Insights: []InsightItem{{Type: "insight", Title: "Fleet", Description: "steady"}}}
	sec := mustSection(t, "fleet")
	toasts := &ToastLog{}

	fetcher, err := NewDashboardFetcher(DashboardOptions{
		Subject:        sec.Subject,
		SuccessMessage: sec.SuccessMessage,
		Requests:       sec.KPIRequests(backend),
		Insights:       backend,
		InsightSection: sec.Insights.Section,
		Notifier:       toasts,
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	data, err := fetcher.Fetch(context.Background(), FilterSnapshot{Geo: GeoFilter{State: "Maharashtra"}, Month: "2025-02", Section: "fleet"})
	if err == nil || data != nil {
		t.Fatalf("primary failure must fail the fetch, got %#v", data)
	}
	state := fetcher.State()
	if state.Status != StatusError || state.Data != nil {
		t.Fatalf("unexpected state %#v", state)
	}
	got := toasts.Toasts()
	if len(got) != 1 || got[0].Level != "error" || !strings.Contains(got[0].Message, "fleet data") {
		t.Fatalf("expected one error toast, got %#v", got)
	}
}
