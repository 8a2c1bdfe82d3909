package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrStale          = errors.New("portal: superseded by a newer request")
	ErrNothingToFetch = errors.New("portal: no snapshot has been fetched yet")
	errNoRequests     = errors.New("portal: dashboard requires at least one request")
	errUnchanged      = errors.New("portal: snapshot unchanged")
)

// FilterSnapshot is the complete input of a dashboard fetch.
type FilterSnapshot struct {
	Geo     GeoFilter `json:"geo"`
	Month   string    `json:"month,omitempty"`
	Section string    `json:"section,omitempty"`
}

// Values encodes the snapshot as query parameters.
func (s FilterSnapshot) Values() url.Values {
	values := s.Geo.Values()
	if s.Month != "" {
		values.Set("month", s.Month)
	}
	if s.Section != "" {
		values.Set("section", s.Section)
	}
	return values
}

// Key identifies the snapshot in slots and caches.
func (s FilterSnapshot) Key() string {
	return EncodeQuery(s.Values())
}

// SnapshotFromQuery reads a snapshot from URL values.
func SnapshotFromQuery(values url.Values, section string) FilterSnapshot {
	return FilterSnapshot{
		Geo:     ParseGeoFilter(values),
		Month:   normalizeGeoValue(values.Get("month")),
		Section: section,
	}
}

// PayloadSource fetches one KPI payload for a snapshot.
type PayloadSource interface {
	FetchPayload(ctx context.Context, snapshot FilterSnapshot) (KPIPayload, error)
}

// PayloadSourceFunc adapts a function to PayloadSource.
type PayloadSourceFunc func(ctx context.Context, snapshot FilterSnapshot) (KPIPayload, error)

// FetchPayload implements PayloadSource.
func (fn PayloadSourceFunc) FetchPayload(ctx context.Context, snapshot FilterSnapshot) (KPIPayload, error) {
	return fn(ctx, snapshot)
}

// InsightQuery selects backend narrative items.
type InsightQuery struct {
	State   string `json:"state,omitempty"`
	Month   string `json:"month,omitempty"`
	Section string `json:"section,omitempty"`
}

// InsightSource fetches backend narrative items.
type InsightSource interface {
	FetchInsights(ctx context.Context, query InsightQuery) (InsightsPayload, error)
}

// KPIRequest is one request issued per snapshot. Optional requests degrade
// to a nil payload instead of failing the fetch.
type KPIRequest struct {
	Name     string
	Source   PayloadSource
	Optional bool
}

// DashboardData is the applied result of one fetch.
type DashboardData struct {
	Snapshot       FilterSnapshot        `json:"snapshot"`
	Payloads       map[string]KPIPayload `json:"payloads"`
	Insights       InsightsPayload       `json:"insights"`
	InsightsFailed bool                  `json:"insights_failed,omitempty"`
	FetchedAt      time.Time             `json:"fetched_at"`
}

// Payload returns a named payload or an empty one.
func (d *DashboardData) Payload(name string) KPIPayload {
	if d == nil || d.Payloads[name] == nil {
		return KPIPayload{}
	}
	return d.Payloads[name]
}

// DashboardState is what a view renders.
type DashboardState struct {
	Snapshot    FilterSnapshot `json:"snapshot"`
	Status      FetchStatus    `json:"status"`
	Loading     bool           `json:"loading"`
	Data        *DashboardData `json:"data,omitempty"`
	Err         *FetchError    `json:"error,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
	Generation  uint64         `json:"generation"`
}

// DashboardOptions configures a DashboardFetcher.
type DashboardOptions struct {
	// Subject names the page in error messages ("dashboard data").
	Subject        string
	SuccessMessage string
	Requests       []KPIRequest
	Insights       InsightSource
	// InsightSection overrides the snapshot section for insight requests.
	InsightSection  string
	Notifier        Notifier
	Telemetry       Telemetry
	Logger          *slog.Logger
	Clock           func() time.Time
	AbortSuperseded bool
	// OnApplied runs after a completion has been applied to the slot.
	OnApplied func(ctx context.Context, state DashboardState)
}

// DashboardFetcher loads the KPI payloads behind one dashboard page. A fetch
// begins a new generation; completions of older generations are dropped.
type DashboardFetcher struct {
	opts DashboardOptions
	slot Slot[*DashboardData]

	mu     sync.Mutex
	last   *FilterSnapshot
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewDashboardFetcher builds a fetcher with safe defaults.
func NewDashboardFetcher(opts DashboardOptions) (*DashboardFetcher, error) {
	if len(opts.Requests) == 0 {
		return nil, errNoRequests
	}
	if opts.Subject == "" {
		opts.Subject = "dashboard data"
	}
	if opts.SuccessMessage == "" {
		opts.SuccessMessage = "Dashboard data refreshed"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Notifier = normalizeNotifier(opts.Notifier)
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	opts.Logger = normalizeLogger(opts.Logger)
	return &DashboardFetcher{opts: opts}, nil
}

// Fetch loads snapshot and blocks until the result is applied or dropped.
// A snapshot equal to the previous one is a no-op.
func (f *DashboardFetcher) Fetch(ctx context.Context, snapshot FilterSnapshot) (*DashboardData, error) {
	run, err := f.begin(ctx, &snapshot)
	if errors.Is(err, errUnchanged) {
		state := f.slot.Snapshot()
		return state.Data, state.Err
	}
	return f.complete(ctx, run)
}

// Refresh re-fetches the last snapshot, keeping the current payload if the
// refresh fails.
func (f *DashboardFetcher) Refresh(ctx context.Context) (*DashboardData, error) {
	run, err := f.begin(ctx, nil)
	if err != nil {
		return nil, err
	}
	return f.complete(ctx, run)
}

// Trigger runs Fetch in the background. The generation is claimed before
// Trigger returns, so successive triggers apply in call order.
func (f *DashboardFetcher) Trigger(ctx context.Context, snapshot FilterSnapshot) {
	f.background(ctx, &snapshot)
}

// TriggerRefresh runs Refresh in the background.
func (f *DashboardFetcher) TriggerRefresh(ctx context.Context) {
	f.background(ctx, nil)
}

func (f *DashboardFetcher) background(ctx context.Context, snapshot *FilterSnapshot) {
	run, err := f.begin(ctx, snapshot)
	if err != nil {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_, _ = f.complete(ctx, run)
	}()
}

type fetchRun struct {
	ticket   Ticket
	snapshot FilterSnapshot
	ctx      context.Context
	refresh  bool
}

// begin claims a new generation. A nil snapshot refreshes the last one.
func (f *DashboardFetcher) begin(ctx context.Context, snapshot *FilterSnapshot) (fetchRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refresh := snapshot == nil
	switch {
	case refresh && f.last == nil:
		return fetchRun{}, ErrNothingToFetch
	case refresh:
		snapshot = f.last
	case f.last != nil && *f.last == *snapshot:
		f.opts.Telemetry.Record(ctx, "portal.dashboard.unchanged", map[string]any{"key": snapshot.Key()})
		return fetchRun{}, errUnchanged
	}
	next := *snapshot
	f.last = &next
	run := fetchRun{
		ticket:   f.slot.Begin(next.Key()),
		snapshot: next,
		ctx:      ctx,
		refresh:  refresh,
	}
	if f.opts.AbortSuperseded {
		if f.cancel != nil {
			f.cancel()
		}
		var cancel context.CancelFunc
		run.ctx, cancel = context.WithCancel(ctx)
		f.cancel = cancel
	}
	f.opts.Telemetry.Record(ctx, "portal.dashboard.fetch", map[string]any{
		"key":        run.ticket.Key,
		"generation": run.ticket.Generation,
		"refresh":    refresh,
	})
	return run, nil
}

func (f *DashboardFetcher) complete(ctx context.Context, run fetchRun) (*DashboardData, error) {
	ticket := run.ticket
	data, err := f.load(run.ctx, run.snapshot)
	if err != nil {
		// Refresh keeps the current payload; a new snapshot clears it.
		if !f.slot.Resolve(ticket, nil, err, run.refresh) {
			f.stale(ctx, ticket)
			return nil, ErrStale
		}
		f.opts.Logger.WarnContext(ctx, "dashboard fetch failed", "subject", f.opts.Subject, "key", ticket.Key, "error", err)
		f.opts.Notifier.Error(ctx, ErrorMessage(f.opts.Subject, err))
		f.applied(ctx)
		return nil, NormalizeError(err)
	}
	if !f.slot.Succeed(ticket, data) {
		f.stale(ctx, ticket)
		return nil, ErrStale
	}
	f.opts.Notifier.Success(ctx, f.opts.SuccessMessage)
	f.applied(ctx)
	return data, nil
}

func (f *DashboardFetcher) load(ctx context.Context, snapshot FilterSnapshot) (*DashboardData, error) {
	results := make([]KPIPayload, len(f.opts.Requests))
	var insights InsightsPayload
	insightsFailed := false

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range f.opts.Requests {
		i, req := i, req
		g.Go(func() error {
			payload, err := req.Source.FetchPayload(gctx, snapshot)
			if err != nil {
				if req.Optional {
					f.opts.Logger.DebugContext(ctx, "optional dashboard request failed", "request", req.Name, "error", err)
					return nil
				}
				return err
			}
			results[i] = payload
			return nil
		})
	}
	if f.opts.Insights != nil {
		g.Go(func() error {
			section := f.opts.InsightSection
			if section == "" {
				section = snapshot.Section
			}
			payload, err := f.opts.Insights.FetchInsights(gctx, InsightQuery{
				State:   snapshot.Geo.State,
				Month:   snapshot.Month,
				Section: section,
			})
			if err != nil {
				f.opts.Logger.DebugContext(ctx, "dashboard insights request failed", "section", section, "error", err)
				insightsFailed = true
				return nil
			}
			insights = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := &DashboardData{
		Snapshot:       snapshot,
		Payloads:       make(map[string]KPIPayload, len(results)),
		Insights:       insights,
		InsightsFailed: insightsFailed,
		FetchedAt:      f.opts.Clock(),
	}
	for i, req := range f.opts.Requests {
		if results[i] != nil {
			data.Payloads[req.Name] = results[i]
		}
	}
	return data, nil
}

func (f *DashboardFetcher) stale(ctx context.Context, ticket Ticket) {
	f.opts.Telemetry.Record(ctx, "portal.dashboard.stale", map[string]any{
		"key":        ticket.Key,
		"generation": ticket.Generation,
	})
}

func (f *DashboardFetcher) applied(ctx context.Context) {
	if f.opts.OnApplied != nil {
		f.opts.OnApplied(ctx, f.State())
	}
}

// State returns the renderable state.
func (f *DashboardFetcher) State() DashboardState {
	slot := f.slot.Snapshot()
	state := DashboardState{
		Status:     slot.Status,
		Loading:    slot.Status == StatusPending,
		Data:       slot.Data,
		Err:        NormalizeError(slot.Err),
		Generation: slot.Generation,
	}
	f.mu.Lock()
	if f.last != nil {
		state.Snapshot = *f.last
	}
	f.mu.Unlock()
	if slot.Data != nil {
		state.LastUpdated = slot.Data.FetchedAt
	}
	return state
}

// Wait blocks until background fetches have completed.
func (f *DashboardFetcher) Wait() {
	f.wg.Wait()
}

// Close drops every in-flight completion.
func (f *DashboardFetcher) Close() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()
	f.slot.Close()
}
