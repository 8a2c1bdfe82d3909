package portal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DrillStatus is the drill-down dialog state.
type DrillStatus string

const (
	DrillClosed  DrillStatus = "closed"
	DrillLoading DrillStatus = "loading"
	DrillReady   DrillStatus = "ready"
	DrillError   DrillStatus = "error"
)

var (
	ErrDrillDownClosed = errors.New("portal: drill-down is not open")
	errMissingMetric   = errors.New("portal: drill-down metric is required")
)

// DrillParams scopes a drill-down request.
type DrillParams struct {
	Geo   GeoFilter         `json:"geo"`
	Month string            `json:"month,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// DrillSource fetches drill-down detail for a metric key.
type DrillSource interface {
	FetchDrilldown(ctx context.Context, metric string, params DrillParams) (KPIPayload, error)
}

// DrillResult holds both halves of a drill-down. Narrative is the detail
// narrative of the route kind followed by the backend insights.
type DrillResult struct {
	Detail         DrilldownPayload `json:"detail"`
	Insights       NarrativeBundle  `json:"insights"`
	Narrative      NarrativeBundle  `json:"narrative"`
	InsightsFailed bool             `json:"insights_failed,omitempty"`
	FetchedAt      time.Time        `json:"fetched_at"`
}

// DrillState is the renderable drill-down dialog.
type DrillState struct {
	SessionID  string       `json:"session_id,omitempty"`
	Status     DrillStatus  `json:"status"`
	Metric     string       `json:"metric,omitempty"`
	Title      string       `json:"title,omitempty"`
	Params     DrillParams  `json:"params"`
	Result     *DrillResult `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	Generation uint64       `json:"generation"`
}

// DrillDownOptions configures a DrillDown. Kind maps a metric to the payload
// kind its detail narrative is derived with; metrics without a kind only
// show backend insights.
type DrillDownOptions struct {
	Source          DrillSource
	Insights        InsightSource
	Kind            func(metric string) PayloadKind
	Notifier        Notifier
	Telemetry       Telemetry
	Logger          *slog.Logger
	Clock           func() time.Time
	AbortSuperseded bool
	OnChange        func(ctx context.Context, state DrillState)
}

// DrillDown manages the detail dialog opened from a KPI card.
type DrillDown struct {
	opts DrillDownOptions
	slot Slot[*DrillResult]

	mu        sync.Mutex
	open      bool
	sessionID string
	metric    string
	params    DrillParams
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewDrillDown builds a drill-down with safe defaults.
func NewDrillDown(opts DrillDownOptions) *DrillDown {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Notifier = normalizeNotifier(opts.Notifier)
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	opts.Logger = normalizeLogger(opts.Logger)
	return &DrillDown{opts: opts}
}

// Open shows the dialog for metric and starts loading it in the background.
func (d *DrillDown) Open(ctx context.Context, metric string, params DrillParams) (Ticket, error) {
	if metric == "" {
		return Ticket{}, errMissingMetric
	}
	d.opts.Telemetry.Record(ctx, "portal.drilldown.open", map[string]any{"metric": metric})
	d.mu.Lock()
	d.open = true
	d.sessionID = uuid.NewString()
	d.metric = metric
	d.params = params
	return d.startLocked(ctx), nil
}

// Reload re-fetches the open drill-down.
func (d *DrillDown) Reload(ctx context.Context) (Ticket, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return Ticket{}, ErrDrillDownClosed
	}
	return d.startLocked(ctx), nil
}

// Close hides the dialog. In-flight completions are discarded.
func (d *DrillDown) Close(ctx context.Context) {
	d.mu.Lock()
	d.open = false
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.slot.Cancel()
	d.mu.Unlock()
	d.notify(ctx)
}

// startLocked claims a generation and releases d.mu, which the caller must
// hold, before loading. Close cannot run between the open check and Begin.
func (d *DrillDown) startLocked(ctx context.Context) Ticket {
	metric, params := d.metric, d.params
	ticket := d.slot.Begin(metric)
	reqCtx := ctx
	if d.opts.AbortSuperseded {
		if d.cancel != nil {
			d.cancel()
		}
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithCancel(ctx)
		d.cancel = cancel
	}
	d.mu.Unlock()
	d.notify(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		result, err := d.load(reqCtx, metric, params)
		if !d.slot.Resolve(ticket, result, err, false) {
			d.opts.Telemetry.Record(ctx, "portal.drilldown.stale", map[string]any{
				"metric":     metric,
				"generation": ticket.Generation,
			})
			return
		}
		if err != nil {
			d.opts.Logger.WarnContext(ctx, "drill-down detail failed", "metric", metric, "error", err)
			d.opts.Notifier.Error(ctx, "Failed to load drill-down data: "+drillErrorText(err))
		}
		d.notify(ctx)
	}()
	return ticket
}

func (d *DrillDown) load(ctx context.Context, metric string, params DrillParams) (*DrillResult, error) {
	if d.opts.Source == nil {
		return nil, errors.New("portal: drill-down source not configured")
	}
	var (
		detail         KPIPayload
		insights       InsightsPayload
		insightsFailed bool
	)
	var g errgroup.Group
	g.Go(func() error {
		payload, err := d.opts.Source.FetchDrilldown(ctx, metric, params)
		if err != nil {
			return err
		}
		detail = payload
		return nil
	})
	if d.opts.Insights != nil {
		g.Go(func() error {
			payload, err := d.opts.Insights.FetchInsights(ctx, InsightQuery{
				State:   params.Geo.State,
				Month:   params.Month,
				Section: metric,
			})
			if err != nil {
				d.opts.Logger.DebugContext(ctx, "drill-down insights failed", "metric", metric, "error", err)
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
	backend := DeriveInsights(insights)
	narrative := backend
	if d.opts.Kind != nil {
		if kind := d.opts.Kind(metric); kind != "" {
			narrative = Derive(kind, detail).Merge(backend)
		}
	}
	return &DrillResult{
		Detail:         DecodeDrilldown(detail),
		Insights:       backend,
		Narrative:      narrative,
		InsightsFailed: insightsFailed,
		FetchedAt:      d.opts.Clock(),
	}, nil
}

// State returns the dialog state.
func (d *DrillDown) State() DrillState {
	d.mu.Lock()
	open := d.open
	state := DrillState{
		SessionID: d.sessionID,
		Metric:    d.metric,
		Title:     SectionTitle(d.metric),
		Params:    d.params,
	}
	d.mu.Unlock()

	slot := d.slot.Snapshot()
	if !open {
		return DrillState{Status: DrillClosed, Generation: slot.Generation}
	}
	state.Generation = slot.Generation
	state.Status = DrillLoading
	switch slot.Status {
	case StatusPending:
		state.Status = DrillLoading
	case StatusSuccess:
		state.Status = DrillReady
		state.Result = slot.Data
	case StatusError:
		state.Status = DrillError
		state.Error = drillErrorText(slot.Err)
	}
	return state
}

// Wait blocks until background loads have completed.
func (d *DrillDown) Wait() {
	d.wg.Wait()
}

func (d *DrillDown) notify(ctx context.Context) {
	if d.opts.OnChange != nil {
		d.opts.OnChange(ctx, d.State())
	}
}

func drillErrorText(err error) string {
	fe := NormalizeError(err)
	if fe == nil {
		return ""
	}
	if fe.Message != "" {
		return fe.Message
	}
	return "Unknown error occurred"
}
