package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	errMissingBackend  = errors.New("portal: backend not configured")
	ErrUnknownSection  = errors.New("portal: unknown section")
	ErrSessionNotFound = errors.New("portal: session not found")
)

// Backend is the union of backend calls the portal needs.
type Backend interface {
	GeoSource
	EndpointClient
	InsightSource
}

// Options configures the portal Service. Collaborators are interfaces so
// applications can swap transports and caches.
type Options struct {
	Backend         Backend
	Sections        *SectionManifest
	Cache           ResponseCache
	Broadcast       *BroadcastHook
	Notifier        Notifier
	Telemetry       Telemetry
	Logger          *slog.Logger
	Clock           func() time.Time
	BasePath        string
	AbortSuperseded bool
	// SessionTTL evicts sessions not looked up for this long. Zero keeps
	// sessions until they are closed.
	SessionTTL time.Duration
}

// Service owns the portal sessions.
type Service struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session

	stop     chan struct{}
	stopOnce sync.Once
	sweeper  sync.WaitGroup
}

// NewService builds a Service with safe defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errMissingBackend
	}
	if opts.Sections == nil {
		sections, err := DefaultSections()
		if err != nil {
			return nil, err
		}
		opts.Sections = sections
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache(5 * time.Minute)
	}
	if opts.Broadcast == nil {
		opts.Broadcast = NewBroadcastHook()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BasePath == "" {
		opts.BasePath = "/portal"
	}
	opts.Notifier = normalizeNotifier(opts.Notifier)
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	opts.Logger = normalizeLogger(opts.Logger)
	s := &Service{opts: opts, sessions: make(map[string]*Session), stop: make(chan struct{})}
	if opts.SessionTTL > 0 {
		s.sweeper.Add(1)
		go s.sweep(max(opts.SessionTTL/2, time.Second))
	}
	return s, nil
}

func (s *Service) sweep(every time.Duration) {
	defer s.sweeper.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.EvictIdle(s.opts.Clock())
		}
	}
}

// EvictIdle closes every session idle for longer than the session TTL at
// now and returns how many were closed.
func (s *Service) EvictIdle(now time.Time) int {
	if s.opts.SessionTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.opts.SessionTTL).UnixNano()
	var idle []*Session
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.lastSeen.Load() < cutoff {
			idle = append(idle, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	ctx := context.Background()
	for _, session := range idle {
		session.Close()
		s.opts.Telemetry.Record(ctx, "portal.session.evicted", map[string]any{
			"session": session.ID,
			"section": session.section.Code,
		})
	}
	if len(idle) > 0 {
		s.opts.Logger.DebugContext(ctx, "evicted idle sessions", "count", len(idle), "ttl", s.opts.SessionTTL)
	}
	return len(idle)
}

// Len reports the number of open sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sections returns the section manifest.
func (s *Service) Sections() *SectionManifest { return s.opts.Sections }

// Broadcast returns the live event hook.
func (s *Service) Broadcast() *BroadcastHook { return s.opts.Broadcast }

// OpenSession mounts a view of section at rawQuery. The state list, option
// lists and dashboard fetch start immediately.
func (s *Service) OpenSession(ctx context.Context, section, rawQuery string) (*Session, error) {
	sec, ok := s.opts.Sections.Section(section)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	rawURL := s.opts.BasePath + "/" + sec.Code
	if rawQuery != "" {
		rawURL += "?" + rawQuery
	}
	loc, err := NewMemoryLocation(rawURL)
	if err != nil {
		return nil, err
	}
	session, err := s.newSession(sec, loc)
	if err != nil {
		return nil, err
	}
	session.touch(s.opts.Clock())
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	session.mount(ctx)
	return session, nil
}

// Session returns an open session and marks it as seen.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session.touch(s.opts.Clock())
	return session, nil
}

// CloseSession tears a session down.
func (s *Service) CloseSession(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		session.Close()
	}
}

// Close stops the idle sweep and tears every session down.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.sweeper.Wait()
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}

func (s *Service) newSession(sec Section, loc *MemoryLocation) (*Session, error) {
	session := &Session{
		ID:      uuid.NewString(),
		section: sec,
		service: s,
		loc:     loc,
		toasts:  &ToastLog{},
	}
	notifier := MultiNotifier{session.toasts, s.opts.Notifier, &NotificationsHook{Client: sessionPublisher{session}}}
	session.filter = NewGeoFilterState(loc, s.opts.Telemetry)
	session.options = NewOptionLoader(OptionLoaderOptions{
		Source:    s.opts.Backend,
		Cache:     s.opts.Cache,
		Logger:    s.opts.Logger,
		Telemetry: s.opts.Telemetry,
		OnChange: func(level OptionLevel) {
			session.publish(context.Background(), PortalEvent{Type: EventOptions, Level: level})
		},
	})

	var insights InsightSource
	if sec.Insights.Enabled {
		insights = s.opts.Backend
		if sec.Insights.Path != "" {
			insights = EndpointInsights{Client: s.opts.Backend, Path: sec.Insights.Path}
		}
	}
	dashboard, err := NewDashboardFetcher(DashboardOptions{
		Subject:         sec.Subject,
		SuccessMessage:  sec.SuccessMessage,
		Requests:        sec.KPIRequests(s.opts.Backend),
		Insights:        insights,
		InsightSection:  sec.Insights.Section,
		Notifier:        notifier,
		Telemetry:       s.opts.Telemetry,
		Logger:          s.opts.Logger,
		Clock:           s.opts.Clock,
		AbortSuperseded: s.opts.AbortSuperseded,
		OnApplied:       session.dashboardApplied,
	})
	if err != nil {
		return nil, err
	}
	session.dashboard = dashboard
	drillSource := RoutedDrillSource{Client: s.opts.Backend, Manifest: s.opts.Sections}
	session.drill = NewDrillDown(DrillDownOptions{
		Source:          drillSource,
		Insights:        s.opts.Backend,
		Kind:            drillSource.Kind,
		Notifier:        notifier,
		Telemetry:       s.opts.Telemetry,
		Logger:          s.opts.Logger,
		Clock:           s.opts.Clock,
		AbortSuperseded: s.opts.AbortSuperseded,
		OnChange: func(ctx context.Context, state DrillState) {
			session.publish(ctx, PortalEvent{Type: EventDrillDown, Status: string(state.Status)})
		},
	})
	return session, nil
}

// Session is one mounted dashboard view: its URL, filter, option lists,
// dashboard payload and drill-down dialog.
type Session struct {
	ID string

	section   Section
	service   *Service
	loc       *MemoryLocation
	filter    *GeoFilterState
	options   *OptionLoader
	dashboard *DashboardFetcher
	drill     *DrillDown
	toasts    *ToastLog

	// reconcileMu orders URL reads with the fetches they trigger.
	reconcileMu sync.Mutex
	lastSeen    atomic.Int64
	closeOnce   sync.Once
}

// SessionSnapshot is the renderable state of a session.
type SessionSnapshot struct {
	ID         string                     `json:"id"`
	URL        string                     `json:"url"`
	Section    Section                    `json:"section"`
	Filter     GeoFilter                  `json:"filter"`
	FilterLine string                     `json:"filter_line"`
	Month      string                     `json:"month,omitempty"`
	Months     []string                   `json:"months,omitempty"`
	Options    OptionLists                `json:"options"`
	Dashboard  DashboardState             `json:"dashboard"`
	Narrative  map[string]NarrativeBundle `json:"narrative"`
	Compliance []ComplianceSlice          `json:"compliance,omitempty"`
	DrillDown  DrillState                 `json:"drilldown"`
	Toasts     []Toast                    `json:"toasts"`
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) mount(ctx context.Context) {
	s.options.Mount(context.WithoutCancel(ctx))
	s.reconcile(ctx)
}

// reconcile re-runs every dependent fetch against the current URL. The fetches
// outlive the request that caused them.
func (s *Session) reconcile(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()
	s.options.Sync(ctx, s.filter.Read())
	s.dashboard.Trigger(ctx, s.currentSnapshot())
}

func (s *Session) currentSnapshot() FilterSnapshot {
	return SnapshotFromQuery(s.loc.Query(), s.section.Code)
}

// Filter returns the current geographic filter.
func (s *Session) Filter() GeoFilter { return s.filter.Read() }

// Location exposes the session URL.
func (s *Session) Location() *MemoryLocation { return s.loc }

// Section returns the mounted section.
func (s *Session) Section() Section { return s.section }

// SetFilter selects a geographic value and re-runs the dependent fetches.
func (s *Session) SetFilter(ctx context.Context, field Field, value string) (GeoFilter, error) {
	next, err := s.filter.Set(ctx, field, value)
	if err != nil {
		return next, err
	}
	s.publish(ctx, PortalEvent{Type: EventFilter, Filter: &next})
	s.reconcile(ctx)
	return next, nil
}

// ClearFilter removes the geographic filter.
func (s *Session) ClearFilter(ctx context.Context) GeoFilter {
	next := s.filter.Clear(ctx)
	s.publish(ctx, PortalEvent{Type: EventFilter, Filter: &next})
	s.reconcile(ctx)
	return next
}

// SetMonth selects the reporting month. An empty month clears it.
func (s *Session) SetMonth(ctx context.Context, month string) {
	month = normalizeGeoValue(month)
	s.loc.Update(NavigateReplace, func(values url.Values) {
		if month == "" {
			values.Del("month")
			return
		}
		values.Set("month", month)
	})
	s.reconcile(ctx)
}

// Refresh re-fetches the dashboard for the current snapshot.
func (s *Session) Refresh(ctx context.Context) (*DashboardData, error) {
	return s.dashboard.Refresh(ctx)
}

// OpenDrillDown opens the drill-down for metric scoped to the current filter.
func (s *Session) OpenDrillDown(ctx context.Context, metric string, extra map[string]string) (DrillState, error) {
	snapshot := s.currentSnapshot()
	if _, err := s.drill.Open(context.WithoutCancel(ctx), metric, DrillParams{Geo: snapshot.Geo, Month: snapshot.Month, Extra: extra}); err != nil {
		return DrillState{}, err
	}
	return s.drill.State(), nil
}

// ReloadDrillDown re-fetches the open drill-down.
func (s *Session) ReloadDrillDown(ctx context.Context) (DrillState, error) {
	if _, err := s.drill.Reload(context.WithoutCancel(ctx)); err != nil {
		return s.drill.State(), err
	}
	return s.drill.State(), nil
}

// CloseDrillDown closes the drill-down dialog.
func (s *Session) CloseDrillDown(ctx context.Context) DrillState {
	s.drill.Close(ctx)
	return s.drill.State()
}

// Wait blocks until every background request of the session has settled.
func (s *Session) Wait() {
	s.options.Wait()
	s.dashboard.Wait()
	s.drill.Wait()
}

// Close discards in-flight work. Late completions become no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.options.Close()
		s.dashboard.Close()
		s.drill.Close(context.Background())
	})
}

// Snapshot returns the renderable session state.
func (s *Session) Snapshot() SessionSnapshot {
	filter := s.filter.Read()
	query := s.loc.Query()
	dashboard := s.dashboard.State()
	snap := SessionSnapshot{
		ID:         s.ID,
		URL:        s.loc.URL(),
		Section:    s.section,
		Filter:     filter,
		FilterLine: filter.Describe(),
		Month:      normalizeGeoValue(query.Get("month")),
		Options:    s.options.Lists(),
		Dashboard:  dashboard,
		Narrative:  SectionNarrative(s.section, dashboard.Data),
		DrillDown:  s.drill.State(),
		Toasts:     s.toasts.Toasts(),
	}
	if dashboard.Data != nil {
		if s.section.Kind == KindExecutive {
			snap.Compliance = ComplianceSplit(DecodeExecutive(dashboard.Data.Payload(primaryRequest(s.section))))
		}
		if s.section.AutoMonth {
			snap.Months = FleetMonths(DecodeFleetRows(dashboard.Data.Payload(primaryRequest(s.section))))
		}
	}
	return snap
}

func (s *Session) dashboardApplied(ctx context.Context, state DashboardState) {
	s.publish(ctx, PortalEvent{Type: EventDashboard, Status: string(state.Status)})
	if !s.section.AutoMonth || state.Data == nil || state.Snapshot.Month != "" {
		return
	}
	if normalizeGeoValue(s.loc.Query().Get("month")) != "" {
		return
	}
	months := FleetMonths(DecodeFleetRows(state.Data.Payload(primaryRequest(s.section))))
	if len(months) == 0 {
		return
	}
	s.service.opts.Telemetry.Record(ctx, "portal.month.auto_select", map[string]any{"month": months[0]})
	s.SetMonth(ctx, months[0])
}

func (s *Session) publish(ctx context.Context, event PortalEvent) {
	event.SessionID = s.ID
	s.service.opts.Broadcast.Publish(ctx, event)
}

type sessionPublisher struct{ session *Session }

func (p sessionPublisher) PublishPortalEvent(ctx context.Context, event PortalEvent) error {
	p.session.publish(ctx, event)
	return nil
}

func primaryRequest(sec Section) string {
	if len(sec.Requests) == 0 {
		return ""
	}
	return sec.Requests[0].Name
}

// SectionNarrative derives the narratives shown on a section from its
// applied data. A nil data yields an empty map.
func SectionNarrative(sec Section, data *DashboardData) map[string]NarrativeBundle {
	out := map[string]NarrativeBundle{}
	if data == nil {
		return out
	}
	primary := data.Payload(primaryRequest(sec))
	switch sec.Kind {
	case KindExecutive:
		out[sec.Code] = DeriveExecutive(DecodeExecutive(primary)).Merge(DeriveInsights(data.Insights))
	case KindProcessEfficiency:
		out[sec.Code] = DeriveProcessEfficiency(DecodeProcessEfficiency(primary))
	case KindFleet:
		out[sec.Code] = DeriveFleet(DecodeFleet(primary, data.Payload("compliance")), data.Insights)
	case KindMarket:
		models := mapSlice(data.Payload("top_models")["items"])
		for key, bundle := range DeriveMarket(DecodeMarket(primary, models)) {
			out[key] = bundle
		}
	case KindVehicleAnalytics:
		v := decodeVehicleData(data)
		out[sec.Code] = DeriveVehicleAnalytics(v)
		for key, bundle := range DeriveVehicleTabs(v) {
			out[key] = bundle
		}
	case KindAdvanced:
		out[sec.Code] = DeriveAdvanced(DecodeAdvanced(data.Payloads)).Merge(DeriveInsights(data.Insights))
	default:
		out[sec.Code] = Derive(sec.Kind, primary).Merge(DeriveInsights(data.Insights))
	}
	return out
}

func decodeVehicleData(data *DashboardData) VehicleAnalytics {
	return DecodeVehicleAnalytics(data.Payload("kpis"), data.Payload("manufacturers"), data.Payload("classes"), data.Payload("delays"))
}
