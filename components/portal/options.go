package portal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// GeoSource lists the selectable values for each geographic level.
type GeoSource interface {
	States(ctx context.Context) ([]string, error)
	Districts(ctx context.Context, state string) ([]string, error)
	Cities(ctx context.Context, state, district string) ([]string, error)
}

// OptionLevel identifies one of the three option lists.
type OptionLevel string

const (
	LevelStates    OptionLevel = "states"
	LevelDistricts OptionLevel = "districts"
	LevelCities    OptionLevel = "cities"
)

// OptionLists is a snapshot of the three selector lists.
type OptionLists struct {
	States    []string `json:"states"`
	Districts []string `json:"districts"`
	Cities    []string `json:"cities"`
}

// OptionLoaderOptions configures an OptionLoader.
type OptionLoaderOptions struct {
	Source    GeoSource
	Cache     ResponseCache
	Logger    *slog.Logger
	Telemetry Telemetry
	// OnChange runs after a list is replaced by a completed request.
	OnChange func(level OptionLevel)
}

// OptionLoader keeps the state, district and city lists in step with the
// geographic filter. Each list has its own slot so a slow district request
// can never overwrite a newer one.
type OptionLoader struct {
	opts OptionLoaderOptions

	states    Slot[[]string]
	districts Slot[[]string]
	cities    Slot[[]string]

	mu           sync.Mutex
	synced       bool
	lastState    string
	lastDistrict string

	wg sync.WaitGroup
}

// NewOptionLoader builds a loader with safe defaults.
func NewOptionLoader(opts OptionLoaderOptions) *OptionLoader {
	opts.Logger = normalizeLogger(opts.Logger)
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	return &OptionLoader{opts: opts}
}

// Mount loads the state list. It is called once per view lifetime.
func (l *OptionLoader) Mount(ctx context.Context) {
	l.load(ctx, &l.states, LevelStates, "states", func(ctx context.Context) ([]string, error) {
		return l.opts.Source.States(ctx)
	})
}

// Sync reacts to a filter value. Lists whose dependencies changed are cleared
// synchronously before their replacement request starts.
func (l *OptionLoader) Sync(ctx context.Context, filter GeoFilter) {
	l.mu.Lock()
	stateChanged := !l.synced || filter.State != l.lastState
	districtChanged := stateChanged || filter.District != l.lastDistrict
	l.synced = true
	l.lastState = filter.State
	l.lastDistrict = filter.District
	l.mu.Unlock()

	if stateChanged {
		state := filter.State
		if state == "" {
			l.districts.Reset("", nil)
		} else {
			l.load(ctx, &l.districts, LevelDistricts, "districts:"+state, func(ctx context.Context) ([]string, error) {
				return l.opts.Source.Districts(ctx, state)
			})
		}
	}
	if districtChanged {
		state, district := filter.State, filter.District
		if state == "" || district == "" {
			l.cities.Reset("", nil)
		} else {
			l.load(ctx, &l.cities, LevelCities, "cities:"+state+"|"+district, func(ctx context.Context) ([]string, error) {
				return l.opts.Source.Cities(ctx, state, district)
			})
		}
	}
}

func (l *OptionLoader) load(ctx context.Context, slot *Slot[[]string], level OptionLevel, key string, fetch func(context.Context) ([]string, error)) {
	slot.Reset(key, nil)
	ticket := slot.Begin(key)
	if l.opts.Source == nil {
		slot.Succeed(ticket, nil)
		return
	}
	if cached, ok := l.cached(ctx, key); ok {
		if slot.Succeed(ticket, cached) {
			l.changed(level)
		}
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		values, err := fetch(ctx)
		if err != nil {
			l.opts.Logger.DebugContext(ctx, "option list request failed",
				"option_level", string(level), "key", key, "error", err)
			values = nil
		} else {
			l.store(ctx, key, values)
		}
		if !slot.Succeed(ticket, values) {
			l.opts.Telemetry.Record(ctx, "portal.options.stale", map[string]any{
				"option_level": string(level),
				"key":          key,
			})
			return
		}
		l.changed(level)
	}()
}

func (l *OptionLoader) cached(ctx context.Context, key string) ([]string, bool) {
	if l.opts.Cache == nil {
		return nil, false
	}
	raw, ok := l.opts.Cache.Get(ctx, "options:"+key)
	if !ok {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false
	}
	return values, true
}

func (l *OptionLoader) store(ctx context.Context, key string, values []string) {
	if l.opts.Cache == nil {
		return
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return
	}
	l.opts.Cache.Set(ctx, "options:"+key, raw)
}

func (l *OptionLoader) changed(level OptionLevel) {
	if l.opts.OnChange != nil {
		l.opts.OnChange(level)
	}
}

// States returns the current state list.
func (l *OptionLoader) States() []string { return cloneStrings(l.states.Snapshot().Data) }

// Districts returns the current district list.
func (l *OptionLoader) Districts() []string { return cloneStrings(l.districts.Snapshot().Data) }

// Cities returns the current city list.
func (l *OptionLoader) Cities() []string { return cloneStrings(l.cities.Snapshot().Data) }

// Lists returns all three lists.
func (l *OptionLoader) Lists() OptionLists {
	return OptionLists{
		States:    nonNilStrings(l.States()),
		Districts: nonNilStrings(l.Districts()),
		Cities:    nonNilStrings(l.Cities()),
	}
}

// Slot exposes the raw slot state of a level.
func (l *OptionLoader) Slot(level OptionLevel) FetchSlot[[]string] {
	switch level {
	case LevelDistricts:
		return l.districts.Snapshot()
	case LevelCities:
		return l.cities.Snapshot()
	default:
		return l.states.Snapshot()
	}
}

// Wait blocks until in-flight requests have completed.
func (l *OptionLoader) Wait() {
	l.wg.Wait()
}

// Close discards every in-flight request.
func (l *OptionLoader) Close() {
	l.states.Close()
	l.districts.Close()
	l.cities.Close()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
