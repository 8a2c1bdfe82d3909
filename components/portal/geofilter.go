package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Field names one level of the geographic hierarchy. The value doubles as the
// URL query parameter.
type Field string

const (
	FieldState    Field = "state_cd"
	FieldDistrict Field = "c_district"
	FieldCity     Field = "city"
)

// AllSentinel is the option value the selectors use for "no filter".
const AllSentinel = "__ALL__"

var geoFields = []Field{FieldState, FieldDistrict, FieldCity}

var (
	ErrUnknownField    = errors.New("portal: unknown geo field")
	ErrMissingAncestor = errors.New("portal: geo field requires its parent to be selected")
)

// ParseField maps a query parameter or a friendly alias to a Field.
func ParseField(name string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "state_cd", "state":
		return FieldState, nil
	case "c_district", "district":
		return FieldDistrict, nil
	case "city":
		return FieldCity, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// GeoFilter is the parsed geographic selection. An empty field means "all".
type GeoFilter struct {
	State    string `json:"state_cd,omitempty"`
	District string `json:"c_district,omitempty"`
	City     string `json:"city,omitempty"`
}

// IsZero reports whether no level is selected.
func (f GeoFilter) IsZero() bool {
	return f.State == "" && f.District == "" && f.City == ""
}

// Get returns the value for a field.
func (f GeoFilter) Get(field Field) string {
	switch field {
	case FieldState:
		return f.State
	case FieldDistrict:
		return f.District
	case FieldCity:
		return f.City
	}
	return ""
}

// Values returns the selected levels as query parameters.
func (f GeoFilter) Values() url.Values {
	values := url.Values{}
	f.Apply(values)
	return values
}

// Apply writes the selected levels into values and removes the rest.
func (f GeoFilter) Apply(values url.Values) {
	for _, field := range geoFields {
		if v := f.Get(field); v != "" {
			values.Set(string(field), v)
		} else {
			values.Del(string(field))
		}
	}
}

// Describe renders the active filter line shown above the dashboard.
func (f GeoFilter) Describe() string {
	parts := make([]string, 0, 3)
	for _, field := range geoFields {
		if v := f.Get(field); v != "" {
			parts = append(parts, string(field)+"="+v)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

// ParseGeoFilter reads the geographic parameters from a query. Orphaned
// descendants are dropped so the hierarchy invariant always holds.
func ParseGeoFilter(values url.Values) GeoFilter {
	var f GeoFilter
	f.State = normalizeGeoValue(values.Get(string(FieldState)))
	if f.State == "" {
		return f
	}
	f.District = normalizeGeoValue(values.Get(string(FieldDistrict)))
	if f.District == "" {
		return f
	}
	f.City = normalizeGeoValue(values.Get(string(FieldCity)))
	return f
}

func normalizeGeoValue(raw string) string {
	value := strings.TrimSpace(raw)
	if value == AllSentinel || strings.EqualFold(value, "all") {
		return ""
	}
	return value
}

// FilterChange is emitted after a write changes the parsed filter.
type FilterChange struct {
	Previous GeoFilter `json:"previous"`
	Current  GeoFilter `json:"current"`
}

// GeoFilterState reads and writes the geographic filter through a Location.
type GeoFilterState struct {
	loc       Location
	telemetry Telemetry

	mu   sync.RWMutex
	subs map[int]chan FilterChange
	next int
}

// NewGeoFilterState binds filter state to a location.
func NewGeoFilterState(loc Location, telemetry Telemetry) *GeoFilterState {
	return &GeoFilterState{
		loc:       loc,
		telemetry: normalizeTelemetry(telemetry),
		subs:      make(map[int]chan FilterChange),
	}
}

// Read parses the current location.
func (s *GeoFilterState) Read() GeoFilter {
	return ParseGeoFilter(s.loc.Query())
}

// Set selects value for field and clears the descendants of field. Selecting
// a state always clears district and city, even when the state is unchanged.
func (s *GeoFilterState) Set(ctx context.Context, field Field, value string) (GeoFilter, error) {
	value = normalizeGeoValue(value)
	var (
		prev, next GeoFilter
		failure    error
	)
	s.loc.Update(NavigateReplace, func(values url.Values) {
		prev = ParseGeoFilter(values)
		next = prev
		switch field {
		case FieldState:
			next = GeoFilter{State: value}
		case FieldDistrict:
			if value != "" && prev.State == "" {
				failure = ErrMissingAncestor
				return
			}
			next.District = value
			next.City = ""
		case FieldCity:
			if value != "" && prev.District == "" {
				failure = ErrMissingAncestor
				return
			}
			next.City = value
		default:
			failure = fmt.Errorf("%w: %q", ErrUnknownField, field)
			return
		}
		next.Apply(values)
	})
	if failure != nil {
		return prev, failure
	}
	s.telemetry.Record(ctx, "portal.filter.set", map[string]any{
		"field": string(field),
		"value": value,
	})
	s.publish(prev, next)
	return next, nil
}

// Clear removes every geographic parameter in one update.
func (s *GeoFilterState) Clear(ctx context.Context) GeoFilter {
	var prev GeoFilter
	s.loc.Update(NavigateReplace, func(values url.Values) {
		prev = ParseGeoFilter(values)
		GeoFilter{}.Apply(values)
	})
	s.telemetry.Record(ctx, "portal.filter.clear", nil)
	s.publish(prev, GeoFilter{})
	return GeoFilter{}
}

// Subscribe returns a channel of filter changes and a cancel func.
func (s *GeoFilterState) Subscribe() (<-chan FilterChange, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan FilterChange, 8)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *GeoFilterState) publish(prev, next GeoFilter) {
	if prev == next {
		return
	}
	change := FilterChange{Previous: prev, Current: next}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
