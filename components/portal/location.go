package portal

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// NavigationMode controls how a Location write affects the history stack.
type NavigationMode int

const (
	// NavigateReplace rewrites the current history entry.
	NavigateReplace NavigationMode = iota
	// NavigatePush appends a new history entry.
	NavigatePush
)

var errEmptyLocation = errors.New("portal: location url is required")

// Location is the single source of truth for filter state. Update runs fn
// against the latest query values and commits the result atomically.
type Location interface {
	Query() url.Values
	Update(mode NavigationMode, fn func(url.Values)) url.Values
}

// MemoryLocation keeps the query string and a back stack in memory. It is
// used by the HTTP surface (one per portal session) and by tests.
type MemoryLocation struct {
	mu      sync.Mutex
	path    string
	query   url.Values
	history []string
}

// NewMemoryLocation parses rawURL into a location with a single history entry.
func NewMemoryLocation(rawURL string) (*MemoryLocation, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errEmptyLocation
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	loc := &MemoryLocation{
		path:  parsed.Path,
		query: parsed.Query(),
	}
	loc.history = []string{loc.urlLocked()}
	return loc, nil
}

// Query returns a copy of the current query values.
func (l *MemoryLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.query)
}

// Update applies fn to a copy of the latest values and navigates to the result.
func (l *MemoryLocation) Update(mode NavigationMode, fn func(url.Values)) url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := cloneValues(l.query)
	if fn != nil {
		fn(next)
	}
	l.query = next
	current := l.urlLocked()
	if mode == NavigatePush || len(l.history) == 0 {
		l.history = append(l.history, current)
	} else {
		l.history[len(l.history)-1] = current
	}
	return cloneValues(next)
}

// URL returns the current path and encoded query.
func (l *MemoryLocation) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.urlLocked()
}

// RawQuery returns the encoded query string without the path.
func (l *MemoryLocation) RawQuery() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return EncodeQuery(l.query)
}

// History returns the back stack, oldest first.
func (l *MemoryLocation) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.history...)
}

func (l *MemoryLocation) urlLocked() string {
	encoded := EncodeQuery(l.query)
	if encoded == "" {
		return l.path
	}
	return l.path + "?" + encoded
}

// EncodeQuery encodes values with the geographic parameters first, in
// hierarchy order, followed by the remaining keys sorted alphabetically.
func EncodeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		if isGeoParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(keys)+3)
	for _, field := range geoFields {
		if _, ok := values[string(field)]; ok {
			ordered = append(ordered, string(field))
		}
	}
	ordered = append(ordered, keys...)

	var b strings.Builder
	for _, key := range ordered {
		for _, value := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

func isGeoParam(key string) bool {
	for _, field := range geoFields {
		if key == string(field) {
			return true
		}
	}
	return false
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, vals := range values {
		out[key] = append([]string(nil), vals...)
	}
	return out
}
