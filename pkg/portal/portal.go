package portal

import (
	core "github.com/goliatone/go-civic-dashboard/components/portal"
)

// Service exposes the underlying components/portal.Service type.
type Service = core.Service

// Session re-export for convenience.
type Session = core.Session

// Options re-export for convenience.
type Options = core.Options

// GeoFilter re-export for convenience.
type GeoFilter = core.GeoFilter

// NarrativeBundle re-export for convenience.
type NarrativeBundle = core.NarrativeBundle

// NewService proxies to the internal constructor.
func NewService(opts Options) (*Service, error) {
	return core.NewService(opts)
}
