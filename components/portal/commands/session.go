package commands

import (
	"errors"

	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

var errMissingService = errors.New("commands: command requires service")

// sessionLookup resolves the session a command acts on.
type sessionLookup interface {
	Session(id string) (*portal.Session, error)
}

func resolve(service sessionLookup, id string) (*portal.Session, error) {
	if service == nil {
		return nil, errMissingService
	}
	return service.Session(id)
}
