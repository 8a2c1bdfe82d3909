package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

var errMissingService = errors.New("queries: query requires service")

type sessionLookup interface {
	Session(id string) (*portal.Session, error)
}

// SessionInput identifies the session a query reads.
type SessionInput struct {
	SessionID string `json:"session_id"`
}

func resolve(service sessionLookup, id string) (*portal.Session, error) {
	if service == nil {
		return nil, errMissingService
	}
	return service.Session(id)
}

// SessionSnapshotQuery returns the renderable state of a session.
type SessionSnapshotQuery struct {
	service sessionLookup
}

// NewSessionSnapshotQuery builds the query.
func NewSessionSnapshotQuery(service sessionLookup) *SessionSnapshotQuery {
	return &SessionSnapshotQuery{service: service}
}

var _ gocommand.Querier[SessionInput, portal.SessionSnapshot] = (*SessionSnapshotQuery)(nil)

// Query reads the snapshot.
func (q *SessionSnapshotQuery) Query(_ context.Context, input SessionInput) (portal.SessionSnapshot, error) {
	session, err := resolve(q.service, input.SessionID)
	if err != nil {
		return portal.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// OptionListsQuery returns the dependent dropdown lists of a session.
type OptionListsQuery struct {
	service sessionLookup
}

// NewOptionListsQuery builds the query.
func NewOptionListsQuery(service sessionLookup) *OptionListsQuery {
	return &OptionListsQuery{service: service}
}

var _ gocommand.Querier[SessionInput, portal.OptionLists] = (*OptionListsQuery)(nil)

// Query reads the option lists.
func (q *OptionListsQuery) Query(_ context.Context, input SessionInput) (portal.OptionLists, error) {
	session, err := resolve(q.service, input.SessionID)
	if err != nil {
		return portal.OptionLists{}, err
	}
	return session.Snapshot().Options, nil
}
