package httpapi

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	portal "github.com/goliatone/go-civic-dashboard/components/portal"
	"github.com/goliatone/go-civic-dashboard/components/portal/commands"
	"github.com/goliatone/go-civic-dashboard/components/portal/queries"
)

var errNotConfigured = errors.New("httpapi: operation not configured")

// Executor is the transport-neutral surface shared by net/http and go-router.
type Executor interface {
	Open(ctx context.Context, section, rawQuery string) (portal.SessionSnapshot, error)
	State(ctx context.Context, sessionID string) (portal.SessionSnapshot, error)
	Narrative(ctx context.Context, sessionID string) (queries.NarrativeView, error)
	SetFilter(ctx context.Context, input commands.SetFilterInput) error
	ClearFilter(ctx context.Context, input commands.ClearFilterInput) error
	SetMonth(ctx context.Context, input commands.SetMonthInput) error
	Refresh(ctx context.Context, input commands.RefreshInput) error
	OpenDrillDown(ctx context.Context, input commands.OpenDrillDownInput) error
	ReloadDrillDown(ctx context.Context, input commands.ReloadDrillDownInput) error
	CloseDrillDown(ctx context.Context, input commands.CloseDrillDownInput) error
	CloseSession(ctx context.Context, sessionID string) error
}

type sessionService interface {
	OpenSession(ctx context.Context, section, rawQuery string) (*portal.Session, error)
	Session(id string) (*portal.Session, error)
	CloseSession(id string)
}

// CommandExecutor routes Executor calls to go-command handlers.
type CommandExecutor struct {
	Sessions        sessionService
	SetFilterCmd    gocommand.Commander[commands.SetFilterInput]
	ClearFilterCmd  gocommand.Commander[commands.ClearFilterInput]
	SetMonthCmd     gocommand.Commander[commands.SetMonthInput]
	RefreshCmd      gocommand.Commander[commands.RefreshInput]
	OpenDrillCmd    gocommand.Commander[commands.OpenDrillDownInput]
	ReloadDrillCmd  gocommand.Commander[commands.ReloadDrillDownInput]
	CloseDrillCmd   gocommand.Commander[commands.CloseDrillDownInput]
	StateQuery      gocommand.Querier[queries.SessionInput, portal.SessionSnapshot]
	NarrativeReader gocommand.Querier[queries.SessionInput, queries.NarrativeView]
}

// NewCommandExecutor wires every portal command and query against service.
func NewCommandExecutor(service *portal.Service, telemetry commands.Telemetry) *CommandExecutor {
	return &CommandExecutor{
		Sessions:        service,
		SetFilterCmd:    commands.NewSetFilterCommand(service, telemetry),
		ClearFilterCmd:  commands.NewClearFilterCommand(service, telemetry),
		SetMonthCmd:     commands.NewSetMonthCommand(service, telemetry),
		RefreshCmd:      commands.NewRefreshCommand(service, telemetry),
		OpenDrillCmd:    commands.NewOpenDrillDownCommand(service, telemetry),
		ReloadDrillCmd:  commands.NewReloadDrillDownCommand(service, telemetry),
		CloseDrillCmd:   commands.NewCloseDrillDownCommand(service, telemetry),
		StateQuery:      queries.NewSessionSnapshotQuery(service),
		NarrativeReader: queries.NewNarrativeQuery(service),
	}
}

var _ Executor = (*CommandExecutor)(nil)

func (e *CommandExecutor) Open(ctx context.Context, section, rawQuery string) (portal.SessionSnapshot, error) {
	if e.Sessions == nil {
		return portal.SessionSnapshot{}, errNotConfigured
	}
	session, err := e.Sessions.OpenSession(ctx, section, rawQuery)
	if err != nil {
		return portal.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

func (e *CommandExecutor) State(ctx context.Context, sessionID string) (portal.SessionSnapshot, error) {
	if e.StateQuery == nil {
		return portal.SessionSnapshot{}, errNotConfigured
	}
	return e.StateQuery.Query(ctx, queries.SessionInput{SessionID: sessionID})
}

func (e *CommandExecutor) Narrative(ctx context.Context, sessionID string) (queries.NarrativeView, error) {
	if e.NarrativeReader == nil {
		return queries.NarrativeView{}, errNotConfigured
	}
	return e.NarrativeReader.Query(ctx, queries.SessionInput{SessionID: sessionID})
}

func (e *CommandExecutor) SetFilter(ctx context.Context, input commands.SetFilterInput) error {
	return execute(ctx, e.SetFilterCmd, input)
}

func (e *CommandExecutor) ClearFilter(ctx context.Context, input commands.ClearFilterInput) error {
	return execute(ctx, e.ClearFilterCmd, input)
}

func (e *CommandExecutor) SetMonth(ctx context.Context, input commands.SetMonthInput) error {
	return execute(ctx, e.SetMonthCmd, input)
}

func (e *CommandExecutor) Refresh(ctx context.Context, input commands.RefreshInput) error {
	return execute(ctx, e.RefreshCmd, input)
}

func (e *CommandExecutor) OpenDrillDown(ctx context.Context, input commands.OpenDrillDownInput) error {
	return execute(ctx, e.OpenDrillCmd, input)
}

func (e *CommandExecutor) ReloadDrillDown(ctx context.Context, input commands.ReloadDrillDownInput) error {
	return execute(ctx, e.ReloadDrillCmd, input)
}

func (e *CommandExecutor) CloseDrillDown(ctx context.Context, input commands.CloseDrillDownInput) error {
	return execute(ctx, e.CloseDrillCmd, input)
}

func (e *CommandExecutor) CloseSession(_ context.Context, sessionID string) error {
	if e.Sessions == nil {
		return errNotConfigured
	}
	if _, err := e.Sessions.Session(sessionID); err != nil {
		return err
	}
	e.Sessions.CloseSession(sessionID)
	return nil
}

func execute[T any](ctx context.Context, cmd gocommand.Commander[T], msg T) error {
	if cmd == nil {
		return errNotConfigured
	}
	return cmd.Execute(ctx, msg)
}
