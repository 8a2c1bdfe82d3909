package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
)

// OpenDrillDownInput opens the detail dialog for a metric.
type OpenDrillDownInput struct {
	SessionID string            `json:"session_id"`
	Metric    string            `json:"metric"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// OpenDrillDownCommand opens a drill-down scoped to the session filter.
type OpenDrillDownCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewOpenDrillDownCommand creates the command.
func NewOpenDrillDownCommand(service sessionLookup, telemetry Telemetry) *OpenDrillDownCommand {
	return &OpenDrillDownCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[OpenDrillDownInput] = (*OpenDrillDownCommand)(nil)

// Execute opens the drill-down. Loading continues in the background.
func (c *OpenDrillDownCommand) Execute(ctx context.Context, msg OpenDrillDownInput) error {
	if msg.Metric == "" {
		return errors.New("commands: drill-down metric is required")
	}
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	if _, err := session.OpenDrillDown(ctx, msg.Metric, msg.Extra); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "portal.command.open_drilldown", map[string]any{
		"session_id": msg.SessionID,
		"metric":     msg.Metric,
	})
	return nil
}

// ReloadDrillDownInput retries the open drill-down.
type ReloadDrillDownInput struct {
	SessionID string `json:"session_id"`
}

// ReloadDrillDownCommand re-fetches the open drill-down.
type ReloadDrillDownCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewReloadDrillDownCommand creates the command.
func NewReloadDrillDownCommand(service sessionLookup, telemetry Telemetry) *ReloadDrillDownCommand {
	return &ReloadDrillDownCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ReloadDrillDownInput] = (*ReloadDrillDownCommand)(nil)

// Execute reloads the drill-down.
func (c *ReloadDrillDownCommand) Execute(ctx context.Context, msg ReloadDrillDownInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	if _, err := session.ReloadDrillDown(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "portal.command.reload_drilldown", map[string]any{"session_id": msg.SessionID})
	return nil
}

// CloseDrillDownInput closes the detail dialog.
type CloseDrillDownInput struct {
	SessionID string `json:"session_id"`
}

// CloseDrillDownCommand closes the drill-down. Late responses are discarded.
type CloseDrillDownCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewCloseDrillDownCommand creates the command.
func NewCloseDrillDownCommand(service sessionLookup, telemetry Telemetry) *CloseDrillDownCommand {
	return &CloseDrillDownCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[CloseDrillDownInput] = (*CloseDrillDownCommand)(nil)

// Execute closes the drill-down.
func (c *CloseDrillDownCommand) Execute(ctx context.Context, msg CloseDrillDownInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	session.CloseDrillDown(ctx)
	c.telemetry.Record(ctx, "portal.command.close_drilldown", map[string]any{"session_id": msg.SessionID})
	return nil
}
