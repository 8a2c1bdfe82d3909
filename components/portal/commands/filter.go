package commands

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	portal "github.com/goliatone/go-civic-dashboard/components/portal"
)

// SetFilterInput selects one geographic value. Value may be empty or the
// all sentinel to clear the field.
type SetFilterInput struct {
	SessionID string `json:"session_id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

// SetFilterCommand writes a filter value to a session URL.
type SetFilterCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewSetFilterCommand creates the command.
func NewSetFilterCommand(service sessionLookup, telemetry Telemetry) *SetFilterCommand {
	return &SetFilterCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetFilterInput] = (*SetFilterCommand)(nil)

// Execute parses the field and applies the value.
func (c *SetFilterCommand) Execute(ctx context.Context, msg SetFilterInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	field, err := portal.ParseField(msg.Field)
	if err != nil {
		return err
	}
	next, err := session.SetFilter(ctx, field, msg.Value)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "portal.command.set_filter", map[string]any{
		"session_id": msg.SessionID,
		"field":      string(field),
		"filter":     next.Describe(),
	})
	return nil
}

// ClearFilterInput removes every geographic value.
type ClearFilterInput struct {
	SessionID string `json:"session_id"`
}

// ClearFilterCommand resets the filter of a session.
type ClearFilterCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewClearFilterCommand creates the command.
func NewClearFilterCommand(service sessionLookup, telemetry Telemetry) *ClearFilterCommand {
	return &ClearFilterCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ClearFilterInput] = (*ClearFilterCommand)(nil)

// Execute clears the filter.
func (c *ClearFilterCommand) Execute(ctx context.Context, msg ClearFilterInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	session.ClearFilter(ctx)
	c.telemetry.Record(ctx, "portal.command.clear_filter", map[string]any{"session_id": msg.SessionID})
	return nil
}

// SetMonthInput selects the reporting month.
type SetMonthInput struct {
	SessionID string `json:"session_id"`
	Month     string `json:"month"`
}

// SetMonthCommand writes the month to a session URL.
type SetMonthCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewSetMonthCommand creates the command.
func NewSetMonthCommand(service sessionLookup, telemetry Telemetry) *SetMonthCommand {
	return &SetMonthCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetMonthInput] = (*SetMonthCommand)(nil)

// Execute applies the month.
func (c *SetMonthCommand) Execute(ctx context.Context, msg SetMonthInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	session.SetMonth(ctx, msg.Month)
	c.telemetry.Record(ctx, "portal.command.set_month", map[string]any{
		"session_id": msg.SessionID,
		"month":      msg.Month,
	})
	return nil
}
