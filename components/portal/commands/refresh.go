package commands

import (
	"context"

	gocommand "github.com/goliatone/go-command"
)

// RefreshInput re-fetches the dashboard of a session.
type RefreshInput struct {
	SessionID string `json:"session_id"`
}

// RefreshCommand forces a dashboard refresh. The previous payload stays
// visible when the refresh fails.
type RefreshCommand struct {
	service   sessionLookup
	telemetry Telemetry
}

// NewRefreshCommand creates the command.
func NewRefreshCommand(service sessionLookup, telemetry Telemetry) *RefreshCommand {
	return &RefreshCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RefreshInput] = (*RefreshCommand)(nil)

// Execute refreshes the dashboard and waits for the result.
func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshInput) error {
	session, err := resolve(c.service, msg.SessionID)
	if err != nil {
		return err
	}
	if _, err := session.Refresh(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "portal.command.refresh", map[string]any{"session_id": msg.SessionID})
	return nil
}
