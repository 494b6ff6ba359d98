package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/ipc"
)

// Handle serves one IPC command against the session map.
func (c *Coordinator) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	sourceID := domain.SourceID(strings.TrimSpace(req.SourceID))

	switch req.Command {
	case ipc.CommandStart:
		if sourceID == "" {
			return failure(errors.New("start requires a source"))
		}
		sess, err := c.StartSession(ctx, sourceID, nil, c.Settings())
		if err != nil {
			return failure(err)
		}
		status := c.describe(sess.Snapshot())
		return ipc.Response{OK: true, State: status.State, Message: fmt.Sprintf("capturing %s", sourceID), Status: &status}

	case ipc.CommandStop:
		if sourceID == "" {
			return failure(errors.New("stop requires a source"))
		}
		if err := c.StopSession(ctx, sourceID); err != nil {
			return failure(err)
		}
		return ipc.Response{OK: true, State: "idle", Message: fmt.Sprintf("stopped %s", sourceID)}

	case ipc.CommandUpdateSettings:
		if req.Patch == nil || req.Patch.Empty() {
			return failure(errors.New("update_settings requires a non-empty patch"))
		}
		next, err := c.UpdateSettings(ctx, sourceID, *req.Patch)
		if err != nil {
			return failure(err)
		}
		redacted := next.Redacted()
		return ipc.Response{OK: true, Message: "settings updated", Settings: &redacted}

	case ipc.CommandStatus:
		if sourceID == "" {
			settings := c.Settings().Redacted()
			return ipc.Response{OK: true, State: "running", Settings: &settings, Sessions: c.statuses()}
		}
		status := c.Status(sourceID)
		return ipc.Response{OK: true, State: status.State, Status: &status}

	case ipc.CommandSessions:
		return ipc.Response{OK: true, Sessions: c.statuses()}

	default:
		return failure(fmt.Errorf("unsupported command %q", req.Command))
	}
}

func (c *Coordinator) statuses() []ipc.SourceStatus {
	snaps := c.Sessions()
	out := make([]ipc.SourceStatus, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, c.describe(snap))
	}
	return out
}

func failure(err error) ipc.Response {
	return ipc.Response{OK: false, Error: err.Error()}
}
