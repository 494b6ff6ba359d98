package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Freedesktop urgency levels carried in the "urgency" hint.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

// desktopNotify sends a freedesktop notification over DBus via busctl and
// returns the notification ID assigned by the server.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int, urgency byte) (uint32, error) {
	out, err := busctl(ctx, "Notify",
		"susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"",
		summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(int(urgency)),
		strconv.Itoa(timeoutMS),
	)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

func busctl(ctx context.Context, method string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyService, notifyPath, notifyInterface, method}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("busctl %s failed: %w", method, err)
		}
		return "", fmt.Errorf("busctl %s failed: %w (%s)", method, err, trimmed)
	}
	return trimmed, nil
}
