// Package hypr wraps the hyprctl notification dispatchers.
package hypr

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultColor is used when Notify gets no color.
const DefaultColor = "rgb(89b4fa)"

// Notify sends a Hyprland notification payload.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = DefaultColor
	}
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(icon),
		strconv.Itoa(timeoutMS),
		color,
		text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}

// Available reports whether hyprctl is on PATH.
func Available() bool {
	_, err := exec.LookPath("hyprctl")
	return err == nil
}

func runHyprctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return nil
}
