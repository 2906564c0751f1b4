package notify

import (
	"context"

	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/output"
)

// ConsoleNotifier prints notifications to the terminal.
type ConsoleNotifier struct {
	ui *output.UI
}

func NewConsoleNotifier(ui *output.UI) *ConsoleNotifier {
	return &ConsoleNotifier{ui: ui}
}

func (c *ConsoleNotifier) Permission() Permission {
	if c.ui == nil || c.ui.Out == nil {
		return PermissionUnsupported
	}
	return PermissionGranted
}

func (c *ConsoleNotifier) Show(_ context.Context, n models.Notification) error {
	c.ui.Notice(n.Title, n.Body)
	return nil
}

// New returns the notifier for a configured backend name: "desktop",
// "console" or "none". A desktop backend with no notification server falls
// back to the console.
func New(backend string, ui *output.UI) Notifier {
	switch backend {
	case "none":
		return NoneNotifier{}
	case "console":
		return NewConsoleNotifier(ui)
	default:
		d := NewDesktopNotifier("pomo")
		if d.Permission() == PermissionGranted {
			return d
		}
		return NewConsoleNotifier(ui)
	}
}
