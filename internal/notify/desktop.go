package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/joescharf/pomo/internal/models"
)

const (
	fdoNotifications     = "org.freedesktop.Notifications"
	fdoNotificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")
)

// DesktopNotifier posts freedesktop notifications over the D-Bus session bus.
type DesktopNotifier struct {
	appName string

	once    sync.Once
	conn    *dbus.Conn
	connErr error
}

// NewDesktopNotifier returns a notifier that identifies itself as appName.
func NewDesktopNotifier(appName string) *DesktopNotifier {
	return &DesktopNotifier{appName: appName}
}

func (d *DesktopNotifier) bus() (*dbus.Conn, error) {
	d.once.Do(func() {
		d.conn, d.connErr = dbus.SessionBus()
	})
	return d.conn, d.connErr
}

// Permission is granted when a notification server owns its bus name.
func (d *DesktopNotifier) Permission() Permission {
	conn, err := d.bus()
	if err != nil {
		return PermissionUnsupported
	}
	var owned bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, fdoNotifications).Store(&owned); err != nil || !owned {
		return PermissionUnsupported
	}
	return PermissionGranted
}

func (d *DesktopNotifier) Show(ctx context.Context, n models.Notification) error {
	conn, err := d.bus()
	if err != nil {
		return fmt.Errorf("session bus: %w", err)
	}
	hints := map[string]dbus.Variant{
		"category": dbus.MakeVariant("x-pomo." + string(n.Kind)),
	}
	call := conn.Object(fdoNotifications, fdoNotificationsPath).CallWithContext(ctx,
		fdoNotifications+".Notify", 0,
		d.appName, uint32(0), "", n.Title, n.Body, []string{}, hints, int32(-1))
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}
