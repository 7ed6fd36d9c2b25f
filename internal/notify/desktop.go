package notify

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	notifIface  = "org.freedesktop.Notifications"
	notifPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifMember = "org.freedesktop.Notifications.Notify"
)

// DesktopChannel speaks org.freedesktop.Notifications on the session
// bus. Each Display replaces the previous notification's subscriptions:
// ActionInvoked fires OnActivated, NotificationClosed fires OnTimedOut.
// Signals for superseded notification IDs are dropped.
type DesktopChannel struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	log     zerolog.Logger

	mu       sync.Mutex
	activeID uint32
	active   Events

	done chan struct{}
}

func NewDesktop(appName string, log zerolog.Logger) (*DesktopChannel, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notifPath),
		dbus.WithMatchInterface(notifIface),
	); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &DesktopChannel{
		conn:    conn,
		obj:     conn.Object(notifIface, notifPath),
		appName: appName,
		log:     log,
		done:    make(chan struct{}),
	}

	sigs := make(chan *dbus.Signal, 16)
	conn.Signal(sigs)
	go c.dispatch(sigs)
	return c, nil
}

func (c *DesktopChannel) Display(ctx context.Context, n Notification, ev Events) error {
	var id uint32
	call := c.obj.CallWithContext(ctx, notifMember, 0,
		c.appName,          // app_name
		uint32(0),          // replaces_id
		"",                 // app_icon
		n.Title,            // summary
		n.Body,             // body
		[]string{"default", "Open"},
		map[string]dbus.Variant{},
		int32(-1), // server-default expiry
	)
	if err := call.Store(&id); err != nil {
		return err
	}

	// Replace the previous subscription; its notification may still be
	// on screen but its events no longer reach anyone.
	c.mu.Lock()
	c.activeID = id
	c.active = ev
	c.mu.Unlock()

	c.log.Debug().Uint32("id", id).Str("title", n.Title).Msg("desktop notification displayed")
	return nil
}

func (c *DesktopChannel) dispatch(sigs <-chan *dbus.Signal) {
	for {
		select {
		case <-c.done:
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			if sig == nil || len(sig.Body) == 0 {
				continue
			}
			id, ok := sig.Body[0].(uint32)
			if !ok {
				continue
			}
			switch sig.Name {
			case notifIface + ".ActionInvoked":
				if ev, ok := c.take(id); ok && ev.OnActivated != nil {
					ev.OnActivated()
				}
			case notifIface + ".NotificationClosed":
				if ev, ok := c.take(id); ok && ev.OnTimedOut != nil {
					ev.OnTimedOut()
				}
			}
		}
	}
}

// take consumes the active subscription if id matches it. After a
// consume the channel holds no subscription, so the NotificationClosed
// that trails an ActionInvoked is ignored.
func (c *DesktopChannel) take(id uint32) (Events, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == 0 || id != c.activeID {
		return Events{}, false
	}
	ev := c.active
	c.activeID = 0
	c.active = Events{}
	return ev, true
}

func (c *DesktopChannel) Close() error {
	close(c.done)
	return c.conn.Close()
}
