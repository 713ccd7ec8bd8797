package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"darkroom/internal/logging"
)

// removableMonitor listens for udev netlink events so attachment of
// cards and USB disks shows up in the daemon log with the device name.
// The operator still points an import at the mounted path; the monitor
// is informational.
type removableMonitor struct {
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newRemovableMonitor(logger *slog.Logger) *removableMonitor {
	return &removableMonitor{
		logger: logging.WithComponent(logger, "removable-monitor"),
	}
}

// Start begins listening for block-device attachment events. A failed
// netlink connection is non-fatal; the daemon works without it.
func (m *removableMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable, removable media attachment will not be logged",
			logging.Error(err),
		)
		return
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)
	m.logger.Info("removable media monitor started")
}

// Stop shuts the monitor down.
func (m *removableMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

func (m *removableMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, blockDeviceMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("removable media monitor error", logging.Error(err))
		}
	}
}

// blockDeviceMatcher matches add/remove events for block devices with a
// mountable filesystem.
func blockDeviceMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":   "block",
			"ID_FS_USAGE": "filesystem",
		},
	})
	return rules
}

func (m *removableMonitor) handleEvent(uevent netlink.UEvent) {
	device := deviceName(uevent)
	if device == "" {
		return
	}
	label := uevent.Env["ID_FS_LABEL"]

	switch uevent.Action {
	case "add":
		m.logger.Info("removable media attached",
			logging.String("device", device),
			logging.String("label", label),
		)
	case "remove":
		m.logger.Info("removable media detached",
			logging.String("device", device),
			logging.String("label", label),
		)
	}
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
