//go:build linux

package disc

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"

	"mixpress/internal/logging"
)

// CDROM_DRIVE_STATUS ioctl number.
const cdromDriveStatus = 0x5326

// DriveReady asks the kernel whether the tray is closed with a disc loaded.
// Used to avoid pointless status-tool invocations right after insertion.
func DriveReady(devicePath string) bool {
	fd, err := unix.Open(devicePath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)
	status, err := unix.IoctlRetInt(fd, cdromDriveStatus)
	if err != nil {
		return false
	}
	// CDS_DISC_OK
	return status == 4
}

// Monitor listens for udev media-change events on one optical device and
// signals a wake channel so the media wait loop can poll immediately instead
// of riding out its sleep.
type Monitor struct {
	device string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	wake    chan struct{}
	running bool
}

// NewMonitor builds a monitor for the given device path (for example
// /dev/sr0). Returns nil when no device is configured; a nil monitor is
// inert.
func NewMonitor(device string, logger *slog.Logger) *Monitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		device: device,
		logger: logging.NewComponentLogger(logger, "disc-monitor"),
		wake:   make(chan struct{}, 1),
	}
}

// Wake is the channel pulsed on media-change events.
func (m *Monitor) Wake() <-chan struct{} {
	if m == nil {
		return nil
	}
	return m.wake
}

// Start connects to the udev netlink socket. Connection failure is
// non-fatal: the wait loop still polls on its own schedule.
func (m *Monitor) Start() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("udev socket unavailable, media detection falls back to polling",
			logging.Error(err))
		return
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(m.quit, conn)
	m.logger.Info("media monitor started", logging.String("device", m.device))
}

// Stop closes the netlink socket and stops the loop.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

func (m *Monitor) loop(quit <-chan struct{}, conn *netlink.UEventConn) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, mediaChangeMatcher())

	for {
		select {
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			if deviceName(uevent) != m.device {
				continue
			}
			m.logger.Debug("media change event", logging.String("device", m.device))
			select {
			case m.wake <- struct{}{}:
			default:
			}
		case err := <-errs:
			m.logger.Warn("udev monitor error", logging.Error(err))
		}
	}
}

// mediaChangeMatcher selects optical media insertion events:
// SUBSYSTEM=block, ID_CDROM=1, ID_CDROM_MEDIA=1, ACTION=change|add.
func mediaChangeMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})
	return rules
}

func deviceName(uevent netlink.UEvent) string {
	if name := uevent.Env["DEVNAME"]; name != "" {
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
