// ABOUTME: mDNS advertisement and browsing for playout instances
// ABOUTME: Remote clients find players by the _playout._tcp service type
package discovery

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/internal/logger"
	"github.com/Resonate-Protocol/resonate-playout/internal/version"
)

// ServiceType is the DNS-SD service players advertise
const ServiceType = "_playout._tcp"

var errNoInterface = errors.NewStd("no usable IPv4 interface")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // websocket path, "/playout" when empty
	Backend     string // sink name reported in TXT records
	Logger      *slog.Logger
}

// Manager advertises one player instance
type Manager struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	server *mdns.Server
}

// Instance describes a discovered player
type Instance struct {
	Name    string
	Host    string
	Port    int
	Path    string
	Version string
	Backend string
}

// Addr is host:port for dialing
func (i Instance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/playout"
	}
	return &Manager{
		config: config,
		logger: logger.OrDiscard(config.Logger).With("component", "discovery"),
	}
}

// txtRecords builds the key=value pairs published with the service
func (m *Manager) txtRecords() []string {
	txt := []string{
		"path=" + m.config.Path,
		"version=" + version.Version,
	}
	if m.config.Backend != "" {
		txt = append(txt, "backend="+m.config.Backend)
	}
	return txt
}

// Advertise publishes this player until Stop
func (m *Manager) Advertise() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return nil
	}

	ips, err := getLocalIPs()
	if err != nil {
		return errors.New(err).
			Component("discovery").
			Category(errors.CategoryNetwork).
			Build()
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return errors.New(err).
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Context("service_name", m.config.ServiceName).
			Build()
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return errors.New(err).
			Component("discovery").
			Category(errors.CategoryNetwork).
			Build()
	}
	m.server = server

	m.logger.Info("advertising mDNS service",
		"name", m.config.ServiceName,
		"port", m.config.Port,
		"type", ServiceType)
	return nil
}

// Stop withdraws the advertisement
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown()
	m.server = nil
	return err
}

// Browse queries the local network for players until timeout or ctx ends
func Browse(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 16)

	var (
		instances []Instance
		seen      = map[string]bool{}
		done      = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			inst, ok := instanceFromEntry(entry)
			if !ok || seen[inst.Name] {
				continue
			}
			seen[inst.Name] = true
			instances = append(instances, inst)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done

	if err != nil {
		return instances, errors.New(err).
			Component("discovery").
			Category(errors.CategoryNetwork).
			Build()
	}
	return instances, nil
}

// instanceFromEntry keeps IPv4 answers for our service type
func instanceFromEntry(entry *mdns.ServiceEntry) (Instance, bool) {
	if entry == nil || entry.AddrV4 == nil || !strings.Contains(entry.Name, ServiceType) {
		return Instance{}, false
	}
	txt := parseTXT(entry.InfoFields)
	inst := Instance{
		Name:    strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host:    entry.AddrV4.String(),
		Port:    entry.Port,
		Path:    txt["path"],
		Version: txt["version"],
		Backend: txt["backend"],
	}
	if inst.Path == "" {
		inst.Path = "/playout"
	}
	return inst, true
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// getLocalIPs returns the IPv4 addresses of up, non-loopback interfaces
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	if len(ips) == 0 {
		return nil, errNoInterface
	}
	return ips, nil
}
