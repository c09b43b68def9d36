package contract

// Unknown replaces string fields the core did not report.
const Unknown = "unknown"

// InterfaceConfig describes the virtual interface handed to the platform.
type InterfaceConfig struct {
	Name                string   `json:"name" yaml:"name,omitempty"`
	LocalAddress        string   `json:"local-address" yaml:"local-address,omitempty"`
	Routes              []string `json:"routes" yaml:"routes,omitempty"`
	DNSServers          []string `json:"dns-servers" yaml:"dns-servers,omitempty"`
	MTU                 int      `json:"mtu" yaml:"mtu,omitempty"`
	AllowedApplications []string `json:"allowed-applications,omitempty" yaml:"allowed-applications,omitempty"`
}

// Clone returns a deep copy.
func (c InterfaceConfig) Clone() InterfaceConfig {
	c.Routes = append([]string(nil), c.Routes...)
	c.DNSServers = append([]string(nil), c.DNSServers...)
	c.AllowedApplications = append([]string(nil), c.AllowedApplications...)
	return c
}

// TunnelParams is what the native core needs to attach to an established interface.
type TunnelParams struct {
	Name            string
	FD              int
	Addresses       []string
	DNS             []string
	MTU             int
	Stack           string
	IncludePackages []string
}

type PermissionResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateRunning  SessionState = "running"
	StateStopping SessionState = "stopping"
	StateError    SessionState = "error"
)

type StatusSnapshot struct {
	Status  string   `json:"status"`
	Config  string   `json:"config"`
	Version string   `json:"version"`
	Missing []string `json:"missing,omitempty"`
}

type StatsSnapshot struct {
	InterfaceName string   `json:"interface"`
	Active        bool     `json:"active"`
	PacketsIn     uint64   `json:"packetsIn"`
	PacketsOut    uint64   `json:"packetsOut"`
	BytesIn       uint64   `json:"bytesIn"`
	BytesOut      uint64   `json:"bytesOut"`
	UptimeSeconds uint64   `json:"uptime"`
	Missing       []string `json:"missing,omitempty"`
}

// NativeCore is the external proxy core. Implementations must tolerate StopTunnel
// without a prior successful start.
type NativeCore interface {
	CreateTunnel(params TunnelParams) error
	StartTunnel() error
	StopTunnel() error
	ReadPacket(buf []byte) (int, error)
	WritePacket(buf []byte) (int, error)
	GetStatus() string
	GetStats() string
	ResetStats() error
	LogMessage(level, message string)
}

// Platform is the OS side of the VPN: consent and interface construction.
type Platform interface {
	Prepared() (bool, error)
	RequestConsent() error
	Establish(cfg InterfaceConfig) (fd int, err error)
	Close(fd int) error
}
