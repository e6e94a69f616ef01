// Package sysproxy reads and writes the operating system's proxy
// auto-configuration URL.
//
// PAC is used as the configuration method because declarative proxy
// settings impose strict length limits on exception lists (the
// ProxyOverride registry key on Windows caps out around 2000 characters),
// while PAC files can typically be up to 1MB in size.
package sysproxy

// Snapshot captures the OS proxy configuration relevant to us: the static
// proxy server ("host:port"), the semicolon-separated bypass list, and the
// auto-config URL. Fields the platform does not expose are left empty.
type Snapshot struct {
	ProxyServer   string
	ProxyBypass   string
	AutoConfigURL string
}

// Manager is the contract between the core and the platform proxy APIs.
// Implementations must issue the platform's "settings changed"
// notification after a successful write so live applications pick up the
// change without a restart.
type Manager interface {
	// ReadAutoConfigURL returns the current auto-config URL, or "" if the
	// OS has none set.
	ReadAutoConfigURL() (string, error)

	// SetAutoConfigURL points the OS at the given PAC URL.
	SetAutoConfigURL(url string) error

	// ReadSnapshot returns the full proxy configuration. Used once at
	// first run to synthesize the initial configuration document.
	ReadSnapshot() (Snapshot, error)
}

type systemManager struct{}

// NewManager returns the Manager for the host platform.
func NewManager() Manager {
	return systemManager{}
}

func (systemManager) ReadAutoConfigURL() (string, error) {
	return readAutoConfigURL()
}

func (systemManager) SetAutoConfigURL(url string) error {
	return setAutoConfigURL(url)
}

func (systemManager) ReadSnapshot() (Snapshot, error) {
	return readSnapshot()
}
