// Package settings holds the server address settings and the PAC URL
// derived from them.
package settings

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 12112
	DefaultPACPath = "/master.pac"
)

// Store holds the HTTP server host, port, and PAC path together with the
// derived master PAC URL. The URL is recomputed under the same critical
// section as its inputs, so a concurrent reader never observes a URL that
// disagrees with the fields it was derived from. The port additionally
// supports lock-free reads.
type Store struct {
	port atomic.Uint32

	mu      sync.RWMutex
	host    string
	pacPath string
	pacURL  string
}

// New returns a Store initialized with the default host, port, and PAC path.
func New() *Store {
	s := &Store{
		host:    DefaultHost,
		pacPath: DefaultPACPath,
	}
	s.port.Store(DefaultPort)
	s.pacURL = fmt.Sprintf("http://%s:%d%s", DefaultHost, DefaultPort, DefaultPACPath)
	return s
}

func (s *Store) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

func (s *Store) Port() uint16 {
	return uint16(s.port.Load())
}

func (s *Store) PACPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pacPath
}

// PACURL returns the current master PAC URL.
func (s *Store) PACURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pacURL
}

// SetHost updates the host and returns the recomputed PAC URL.
func (s *Store) SetHost(host string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host = host
	s.recomputeURL()
	return s.pacURL
}

// SetPort updates the port and returns the recomputed PAC URL.
func (s *Store) SetPort(port uint16) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port.Store(uint32(port))
	s.recomputeURL()
	return s.pacURL
}

// SetPACPath updates the PAC path and returns the recomputed PAC URL.
func (s *Store) SetPACPath(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pacPath = path
	s.recomputeURL()
	return s.pacURL
}

// Addr returns the host:port the HTTP server should bind to.
func (s *Store) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%s:%d", s.host, s.port.Load())
}

// recomputeURL must be called with mu held for writing.
func (s *Store) recomputeURL() {
	s.pacURL = fmt.Sprintf("http://%s:%d%s", s.host, s.port.Load(), s.pacPath)
}
