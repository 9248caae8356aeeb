// Package port checks whether the ov-node service port is free on the host.
//
// The install action asks the operator for a service port. A port that is
// already bound makes the systemd unit fail on every start, which is only
// visible in the journal. The scanner lets the installer warn up front and
// offer the next free port instead:
//   - Binding the port with net.Listen/net.ListenPacket to test availability
//   - Scanning upwards from the requested port to suggest an alternative
package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It uses the operating system's network stack (net.Listen / net.ListenPacket)
// to decide whether a port is free. Asking the OS directly avoids parsing
// /proc/net/* or shelling out to `ss`, whose output differs between
// distributions.
//
// The Scanner is a struct rather than bare functions so that node.Node can
// hold one as a dependency next to its other collaborators.
type Scanner struct {
	// host is the bind address checked. Empty means all interfaces, which is
	// what the application's server binds to.
	host string
}

// NewScanner creates a Scanner checking all interfaces.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host machine.
//
// For TCP, it attempts net.Listen("tcp", ":port"). For UDP, it attempts
// net.ListenPacket("udp", ":port"). If the bind succeeds, the port is
// available and the listener is closed again straight away.
//
// Parameters:
//   - port: the port number to check (1-65535)
//   - protocol: "tcp" or "udp"
//
// Returns false when the port is in use, out of range, or the protocol is
// unknown.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	if port < 1 || port > 65535 {
		return false
	}
	addr := net.JoinHostPort(s.host, fmt.Sprint(port))

	switch protocol {
	case "tcp":
		// An error here is typically "address already in use".
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		_ = listener.Close()
		return true

	case "udp":
		// UDP is connectionless, so ListenPacket returns a PacketConn.
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true

	default:
		return false
	}
}

// FindAvailablePort scans [startPort, endPort] in order and returns the
// first port that is free for protocol.
//
// The scan is sequential so the same host state always yields the same
// suggestion, which keeps the operator's answer predictable across runs.
//
// Parameters:
//   - startPort: first port tried (inclusive)
//   - endPort: last port tried (inclusive)
//   - protocol: "tcp" or "udp"
//
// Returns an error when every port in the range is taken.
func (s *Scanner) FindAvailablePort(startPort, endPort int, protocol string) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port, protocol) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available %s port found in range %d-%d", protocol, startPort, endPort)
}

// Suggest returns port itself when it is free for TCP. Otherwise it
// returns the next free TCP port above it, looking at most 100 ports
// away and never past 65535.
func (s *Scanner) Suggest(port int) (int, error) {
	if s.IsPortAvailable(port, "tcp") {
		return port, nil
	}
	end := port + 100
	if end > 65535 {
		end = 65535
	}
	return s.FindAvailablePort(port+1, end, "tcp")
}
