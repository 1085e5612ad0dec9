package transport

import (
	"fmt"
	"net"
)

// DefaultIPPrefix is the first three octets of the /24 every node's
// address is carved from when no config override is supplied.
const DefaultIPPrefix = "10.0.0"

// DefaultPortBase is added to a node id to get its UDP port.
const DefaultPortBase = 5000

// AddressBook maps node ids to the UDP addresses the original
// node_id_to_ip/node_id_to_port helpers computed, with the prefix and
// port base made configurable instead of hardcoded.
type AddressBook struct {
	ipPrefix string
	portBase int
}

// NewAddressBook builds an AddressBook. An empty ipPrefix or zero
// portBase falls back to the package defaults.
func NewAddressBook(ipPrefix string, portBase int) AddressBook {
	if ipPrefix == "" {
		ipPrefix = DefaultIPPrefix
	}
	if portBase == 0 {
		portBase = DefaultPortBase
	}
	return AddressBook{ipPrefix: ipPrefix, portBase: portBase}
}

// Port returns the UDP port node nodeID listens on.
func (a AddressBook) Port(nodeID uint8) int {
	return a.portBase + int(nodeID)
}

// IP returns the IPv4 address node nodeID is reachable at: the
// configured /24 prefix with the host octet 10+nodeID.
func (a AddressBook) IP(nodeID uint8) string {
	return fmt.Sprintf("%s.%d", a.ipPrefix, 10+int(nodeID))
}

// UDPAddr resolves the full UDP address of nodeID.
func (a AddressBook) UDPAddr(nodeID uint8) (*net.UDPAddr, error) {
	addr := fmt.Sprintf("%s:%d", a.IP(nodeID), a.Port(nodeID))
	return net.ResolveUDPAddr("udp4", addr)
}
