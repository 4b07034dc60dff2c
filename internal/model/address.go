package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port bulbs listen on when none is given.
const DefaultPort = 80

// Address identifies one bulb endpoint. Two addresses are the same
// device iff they compare equal; the zero value is invalid.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseAddress parses "host", "host:port", an IP, or "[v6]:port" into
// an Address. A missing port defaults to DefaultPort.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty device address")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port part, treat the whole string as the host.
		host = strings.Trim(s, "[]")
		if strings.Contains(host, " ") {
			return Address{}, fmt.Errorf("invalid device address %q", s)
		}
		return Address{Host: host, Port: DefaultPort}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("invalid port in device address %q", s)
	}
	return Address{Host: host, Port: port}, nil
}

// String renders the address as host:port, omitting a default port.
func (a Address) String() string {
	if a.Port == DefaultPort || a.Port == 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// HostPort always includes the port, for dialing.
func (a Address) HostPort() string {
	port := a.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Host == ""
}

// Less orders addresses for deterministic display, host first then port.
func (a Address) Less(b Address) bool {
	if a.Host != b.Host {
		return a.Host < b.Host
	}
	return a.Port < b.Port
}
