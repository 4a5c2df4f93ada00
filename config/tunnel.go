package config

import (
	"net"
	"strconv"
)

// TunnelConfig holds SSH tunnel settings. When enabled, the API base URL
// and the postgres archive are reached through a local port forward.
type TunnelConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	User          string `json:"user,omitempty"`
	KeyPath       string `json:"key_path,omitempty"`
	KeyPassphrase string `json:"key_passphrase,omitempty"`

	// KnownHosts is a known_hosts file used to verify the bastion. Empty
	// means the host key is not checked.
	KnownHosts string `json:"known_hosts,omitempty"`
}

// Addr returns host:port of the bastion.
func (t TunnelConfig) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}
