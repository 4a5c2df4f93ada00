package ssh

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// ForwardURL starts a tunnel to the host of rawURL and returns the URL
// rewritten to point at the local end. Callers keep OriginHost(rawURL)
// for the Host header and TLS server name.
func ForwardURL(ctx context.Context, t *Tunnel, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	local, err := t.Start(ctx)
	if err != nil {
		return "", err
	}
	u.Host = local.String()
	return u.String(), nil
}

// RemoteAddr returns host:port for rawURL, filling in the scheme's
// default port.
func RemoteAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// OriginHost returns the host[:port] of rawURL as written.
func OriginHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host, nil
}
