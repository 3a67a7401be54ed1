package network

import (
	"crypto/tls"
	"fmt"
)

// Some CDNs reject handshakes unless a minimum version is pinned.
var tlsVersions = map[string]uint16{
	"TLS 1.0": tls.VersionTLS10,
	"TLS 1.1": tls.VersionTLS11,
	"TLS 1.2": tls.VersionTLS12,
	"TLS 1.3": tls.VersionTLS13,
}

// TLSVersion maps a version name as returned by tls.VersionName to its constant.
func TLSVersion(name string) (uint16, error) {
	if version, ok := tlsVersions[name]; ok {
		return version, nil
	}
	return 0, fmt.Errorf("unsupported tls version: %s", name)
}
