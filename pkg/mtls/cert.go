// Package mtls builds TLS configurations for the backend client and the
// local harness API.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// Client authentication modes for the local API
const (
	ClientAuthRequire = "require"
	ClientAuthRequest = "request"
	ClientAuthNone    = "none"
)

// LoadClientTLSConfig creates a TLS configuration that presents a client
// certificate to the Submission Backend
func LoadClientTLSConfig(caCertPath, clientCertPath, clientKeyPath, serverName string) (*tls.Config, error) {
	pool, err := loadCertPool(caCertPath)
	if err != nil {
		return nil, err
	}

	clientCert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{clientCert},
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadServerTLSConfig creates a TLS configuration for the local API. The
// handshake only verifies certificates that are offered; RequireClientCert
// middleware enforces presence per route when clientAuth is "require".
func LoadServerTLSConfig(caCertPath, serverCertPath, serverKeyPath, clientAuth string) (*tls.Config, error) {
	mode, err := ParseClientAuth(clientAuth)
	if err != nil {
		return nil, err
	}

	pool, err := loadCertPool(caCertPath)
	if err != nil {
		return nil, err
	}

	serverCert, err := tls.LoadX509KeyPair(serverCertPath, serverKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    pool,
		ClientAuth:   mode,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ParseClientAuth maps a configured mode to the handshake policy
func ParseClientAuth(mode string) (tls.ClientAuthType, error) {
	switch strings.ToLower(mode) {
	case "", ClientAuthRequire, ClientAuthRequest:
		return tls.VerifyClientCertIfGiven, nil
	case ClientAuthNone:
		return tls.NoClientCert, nil
	}
	return tls.NoClientCert, fmt.Errorf("unknown client auth mode %q", mode)
}

func loadCertPool(caCertPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}
	return pool, nil
}
