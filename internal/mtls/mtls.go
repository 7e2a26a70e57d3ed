// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mtls provides mTLS and TLS config support for the aquarium's
// network listeners.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	ErrMissingCertOrKey       = errors.New("root ca set without certificate or key")
	ErrNoValidRootCertificate = errors.New("no valid root certificate")
	ErrMissingCertificate     = errors.New("missing certificate")
	ErrMissingKey             = errors.New("missing key")
)

// Files holds the paths to PEM encoded certificate material.
type Files struct {
	RootCA string
	Cert   string
	Key    string
}

// IsZero returns whether no paths are set.
func (f Files) IsZero() bool {
	return f == Files{}
}

// Listen wraps ln in a TLS listener configured from the files. If no
// paths are set, ln is returned unaltered.
func Listen(ln net.Listener, files Files) (net.Listener, error) {
	cfg, err := LoadServerConfig(files)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return ln, nil
	}
	return tls.NewListener(ln, cfg), nil
}

// LoadServerConfig reads the files and returns the server TLS configuration
// described by NewServerConfig.
func LoadServerConfig(files Files) (*tls.Config, error) {
	root, err := readFile("root ca", files.RootCA)
	if err != nil {
		return nil, err
	}
	cert, err := readFile("certificate", files.Cert)
	if err != nil {
		return nil, err
	}
	key, err := readFile("key", files.Key)
	if err != nil {
		return nil, err
	}
	return NewServerConfig(root, cert, key)
}

func readFile(kind, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return b, nil
}

// NewServerConfig returns a TLS configuration for a server. If a root CA
// PEM block is provided clients must present a certificate it signed,
// otherwise the config is for plain TLS. If all parameters are empty, a
// nil config is returned.
func NewServerConfig(rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	return newConfig(true, rootPEM, certPEMBlock, keyPEMBlock)
}

// NewClientConfig returns a TLS configuration for a client of a server
// configured by NewServerConfig.
// If all parameters are empty, a nil config is returned.
func NewClientConfig(rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	return newConfig(false, rootPEM, certPEMBlock, keyPEMBlock)
}

func newConfig(server bool, rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	if len(rootPEM) == 0 && len(certPEMBlock) == 0 && len(keyPEMBlock) == 0 {
		return nil, nil
	}
	cfg := tls.Config{MinVersion: tls.VersionTLS12}
	if len(rootPEM) != 0 {
		if len(certPEMBlock) == 0 || len(keyPEMBlock) == 0 {
			return nil, ErrMissingCertOrKey
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(rootPEM) {
			return nil, ErrNoValidRootCertificate
		}
		if server {
			cfg.ClientCAs = pool
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.RootCAs = pool
		}
	}
	switch {
	case len(certPEMBlock) == 0 && len(keyPEMBlock) == 0:
		if server {
			return nil, ErrMissingCertificate
		}
	case len(certPEMBlock) == 0:
		return nil, ErrMissingCertificate
	case len(keyPEMBlock) == 0:
		return nil, ErrMissingKey
	default:
		cert, err := tls.X509KeyPair(certPEMBlock, keyPEMBlock)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return &cfg, nil
}
