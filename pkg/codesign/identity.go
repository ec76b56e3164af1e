package codesign

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// LoadCertificates reads the signing certificates available for code signing.
// The data is either PKCS#12 or one or more PEM encoded certificates. Only the
// leaf certificate of a PKCS#12 archive is returned.
func LoadCertificates(data []byte, password string) ([]*x509.Certificate, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		return parsePEMCertificates(data)
	}

	_, cert, _, err := gop12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}

// LoadCertificateFiles reads certificates from each of the given files
func LoadCertificateFiles(paths []string, password string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate %s: %w", path, err)
		}
		loaded, err := LoadCertificates(data, password)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate %s: %w", path, err)
		}
		certs = append(certs, loaded...)
	}
	return certs, nil
}

func parsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no PEM certificates found")
	}
	return certs, nil
}
