package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"
)

// LoadCertificate loads TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// CertificateInfo describes a served certificate
type CertificateInfo struct {
	Domain    string
	Subject   string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// ExpiresWithin returns true if the certificate expires in less than d
func (c CertificateInfo) ExpiresWithin(d time.Duration) bool {
	return time.Until(c.NotAfter) < d
}

func newCertificateInfo(domain string, cert *x509.Certificate) CertificateInfo {
	if domain == "" && len(cert.DNSNames) > 0 {
		domain = cert.DNSNames[0]
	}
	return CertificateInfo{
		Domain:    domain,
		Subject:   cert.Subject.CommonName,
		Issuer:    cert.Issuer.CommonName,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DaysLeft:  int(time.Until(cert.NotAfter).Hours() / 24),
		DNSNames:  cert.DNSNames,
	}
}

// ReadCertificateInfo reads the leaf certificate of a PEM file
func ReadCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	info := newCertificateInfo("", cert)
	return &info, nil
}

// RedirectToHTTPS sends plain HTTP requests to the same URL over HTTPS
func RedirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
