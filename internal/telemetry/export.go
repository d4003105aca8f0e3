// Package telemetry implements the optional report-export feature of
// SPEC_FULL.md §4: after a run finishes, nflows can serve the
// generated report.yaml over HTTP/3 at report_export_addr so an
// external dashboard can fetch it without touching the machine's local
// disk. This is export-only, read-only, and only reachable after the
// mapper loop has stopped — it never participates in scheduling.
// Nothing in §3-§6 requires this; it activates only when
// report_export_addr is configured.
package telemetry

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"time"

	quic "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// SelfSignedTLSConfig builds an in-memory self-signed TLS config for
// the given hostnames, for environments with no CA-issued certificate
// available (development and CI).
func SelfSignedTLSConfig(hosts []string, validFor time.Duration) (*tls.Config, error) {
	if validFor <= 0 {
		validFor = 24 * time.Hour
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS13, NextProtos: []string{"h3"}}, nil
}

// Server serves one report's bytes to any HTTP/3 client that connects,
// until Close is called. It holds the report in memory rather than
// re-reading the file per request: the run has already finished, so
// the report is immutable for the server's lifetime.
type Server struct {
	server   *http3.Server
	listener net.PacketConn
}

// ServeReport starts a Server bound to addr, returning the finished
// report body (already-written bytes, not a path, since by the time
// this is called the orchestrator has just produced it in memory) to
// any client that connects. A nil tlsCfg is rejected: HTTP/3 requires
// TLS, and generating one silently here would hide a misconfiguration.
func ServeReport(addr string, tlsCfg *tls.Config, report []byte) (*Server, error) {
	if tlsCfg == nil {
		return nil, fmt.Errorf("telemetry: ServeReport requires a TLS config")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(report)
	})

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot bind report server: %w", err)
	}

	srv := &http3.Server{TLSConfig: tlsCfg, Handler: mux}
	s := &Server{server: srv, listener: pc}

	go func() {
		_ = srv.Serve(pc)
	}()

	return s, nil
}

// Addr returns the server's bound local address.
func (s *Server) Addr() string {
	return s.listener.LocalAddr().String()
}

// Close shuts the server down.
func (s *Server) Close() error {
	_ = s.server.Close()
	return s.listener.Close()
}

// FetchReport retrieves a report from a running Server over HTTP/3,
// used by dashboards (and this package's own tests) instead of
// reading the report off the machine's local disk.
func FetchReport(ctx context.Context, addr string, tlsCfg *tls.Config) ([]byte, error) {
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{"h3"}}
	}

	client := &http.Client{
		Transport: &http3.Transport{
			TLSClientConfig: tlsCfg,
			QUICConfig:      &quic.Config{MaxIdleTimeout: 10 * time.Second},
		},
		Timeout: 10 * time.Second,
	}
	defer func() {
		if tr, ok := client.Transport.(*http3.Transport); ok {
			_ = tr.Close()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+addr+"/report", nil)
	if err != nil {
		return nil, fmt.Errorf("cannot build fetch request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("report fetch rejected: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read fetched report: %w", err)
	}
	return body, nil
}
