package telemetry

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelfSignedTLSConfigProducesUsableCertificate(t *testing.T) {
	tlsCfg, err := SelfSignedTLSConfig([]string{"127.0.0.1", "localhost"}, time.Hour)
	require.NoError(t, err)
	require.Len(t, tlsCfg.Certificates, 1)
	require.Equal(t, []string{"h3"}, tlsCfg.NextProtos)
}

func TestServeReportRejectsNilTLSConfig(t *testing.T) {
	_, err := ServeReport("127.0.0.1:0", nil, []byte("user: {}\n"))
	require.Error(t, err)
}

func TestServeReportServesReportOverHTTP3(t *testing.T) {
	tlsCfg, err := SelfSignedTLSConfig([]string{"127.0.0.1"}, time.Hour)
	require.NoError(t, err)

	report := []byte("user:\n  flops_per_cycle: 32\n")
	srv, err := ServeReport("127.0.0.1:0", tlsCfg, report)
	require.NoError(t, err)
	defer srv.Close()

	clientTLS := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"h3"}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := FetchReport(ctx, srv.Addr(), clientTLS)
	require.NoError(t, err)
	require.Contains(t, string(body), "flops_per_cycle")
}

func TestFetchReportFailsWhenNothingListening(t *testing.T) {
	clientTLS := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"h3"}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := FetchReport(ctx, "127.0.0.1:1", clientTLS)
	require.Error(t, err)
}
