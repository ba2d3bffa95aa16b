package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/measurestack/measurestack/agent/internal/config"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringWithin is the remaining lifetime below which a certificate is
// reported as expiring.
const expiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate served by a source endpoint.
type CertStatus struct {
	SourceID string
	Endpoint string
	Status   string
	DaysLeft int
	Issuer   string
	NotAfter time.Time
	Err      error
}

// Checker dials TLS endpoints. Its fields are replaced in tests.
type Checker struct {
	now     func() time.Time
	timeout time.Duration
	roots   *tls.Config
}

// NewChecker returns a Checker with a 10-second dial timeout.
func NewChecker() *Checker {
	return &Checker{now: time.Now, timeout: 10 * time.Second}
}

// Check dials the source endpoint and returns the status of its leaf
// certificate. Returns nil for non-HTTPS endpoints.
func (c *Checker) Check(ctx context.Context, src config.Source) *CertStatus {
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{SourceID: src.ID, Endpoint: src.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL, use the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tlsCfg := &tls.Config{InsecureSkipVerify: src.TLS.InsecureSkipVerify} //nolint:gosec
	if c.roots != nil {
		tlsCfg = c.roots.Clone()
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		cs.Err = err
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(c.now())

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= expiringWithin:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}
