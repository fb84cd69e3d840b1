// Package tlsclient provides an http.RoundTripper whose TLS handshake mimics
// a desktop browser, so origin bot filters see a familiar ClientHello.
package tlsclient

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const (
	protoH2    = "h2"
	protoHTTP1 = "http/1.1"
)

// Config controls the spoofed handshake.
type Config struct {
	// Fingerprint is one of chrome, firefox, safari, edge. Empty means chrome.
	Fingerprint      string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	// RootCAs overrides the system pool, mainly for tests.
	RootCAs *x509.CertPool
}

// Transport routes https requests over a uTLS connection and picks HTTP/2 or
// HTTP/1.1 from the negotiated ALPN protocol. Plain http uses a stock transport.
type Transport struct {
	hello   utls.ClientHelloID
	cfg     Config
	dialer  *net.Dialer
	plain   *http.Transport
	h1      *http.Transport
	h2      *http2.Transport
	mu      sync.Mutex
	h2Conns map[string]*http2.ClientConn
	protos  map[string]string
}

// HelloFor maps a fingerprint name onto a uTLS ClientHello preset.
func HelloFor(name string) (utls.ClientHelloID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chrome":
		return utls.HelloChrome_Auto, nil
	case "firefox":
		return utls.HelloFirefox_Auto, nil
	case "safari":
		return utls.HelloSafari_Auto, nil
	case "edge":
		return utls.HelloEdge_Auto, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("unknown tls fingerprint %q", name)
	}
}

// New builds a Transport.
func New(cfg Config) (*Transport, error) {
	hello, err := HelloFor(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	t := &Transport{
		hello: hello,
		cfg:   cfg,
		dialer: &net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		},
		h2:      &http2.Transport{},
		h2Conns: make(map[string]*http2.ClientConn),
		protos:  make(map[string]string),
	}
	t.plain = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           t.dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dialTLS(ctx, network, addr, []string{protoHTTP1})
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}
	addr := hostPort(req.URL.Host)
	if t.protocol(addr) == protoHTTP1 {
		return t.h1.RoundTrip(req)
	}
	cc, err := t.h2Conn(req.Context(), addr)
	if err != nil {
		return nil, err
	}
	if cc == nil {
		return t.h1.RoundTrip(req)
	}
	resp, err := cc.RoundTrip(req)
	if err != nil {
		t.dropH2(addr, cc)
		return nil, fmt.Errorf("h2 round trip: %w", err)
	}
	return resp, nil
}

// CloseIdleConnections releases pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.plain.CloseIdleConnections()
	t.h1.CloseIdleConnections()
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, cc := range t.h2Conns {
		_ = cc.Close()
		delete(t.h2Conns, addr)
	}
}

// h2Conn returns a reusable HTTP/2 connection, or nil when the origin only
// speaks HTTP/1.1.
func (t *Transport) h2Conn(ctx context.Context, addr string) (*http2.ClientConn, error) {
	t.mu.Lock()
	if cc, ok := t.h2Conns[addr]; ok && cc.CanTakeNewRequest() {
		t.mu.Unlock()
		return cc, nil
	}
	t.mu.Unlock()

	conn, err := t.dialTLS(ctx, "tcp", addr, []string{protoH2, protoHTTP1})
	if err != nil {
		return nil, err
	}
	if conn.ConnectionState().NegotiatedProtocol != protoH2 {
		_ = conn.Close()
		t.setProtocol(addr, protoHTTP1)
		return nil, nil
	}
	cc, err := t.h2.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("h2 client conn: %w", err)
	}
	t.mu.Lock()
	t.protos[addr] = protoH2
	t.h2Conns[addr] = cc
	t.mu.Unlock()
	return cc, nil
}

func (t *Transport) dropH2(addr string, cc *http2.ClientConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.h2Conns[addr]; ok && current == cc {
		delete(t.h2Conns, addr)
	}
	_ = cc.Close()
}

func (t *Transport) protocol(addr string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protos[addr]
}

func (t *Transport) setProtocol(addr, proto string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.protos[addr] = proto
}

func (t *Transport) dialTLS(ctx context.Context, network, addr string, alpn []string) (*utls.UConn, error) {
	raw, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("split host port: %w", err)
	}

	spec, err := utls.UTLSIdToSpec(t.hello)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("build client hello: %w", err)
	}
	for _, ext := range spec.Extensions {
		if a, ok := ext.(*utls.ALPNExtension); ok {
			a.AlpnProtocols = append([]string(nil), alpn...)
		}
	}

	conn := utls.UClient(raw, &utls.Config{
		ServerName: host,
		RootCAs:    t.cfg.RootCAs,
		NextProtos: alpn,
	}, utls.HelloCustom)
	if err := conn.ApplyPreset(&spec); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("apply client hello: %w", err)
	}

	hsCtx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake %s: %w", host, err)
	}
	return conn, nil
}

func hostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), "443")
}
