package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

const (
	Name         = "quic"
	NextProtocol = "tundra"
)

// Transport carries reliable frames on a single QUIC stream per connection
// and unreliable frames as QUIC datagrams.
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	config    *quic.Config
}

var _ transport.Transport = (*Transport)(nil)

type Opt func(*Transport)

// WithServerTLS sets the listener certificate. Without it a self-signed
// certificate is generated on Listen.
func WithServerTLS(c *tls.Config) Opt {
	return func(t *Transport) {
		t.serverTLS = c
	}
}

func WithClientTLS(c *tls.Config) Opt {
	return func(t *Transport) {
		t.clientTLS = c
	}
}

func WithKeepAlive(d time.Duration) Opt {
	return func(t *Transport) {
		t.config.KeepAlivePeriod = d
	}
}

func New(opts ...Opt) *Transport {
	t := &Transport{
		clientTLS: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{NextProtocol},
		},
		config: &quic.Config{
			EnableDatagrams: true,
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	qc, err := quic.DialAddr(ctx, addr, t.clientTLS, t.config)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, fmt.Errorf("opening stream to %s: %w", addr, err)
	}
	// The peer only learns about the stream once something is written on it.
	if err := protocol.WriteFrame(stream, protocol.MsgStreamOpen, nil); err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, fmt.Errorf("opening stream to %s: %w", addr, err)
	}
	return newConn(qc, stream), nil
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	tlsConf := t.serverTLS
	if tlsConf == nil {
		var err error
		tlsConf, err = SelfSignedTLS()
		if err != nil {
			return nil, err
		}
		slog.Warn("no tls certificate configured for quic transport, using a self-signed one")
	}
	l, err := quic.ListenAddr(addr, tlsConf, t.config)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &listener{l: l}, nil
}

type listener struct {
	l *quic.Listener
}

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	qc, err := l.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, fmt.Errorf("accepting stream from %s: %w", qc.RemoteAddr(), err)
	}
	return newConn(qc, stream), nil
}

func (l *listener) Addr() string { return l.l.Addr().String() }

func (l *listener) Close() error { return l.l.Close() }

// conn sends reliable frames on the stream and unreliable frames as
// datagrams. Closing the stream closes our write direction only.
type conn struct {
	*transport.StreamConn
	qc quic.Connection
}

func newConn(qc quic.Connection, stream quic.Stream) *conn {
	c := &conn{qc: qc}
	c.StreamConn = transport.NewStreamConn(stream, func() error {
		return qc.CloseWithError(0, "")
	}, qc.RemoteAddr().String(), transport.WithCloseWrite(stream.Close))
	go c.datagramLoop()
	return c
}

func (c *conn) Send(f transport.Frame) error {
	if f.Reliable {
		return c.StreamConn.Send(f)
	}
	if !c.IsWriteOpen() {
		return transport.ErrWriteClosed
	}
	buf, err := protocol.AppendFrame(nil, f.ID, f.Data)
	if err != nil {
		return err
	}
	if err := c.qc.SendDatagram(buf); err != nil {
		// Datagrams may be too large or unsupported by the peer.
		return c.StreamConn.Send(f)
	}
	return nil
}

func (c *conn) datagramLoop() {
	for {
		data, err := c.qc.ReceiveDatagram(c.qc.Context())
		if err != nil {
			return
		}
		id, payload, err := protocol.ParseFrame(data)
		if err != nil {
			slog.Debug("dropping malformed datagram", "remote", c.RemoteAddr(), "error", err)
			continue
		}
		if !c.Deliver(transport.Frame{ID: id, Data: payload}) {
			return
		}
	}
}

// SelfSignedTLS returns a server configuration with a fresh self-signed
// certificate.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "tundra"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{NextProtocol},
	}, nil
}
