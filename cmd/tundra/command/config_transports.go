package command

import (
	"crypto/tls"
	"fmt"
	"slices"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-tundra/internal/transport"
	"github.com/pixil98/go-tundra/internal/transport/pipe"
	"github.com/pixil98/go-tundra/internal/transport/quic"
	"github.com/pixil98/go-tundra/internal/transport/tcp"
	"github.com/pixil98/go-tundra/internal/transport/websocket"
)

var transportNames = []string{tcp.Name, quic.Name, websocket.Name, pipe.Name}

func knownTransport(name string) bool {
	return slices.Contains(transportNames, name)
}

type TransportsConfig struct {
	Default   string          `json:"default"`
	Quic      QuicConfig      `json:"quic"`
	Websocket WebsocketConfig `json:"websocket"`
}

type QuicConfig struct {
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	KeepAlive string `json:"keep_alive"`
}

type WebsocketConfig struct {
	Path string `json:"path"`
}

func (c *TransportsConfig) validate() error {
	el := errors.NewErrorList()

	if c.Default != "" && !knownTransport(c.Default) {
		el.Add(fmt.Errorf("transports: unknown default %q", c.Default))
	}
	if (c.Quic.CertFile == "") != (c.Quic.KeyFile == "") {
		el.Add(fmt.Errorf("transports.quic: cert_file and key_file must be set together"))
	}
	el.Add(validateInterval("transports.quic.keep_alive", c.Quic.KeepAlive))

	return el.Err()
}

func (c *TransportsConfig) defaultName() string {
	if c.Default == "" {
		return tcp.Name
	}
	return c.Default
}

func (c *TransportsConfig) BuildTransportSet() (transport.Set, error) {
	var quicOpts []quic.Opt
	if c.Quic.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.Quic.CertFile, c.Quic.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading quic certificate: %w", err)
		}
		quicOpts = append(quicOpts, quic.WithServerTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{quic.NextProtocol},
			MinVersion:   tls.VersionTLS13,
		}))
	}
	if d := interval(c.Quic.KeepAlive); d > 0 {
		quicOpts = append(quicOpts, quic.WithKeepAlive(d))
	}

	var wsOpts []websocket.Opt
	if c.Websocket.Path != "" {
		wsOpts = append(wsOpts, websocket.WithPath(c.Websocket.Path))
	}

	return transport.NewSet(
		tcp.New(),
		quic.New(quicOpts...),
		websocket.New(wsOpts...),
		pipe.New(),
	), nil
}

