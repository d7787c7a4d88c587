package command

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-service"
	"github.com/pixil98/go-tundra/internal/console"
	"github.com/pixil98/go-tundra/internal/listener"
	"golang.org/x/crypto/ssh"
)

type ConsoleConfig struct {
	Stdin       bool             `json:"stdin"`
	Password    string           `json:"password"`
	MaxSessions int              `json:"max_sessions"`
	QueueSize   int              `json:"queue_size"`
	Listeners   []ListenerConfig `json:"listeners"`
}

func (c *ConsoleConfig) validate() error {
	el := errors.NewErrorList()

	if c.MaxSessions < 0 {
		el.Add(fmt.Errorf("console: max_sessions cannot be negative"))
	}
	if c.QueueSize < 0 {
		el.Add(fmt.Errorf("console: queue_size cannot be negative"))
	}
	for i, l := range c.Listeners {
		if err := l.validate(); err != nil {
			el.Add(fmt.Errorf("console listener %d: %w", i, err))
		}
	}

	return el.Err()
}

func (c *ConsoleConfig) BuildConsole(h *console.Handler) *console.Console {
	opts := []console.ConsoleOpt{console.WithPassword(c.Password)}
	if c.QueueSize > 0 {
		opts = append(opts, console.WithQueueSize(c.QueueSize))
	}
	return console.New(h, opts...)
}

func (c *ConsoleConfig) BuildListeners(con *console.Console) (service.WorkerList, error) {
	cm := listener.NewConnectionManager(con, listener.WithMaxSessions(c.MaxSessions))

	listeners := make(service.WorkerList, len(c.Listeners))
	for i, l := range c.Listeners {
		w, err := l.BuildListener(cm)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = w
	}
	return listeners, nil
}

type ListenerType int

const (
	ListenerTypeTelnet ListenerType = iota
	ListenerTypeSSH
)

func (lt *ListenerType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "telnet":
		*lt = ListenerTypeTelnet
	case "ssh":
		*lt = ListenerTypeSSH
	default:
		return fmt.Errorf("unknown listener type: %s", text)
	}
	return nil
}

type ListenerConfig struct {
	Protocol    ListenerType `json:"protocol"`
	Host        string       `json:"host,omitempty"`
	Port        uint16       `json:"port"`
	HostKeyPath string       `json:"host_key_path,omitempty"`
	// Password is checked during the ssh handshake, before the console
	// password prompt.
	Password string `json:"password,omitempty"`
}

func (cl *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if cl.Port == 0 {
		el.Add(fmt.Errorf("port must be set to a positive integer"))
	}
	if cl.Protocol != ListenerTypeSSH && (cl.HostKeyPath != "" || cl.Password != "") {
		el.Add(fmt.Errorf("host_key_path and password only apply to ssh listeners"))
	}

	return el.Err()
}

func (cl *ListenerConfig) BuildListener(cm *listener.ConnectionManager) (service.Worker, error) {
	switch cl.Protocol {
	case ListenerTypeTelnet:
		var opts []listener.TelnetListenerOpt
		if cl.Host != "" {
			opts = append(opts, listener.WithTelnetHost(cl.Host))
		}
		return listener.NewTelnetListener(cl.Port, cm, opts...), nil
	case ListenerTypeSSH:
		hostKey, err := cl.loadOrGenerateHostKey()
		if err != nil {
			return nil, fmt.Errorf("setting up ssh host key: %w", err)
		}
		var opts []listener.SshListenerOpt
		if cl.Host != "" {
			opts = append(opts, listener.WithSshHost(cl.Host))
		}
		if cl.Password != "" {
			opts = append(opts, listener.WithSshPassword(cl.Password))
		}
		return listener.NewSshListener(cl.Port, cm, hostKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown listener type: %v", cl.Protocol)
	}
}

func (cl *ListenerConfig) loadOrGenerateHostKey() (ssh.Signer, error) {
	if cl.HostKeyPath != "" {
		keyBytes, err := os.ReadFile(cl.HostKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading host key %q: %w", cl.HostKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing host key %q: %w", cl.HostKeyPath, err)
		}
		return signer, nil
	}

	slog.Warn("no host_key_path configured for ssh listener, generating ephemeral key", "port", cl.Port)
	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer from ephemeral key: %w", err)
	}
	return signer, nil
}
