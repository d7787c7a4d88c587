package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-tundra/internal/messaging"
)

type NatsConfig struct {
	Enabled       bool   `json:"enabled"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	StartTimeout  string `json:"start_timeout"`
	SubjectPrefix string `json:"subject_prefix"`
}

func (n *NatsConfig) validate() error {
	el := errors.NewErrorList()

	el.Add(validateInterval("nats.start_timeout", n.StartTimeout))
	if n.Port < -1 || n.Port > 65535 {
		el.Add(fmt.Errorf("nats: port %d is out of range", n.Port))
	}

	return el.Err()
}

func (n *NatsConfig) subjectPrefix() string {
	if n.SubjectPrefix == "" {
		return messaging.DefaultSubjectPrefix
	}
	return n.SubjectPrefix
}

func (n *NatsConfig) buildNatsServer() (*messaging.NatsServer, error) {
	var opts []messaging.NatsServerOpt
	if d := interval(n.StartTimeout); d > 0 {
		opts = append(opts, messaging.WithStartTimeout(d))
	}
	if n.Name != "" {
		opts = append(opts, messaging.WithServerName(n.Name))
	}
	if n.Host != "" {
		opts = append(opts, messaging.WithHost(n.Host))
	}
	if n.Port != 0 {
		opts = append(opts, messaging.WithPort(n.Port))
	}

	return messaging.NewNatsServer(opts...)
}
