package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-tundra/internal/logic"
)

type ServerConfig struct {
	Autostart bool   `json:"autostart"`
	Port      uint16 `json:"port"`
	Protocol  string `json:"protocol"`
	Password  string `json:"password"`
}

func (c *ServerConfig) validate() error {
	el := errors.NewErrorList()

	if c.Protocol != "" && !knownTransport(c.Protocol) {
		el.Add(fmt.Errorf("server: unknown protocol %q", c.Protocol))
	}

	return el.Err()
}

func (c *ServerConfig) logicOpts() []logic.LogicOpt {
	var opts []logic.LogicOpt
	if c.Password != "" {
		opts = append(opts, logic.WithServerPassword(c.Password))
	}
	return opts
}
