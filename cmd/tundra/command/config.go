package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

type Config struct {
	TickInterval string           `json:"tick_interval"`
	SyncInterval string           `json:"sync_interval"`
	Server       ServerConfig     `json:"server"`
	Client       ClientConfig     `json:"client"`
	Transports   TransportsConfig `json:"transports"`
	Console      ConsoleConfig    `json:"console"`
	Storage      StorageConfig    `json:"storage"`
	Nats         NatsConfig       `json:"nats"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(validateInterval("tick_interval", c.TickInterval))
	el.Add(validateInterval("sync_interval", c.SyncInterval))
	el.Add(c.Server.validate())
	el.Add(c.Client.validate())
	el.Add(c.Transports.validate())
	el.Add(c.Console.validate())
	el.Add(c.Storage.validate())
	el.Add(c.Nats.validate())

	if c.Server.Autostart && c.Client.LoginURL != "" {
		el.Add(fmt.Errorf("server.autostart and client.login_url cannot both be set"))
	}
	if c.Storage.StartupScene != "" && c.Storage.Scenes.Path == "" {
		el.Add(fmt.Errorf("storage.startup_scene requires storage.scenes.path"))
	}

	return el.Err()
}

func validateInterval(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// interval returns the parsed value or zero when unset. Values have
// already been checked by Validate.
func interval(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, _ := time.ParseDuration(value)
	return d
}
