package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pixil98/go-service"
	"github.com/pixil98/go-tundra/internal/console"
	"github.com/pixil98/go-tundra/internal/driver"
	"github.com/pixil98/go-tundra/internal/logic"
	"github.com/pixil98/go-tundra/internal/messaging"
	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/replication"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Network
	transports, err := cfg.Transports.BuildTransportSet()
	if err != nil {
		return nil, fmt.Errorf("creating transports: %w", err)
	}
	net, err := network.NewManager(transports, network.WithDefaultTransport(cfg.Transports.defaultName()))
	if err != nil {
		return nil, fmt.Errorf("creating network manager: %w", err)
	}

	// Scene and sessions
	scenes, err := cfg.Storage.BuildSceneStore()
	if err != nil {
		return nil, fmt.Errorf("creating scene store: %w", err)
	}
	opts := []logic.LogicOpt{
		logic.WithStartup(logic.Startup{
			Scene:          cfg.Storage.StartupScene,
			Server:         cfg.Server.Autostart,
			ServerPort:     cfg.Server.Port,
			ServerProtocol: cfg.Server.Protocol,
			LoginURL:       cfg.Client.LoginURL,
		}),
	}
	if scenes != nil {
		opts = append(opts, logic.WithSceneStore(scenes))
	}
	if d := interval(cfg.SyncInterval); d > 0 {
		opts = append(opts, logic.WithSyncOptions(replication.WithUpdatePeriod(d)))
	}
	opts = append(opts, cfg.Server.logicOpts()...)

	l, err := logic.New(net, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating logic: %w", err)
	}

	// Console
	handler := console.NewHandler()
	if err := handler.Register(l.Commands()...); err != nil {
		return nil, fmt.Errorf("registering console commands: %w", err)
	}
	con := cfg.Console.BuildConsole(handler)

	listeners, err := cfg.Console.BuildListeners(con)
	if err != nil {
		return nil, err
	}

	// Setup the driver
	var driverOpts []driver.DriverOpt
	if d := interval(cfg.TickInterval); d > 0 {
		driverOpts = append(driverOpts, driver.WithTickLength(d))
	}
	drv, err := driver.NewDriver([]driver.Manager{con, l}, driverOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	workers := service.WorkerList{
		"driver":    drv,
		"listeners": &listeners,
	}
	if cfg.Console.Stdin {
		workers["stdin"] = console.NewReader(os.Stdin, con)
	}

	// Events and remote console over nats
	if cfg.Nats.Enabled {
		ns, err := cfg.Nats.buildNatsServer()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}

		prefix := cfg.Nats.subjectPrefix()
		pub := messaging.NewEventPublisher(ns, messaging.WithSubjectPrefix(prefix))
		l.Observe(pub)
		net.AddObserver(pub.NetworkObserver())

		err = ns.Respond(prefix+".console", func(ctx context.Context, data []byte) []byte {
			out, err := con.Submit(ctx, string(data))
			if err != nil {
				slog.WarnContext(ctx, "running console request", "error", err)
				return []byte("Error: " + err.Error())
			}
			return []byte(out)
		})
		if err != nil {
			return nil, fmt.Errorf("registering console responder: %w", err)
		}

		workers["nats"] = ns
	}

	return workers, nil
}
