package logic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pixil98/go-tundra/internal/console"
)

// Commands returns the operator commands that drive this Logic.
func (l *Logic) Commands() []*console.Command {
	return []*console.Command{
		{
			Name:        "startserver",
			Description: "Starts a server. The port defaults to 2345 and the protocol to the default transport.",
			Inputs: []console.InputSpec{
				{Name: "port", Type: console.InputTypeNumber},
				{Name: "protocol", Type: console.InputTypeString},
			},
			Run: l.cmdStartServer,
		},
		{
			Name:        "stopserver",
			Description: "Stops the server and drops every user.",
			Run:         l.cmdStopServer,
		},
		{
			Name:        "connect",
			Description: "Connects to a server and logs in.",
			Inputs: []console.InputSpec{
				{Name: "address", Type: console.InputTypeString, Required: true},
				{Name: "port", Type: console.InputTypeNumber},
				{Name: "username", Type: console.InputTypeString},
				{Name: "password", Type: console.InputTypeString},
				{Name: "protocol", Type: console.InputTypeString},
			},
			Run: l.cmdConnect,
		},
		{
			Name:        "disconnect",
			Description: "Logs out of the server.",
			Run:         l.cmdDisconnect,
		},
		{
			Name:        "savescene",
			Description: "Saves the scene to a file (.json, .yaml, optionally .zst) or under a name in the scene store.",
			Inputs:      []console.InputSpec{{Name: "target", Type: console.InputTypeString, Required: true}},
			Run:         l.cmdSaveScene,
		},
		{
			Name:        "loadscene",
			Description: "Replaces the scene with a saved file or a named scene from the scene store.",
			Inputs:      []console.InputSpec{{Name: "target", Type: console.InputTypeString, Required: true}},
			Run:         l.cmdLoadScene,
		},
		{
			Name:        "scenes",
			Description: "Lists the scenes in the scene store.",
			Run:         l.cmdScenes,
		},
		{
			Name:        "syncperiod",
			Description: "Shows or sets the replication period in milliseconds.",
			Inputs:      []console.InputSpec{{Name: "ms", Type: console.InputTypeNumber}},
			Run:         l.cmdSyncPeriod,
		},
		{
			Name:        "status",
			Description: "Shows the scene, server and client state.",
			Run:         l.cmdStatus,
		},
	}
}

func portInput(in console.Inputs) (uint16, error) {
	n, ok := in.Number("port")
	if !ok {
		return 0, nil
	}
	if n <= 0 || n > math.MaxUint16 {
		return 0, console.Userf("Port %d is out of range.", n)
	}
	return uint16(n), nil
}

func (l *Logic) cmdStartServer(ctx context.Context, in console.Inputs) (string, error) {
	port, err := portInput(in)
	if err != nil {
		return "", err
	}
	if l.server.IsRunning() {
		return "", console.Userf("Server already running on port %d.", l.net.ServerPort())
	}
	if err := l.StartServer(ctx, port, in.String("protocol")); err != nil {
		return "", err
	}
	return fmt.Sprintf("Server started on port %d (%s).", l.net.ServerPort(), strings.ToUpper(l.net.ServerTransport())), nil
}

func (l *Logic) cmdStopServer(ctx context.Context, _ console.Inputs) (string, error) {
	if !l.server.IsRunning() {
		return "", console.Userf("Server is not running.")
	}
	l.StopServer(ctx)
	return "Server stopped.", nil
}

func (l *Logic) cmdConnect(ctx context.Context, in console.Inputs) (string, error) {
	port, err := portInput(in)
	if err != nil {
		return "", err
	}
	err = l.Connect(ctx, in.String("address"), port, in.String("username"), in.String("password"), in.String("protocol"))
	if err != nil {
		return "", console.Userf("Cannot connect: %s.", err)
	}
	target, _ := l.net.Target()
	return fmt.Sprintf("Connecting to %s.", target), nil
}

func (l *Logic) cmdDisconnect(ctx context.Context, _ console.Inputs) (string, error) {
	l.Disconnect(ctx)
	return "Disconnected.", nil
}

func (l *Logic) cmdSaveScene(ctx context.Context, in console.Inputs) (string, error) {
	target := in.String("target")
	if err := l.SaveScene(ctx, target); err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved %d entities to %s.", l.scene.Len(), target), nil
}

func (l *Logic) cmdLoadScene(ctx context.Context, in console.Inputs) (string, error) {
	target := in.String("target")
	n, err := l.LoadScene(ctx, target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Loaded %d entities from %s.", n, target), nil
}

func (l *Logic) cmdScenes(context.Context, console.Inputs) (string, error) {
	if l.scenes == nil {
		return "", console.Userf("No scene store is configured.")
	}
	ids := l.scenes.Ids()
	if len(ids) == 0 {
		return "No saved scenes.", nil
	}
	return "Saved scenes: " + strings.Join(ids, ", "), nil
}

func (l *Logic) cmdSyncPeriod(_ context.Context, in console.Inputs) (string, error) {
	if ms, ok := in.Number("ms"); ok {
		if ms <= 0 {
			return "", console.Userf("The period must be positive.")
		}
		l.sync.SetUpdatePeriod(time.Duration(ms) * time.Millisecond)
	}
	return fmt.Sprintf("Sync period is %s.", l.sync.UpdatePeriod()), nil
}

func (l *Logic) cmdStatus(context.Context, console.Inputs) (string, error) {
	return console.ExpandTemplate(statusTemplate, l.Status())
}
