package command

import (
	"slices"
	"testing"

	"github.com/pixil98/go-testutil"
	"github.com/pixil98/go-tundra/internal/scene"
)

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		config  Config
		wantErr string
	}{
		"empty config": {
			config: Config{},
		},
		"full config": {
			config: Config{
				TickInterval: "20ms",
				SyncInterval: "100ms",
				Server:       ServerConfig{Autostart: true, Port: 2345, Protocol: "quic"},
				Transports:   TransportsConfig{Default: "websocket", Quic: QuicConfig{KeepAlive: "5s"}},
				Console: ConsoleConfig{
					MaxSessions: 2,
					Listeners: []ListenerConfig{
						{Protocol: ListenerTypeTelnet, Port: 4000},
						{Protocol: ListenerTypeSSH, Port: 4001, Password: "secret"},
					},
				},
				Storage: StorageConfig{Scenes: AssetConfig[*scene.Document]{}},
				Nats:    NatsConfig{Enabled: true, Port: -1},
			},
		},
		"bad tick interval": {
			config:  Config{TickInterval: "soon"},
			wantErr: "parsing tick_interval",
		},
		"negative sync interval": {
			config:  Config{SyncInterval: "-1s"},
			wantErr: "sync_interval must be positive",
		},
		"unknown server protocol": {
			config:  Config{Server: ServerConfig{Protocol: "carrier-pigeon"}},
			wantErr: `server: unknown protocol "carrier-pigeon"`,
		},
		"autostart with login url": {
			config: Config{
				Server: ServerConfig{Autostart: true},
				Client: ClientConfig{LoginURL: "tundra://localhost:2345/?username=pat"},
			},
			wantErr: "cannot both be set",
		},
		"bad login url scheme": {
			config:  Config{Client: ClientConfig{LoginURL: "http://localhost"}},
			wantErr: "tundra:// scheme",
		},
		"quic cert without key": {
			config:  Config{Transports: TransportsConfig{Quic: QuicConfig{CertFile: "cert.pem"}}},
			wantErr: "cert_file and key_file must be set together",
		},
		"listener without port": {
			config:  Config{Console: ConsoleConfig{Listeners: []ListenerConfig{{Protocol: ListenerTypeTelnet}}}},
			wantErr: "console listener 0: port must be set",
		},
		"telnet listener with password": {
			config:  Config{Console: ConsoleConfig{Listeners: []ListenerConfig{{Protocol: ListenerTypeTelnet, Port: 23, Password: "x"}}}},
			wantErr: "only apply to ssh listeners",
		},
		"startup scene without store": {
			config:  Config{Storage: StorageConfig{StartupScene: "lobby"}},
			wantErr: "requires storage.scenes.path",
		},
		"missing scene directory": {
			config:  Config{Storage: StorageConfig{Scenes: AssetConfig[*scene.Document]{Path: "/does/not/exist"}}},
			wantErr: "invalid path",
		},
		"nats port out of range": {
			config:  Config{Nats: NatsConfig{Port: 70000}},
			wantErr: "out of range",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			testutil.AssertErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestListenerType_UnmarshalText(t *testing.T) {
	tests := map[string]struct {
		text    string
		want    ListenerType
		wantErr string
	}{
		"telnet":  {text: "telnet", want: ListenerTypeTelnet},
		"ssh":     {text: "ssh", want: ListenerTypeSSH},
		"unknown": {text: "gopher", wantErr: "unknown listener type: gopher"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var lt ListenerType
			err := lt.UnmarshalText([]byte(tt.text))
			if tt.wantErr != "" {
				testutil.AssertErrorContains(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "type", lt, tt.want)
		})
	}
}

func TestTransportsConfig_BuildTransportSet(t *testing.T) {
	c := TransportsConfig{Websocket: WebsocketConfig{Path: "/sync"}}

	set, err := c.BuildTransportSet()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := set.Names()
	if !slices.Equal(names, []string{"pipe", "quic", "tcp", "websocket"}) {
		t.Errorf("names = %v", names)
	}
	testutil.AssertEqual(t, "default", c.defaultName(), "tcp")
}
