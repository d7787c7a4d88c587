package console

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

func echoCommand() *Command {
	return &Command{
		Name:        "connect",
		Description: "Connects somewhere.",
		Inputs: []InputSpec{
			{Name: "address", Type: InputTypeString, Required: true},
			{Name: "port", Type: InputTypeNumber},
			{Name: "note", Type: InputTypeString, Rest: true},
		},
		Run: func(_ context.Context, in Inputs) (string, error) {
			port, ok := in.Number("port")
			return fmt.Sprintf("%s|%d|%t|%s", in.String("address"), port, ok, in.String("note")), nil
		},
	}
}

func TestParseLine(t *testing.T) {
	tests := map[string]struct {
		line    string
		expName string
		expArgs []string
		expErr  string
	}{
		"blank":               {line: "   "},
		"words":               {line: "connect localhost 2345", expName: "connect", expArgs: []string{"localhost", "2345"}},
		"no args":             {line: "stopserver", expName: "stopserver"},
		"call syntax":         {line: "startserver(2345, tcp)", expName: "startserver", expArgs: []string{"2345", "tcp"}},
		"call without args":   {line: "disconnect()", expName: "disconnect"},
		"missing parenthesis": {line: "connect(localhost", expErr: "Missing closing parenthesis"},
		"malformed name":      {line: "bad name(1)", expErr: "Malformed command"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cmd, args, err := ParseLine(tt.line)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "name", cmd, tt.expName)
			if !slices.Equal(args, tt.expArgs) {
				t.Errorf("args: got %v, want %v", args, tt.expArgs)
			}
		})
	}
}

func TestHandler_Exec(t *testing.T) {
	tests := map[string]struct {
		line   string
		exp    string
		expErr string
	}{
		"required only":        {line: "connect example.org", exp: "example.org|0|false|"},
		"number":               {line: "connect example.org 2345", exp: "example.org|2345|true|"},
		"rest joins remaining": {line: "connect example.org 2345 hello there", exp: "example.org|2345|true|hello there"},
		"call syntax":          {line: "CONNECT(example.org, 7)", exp: "example.org|7|true|"},
		"blank line":           {line: ""},
		"missing required":     {line: "connect", expErr: "Usage: connect <address> [port] [note]"},
		"not a number":         {line: "connect example.org port", expErr: `port must be a number, got "port"`},
		"unknown command":      {line: "fly away", expErr: "Unknown command: fly"},
	}

	h := NewHandler()
	if err := h.Register(echoCommand()); err != nil {
		t.Fatalf("registering: %v", err)
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := h.Exec(context.Background(), tt.line)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "output", out, tt.exp)
		})
	}
}

func TestHandler_TooManyArguments(t *testing.T) {
	h := NewHandler()
	_ = h.Register(&Command{
		Name: "stopserver",
		Run:  func(context.Context, Inputs) (string, error) { return "stopped", nil },
	})

	_, err := h.Exec(context.Background(), "stopserver now")
	testutil.AssertErrorContains(t, err, "Usage: stopserver")
}

func TestHandler_Register(t *testing.T) {
	run := func(context.Context, Inputs) (string, error) { return "", nil }

	tests := map[string]struct {
		cmd    *Command
		expErr string
	}{
		"valid": {
			cmd: &Command{Name: "status", Run: run},
		},
		"nil": {
			expErr: "command cannot be nil",
		},
		"no name": {
			cmd:    &Command{Run: run},
			expErr: "command name not set",
		},
		"no function": {
			cmd:    &Command{Name: "status"},
			expErr: "has no function",
		},
		"duplicate of builtin": {
			cmd:    &Command{Name: "HELP", Run: run},
			expErr: `command "help" already registered`,
		},
		"unknown input type": {
			cmd:    &Command{Name: "x", Run: run, Inputs: []InputSpec{{Name: "a", Type: "bool"}}},
			expErr: `unknown type "bool"`,
		},
		"rest not last": {
			cmd: &Command{Name: "x", Run: run, Inputs: []InputSpec{
				{Name: "a", Type: InputTypeString, Rest: true},
				{Name: "b", Type: InputTypeString},
			}},
			expErr: "only the last input can have rest=true",
		},
		"required after optional": {
			cmd: &Command{Name: "x", Run: run, Inputs: []InputSpec{
				{Name: "a", Type: InputTypeString},
				{Name: "b", Type: InputTypeString, Required: true},
			}},
			expErr: "required input follows an optional one",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewHandler().Register(tt.cmd)
			if tt.expErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func TestHandler_Help(t *testing.T) {
	h := NewHandler()
	_ = h.Register(echoCommand())

	out, err := h.Exec(context.Background(), "help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "Available commands:") {
		t.Errorf("unexpected listing: %q", out)
	}
	if strings.Index(out, "connect") > strings.Index(out, "help") {
		t.Errorf("commands not sorted: %q", out)
	}

	out, err = h.Exec(context.Background(), "help connect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "detail", out, "connect: Connects somewhere.\nUsage: connect <address> [port] [note]")

	_, err = h.Exec(context.Background(), "help fly")
	testutil.AssertErrorContains(t, err, `Command "fly" is unknown.`)
}

func TestExpandTemplate(t *testing.T) {
	out, err := ExpandTemplate(`{{ .Name | upper }} has {{ len .Users }} users`, map[string]any{
		"Name":  "lobby",
		"Users": []int{1, 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "output", out, "LOBBY has 2 users")

	_, err = ExpandTemplate(`{{ .Name `, nil)
	testutil.AssertErrorContains(t, err, "parsing template")
}
