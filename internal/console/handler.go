package console

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Handler dispatches console lines to registered commands.
type Handler struct {
	commands map[string]*Command
}

// NewHandler returns a Handler with the built-in help command registered.
func NewHandler() *Handler {
	h := &Handler{
		commands: make(map[string]*Command),
	}
	_ = h.Register(&Command{
		Name:        "help",
		Description: "Lists the console commands, or describes one of them.",
		Inputs:      []InputSpec{{Name: "command", Type: InputTypeString}},
		Run:         h.help,
	})
	return h
}

// Register adds commands. Names are case-insensitive and must be unique.
func (h *Handler) Register(cmds ...*Command) error {
	for _, cmd := range cmds {
		if cmd == nil {
			return fmt.Errorf("command cannot be nil")
		}
		if err := cmd.Validate(); err != nil {
			return fmt.Errorf("validating command: %w", err)
		}
		name := strings.ToLower(cmd.Name)
		if _, exists := h.commands[name]; exists {
			return fmt.Errorf("command %q already registered", name)
		}
		h.commands[name] = cmd
	}
	return nil
}

// Commands returns the registered commands sorted by name.
func (h *Handler) Commands() []*Command {
	cmds := make([]*Command, 0, len(h.commands))
	for _, c := range h.commands {
		cmds = append(cmds, c)
	}
	slices.SortFunc(cmds, func(a, b *Command) int {
		return strings.Compare(a.Name, b.Name)
	})
	return cmds
}

// Exec parses and runs a single console line. Blank lines do nothing.
func (h *Handler) Exec(ctx context.Context, line string) (string, error) {
	name, args, err := ParseLine(line)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", nil
	}

	cmd, ok := h.commands[strings.ToLower(name)]
	if !ok {
		return "", Userf("Unknown command: %s", name)
	}

	in, err := cmd.parse(args)
	if err != nil {
		return "", err
	}
	return cmd.Run(ctx, in)
}

// ParseLine splits a console line into a command name and its arguments.
// Both "connect localhost 2345" and "connect(localhost, 2345)" are
// accepted.
func ParseLine(line string) (string, []string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, nil
	}

	open := strings.IndexByte(line, '(')
	if open < 0 {
		fields := strings.Fields(line)
		return fields[0], fields[1:], nil
	}

	if !strings.HasSuffix(line, ")") {
		return "", nil, Userf("Missing closing parenthesis.")
	}
	name := strings.TrimSpace(line[:open])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", nil, Userf("Malformed command: %s", line)
	}

	var args []string
	for _, a := range strings.Split(line[open+1:len(line)-1], ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return name, args, nil
}

func (h *Handler) help(_ context.Context, in Inputs) (string, error) {
	if name := in.String("command"); name != "" {
		cmd, ok := h.commands[strings.ToLower(name)]
		if !ok {
			return "", Userf("Command %q is unknown.", name)
		}
		return wrap(fmt.Sprintf("%s: %s\nUsage: %s", cmd.Name, cmd.Description, cmd.Usage())), nil
	}

	lines := []string{"Available commands:"}
	for _, cmd := range h.Commands() {
		lines = append(lines, fmt.Sprintf("  %-12s %s", cmd.Name, cmd.Description))
	}
	return wrap(strings.Join(lines, "\n")), nil
}
