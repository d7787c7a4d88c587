package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// InputType represents the type of a command input parameter.
type InputType string

const (
	InputTypeString InputType = "string" // Single word unless Rest is set
	InputTypeNumber InputType = "number" // Integer
)

// InputSpec describes one positional command argument.
type InputSpec struct {
	Name     string
	Type     InputType
	Required bool
	Rest     bool // If true, captures all remaining input
}

// Inputs holds parsed arguments by input name. Numbers are stored as int
// and everything else as string.
type Inputs map[string]any

func (in Inputs) String(name string) string {
	s, _ := in[name].(string)
	return s
}

func (in Inputs) Number(name string) (int, bool) {
	n, ok := in[name].(int)
	return n, ok
}

// CommandFunc runs a command and returns the text shown to the operator.
type CommandFunc func(ctx context.Context, in Inputs) (string, error)

type Command struct {
	Name        string
	Description string
	Inputs      []InputSpec
	Run         CommandFunc
}

func (c *Command) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("command name not set")
	}
	if strings.ContainsAny(c.Name, " \t(),") {
		return fmt.Errorf("command name %q contains separators", c.Name)
	}
	if c.Run == nil {
		return fmt.Errorf("command %q has no function", c.Name)
	}

	seen := make(map[string]bool, len(c.Inputs))
	optional := false
	for i, input := range c.Inputs {
		if input.Name == "" {
			return fmt.Errorf("input %d: name is required", i)
		}
		if seen[input.Name] {
			return fmt.Errorf("input %q: declared twice", input.Name)
		}
		seen[input.Name] = true

		switch input.Type {
		case InputTypeString, InputTypeNumber:
		default:
			return fmt.Errorf("input %q: unknown type %q", input.Name, input.Type)
		}
		// Only the last input can have rest=true
		if input.Rest && i != len(c.Inputs)-1 {
			return fmt.Errorf("input %q: only the last input can have rest=true", input.Name)
		}
		if input.Required && optional {
			return fmt.Errorf("input %q: required input follows an optional one", input.Name)
		}
		optional = optional || !input.Required
	}

	return nil
}

// Usage renders the command line form, e.g. "connect <address> [port]".
func (c *Command) Usage() string {
	parts := []string{c.Name}
	for _, input := range c.Inputs {
		if input.Required {
			parts = append(parts, fmt.Sprintf("<%s>", input.Name))
		} else {
			parts = append(parts, fmt.Sprintf("[%s]", input.Name))
		}
	}
	return strings.Join(parts, " ")
}

func (c *Command) parse(args []string) (Inputs, error) {
	in := make(Inputs, len(c.Inputs))
	used := 0
	for i, spec := range c.Inputs {
		if i >= len(args) {
			if spec.Required {
				return nil, Userf("Usage: %s", c.Usage())
			}
			continue
		}

		raw := args[i]
		used = i + 1
		if spec.Rest {
			raw = strings.Join(args[i:], " ")
			used = len(args)
		}

		switch spec.Type {
		case InputTypeNumber:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, Userf("%s must be a number, got %q.", spec.Name, raw)
			}
			in[spec.Name] = n
		default:
			in[spec.Name] = raw
		}
	}

	if used < len(args) {
		return nil, Userf("Usage: %s", c.Usage())
	}
	return in, nil
}
