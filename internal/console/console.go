package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const Prompt = "> "

type Console struct {
	handler  *Handler
	queue    *Queue
	out      io.Writer
	password string
	banner   string
}

type ConsoleOpt func(*Console)

// WithOutput sets where results of lines pushed without a reply go.
func WithOutput(w io.Writer) ConsoleOpt {
	return func(c *Console) {
		c.out = w
	}
}

func WithQueueSize(n int) ConsoleOpt {
	return func(c *Console) {
		c.queue = NewQueue(n)
	}
}

// WithPassword makes remote sessions ask for a password first.
func WithPassword(p string) ConsoleOpt {
	return func(c *Console) {
		c.password = p
	}
}

func WithBanner(b string) ConsoleOpt {
	return func(c *Console) {
		c.banner = b
	}
}

func New(h *Handler, opts ...ConsoleOpt) *Console {
	c := &Console{
		handler: h,
		queue:   NewQueue(DefaultQueueSize),
		out:     os.Stdout,
		banner:  "Type 'help' for a list of commands.",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) Handler() *Handler {
	return c.handler
}

// Push queues a line whose result is written to the console output.
func (c *Console) Push(line string) error {
	return c.queue.Push(Request{Line: line})
}

// Submit queues a line and waits until a tick has run it.
func (c *Console) Submit(ctx context.Context, line string) (string, error) {
	reply := make(chan string, 1)
	if err := c.queue.Push(Request{Line: line, reply: reply}); err != nil {
		return "", err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Tick runs every queued line on the calling goroutine.
func (c *Console) Tick(ctx context.Context) error {
	for _, r := range c.queue.Drain() {
		out := c.Exec(ctx, r.Line)
		if r.reply != nil {
			r.reply <- out
			continue
		}
		if out != "" {
			if _, err := fmt.Fprintln(c.out, out); err != nil {
				slog.WarnContext(ctx, "writing console output", "error", err)
			}
		}
	}
	return nil
}

// Exec runs line immediately and renders any error for the operator.
func (c *Console) Exec(ctx context.Context, line string) string {
	out, err := c.handler.Exec(ctx, line)
	if err == nil {
		return out
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return string(userErr)
	}
	slog.WarnContext(ctx, "console command failed", "line", line, "error", err)
	return fmt.Sprintf("Error: %s", err)
}

// RunSession serves a remote console over rw until the peer quits or ctx
// ends.
func (c *Console) RunSession(ctx context.Context, rw io.ReadWriter) error {
	p := newPrompter(rw)

	if c.password != "" {
		_, err := p.prompt("Password: ", withMaxTries(3), withValidator(func(s string) (bool, string) {
			return s == c.password, "Wrong password.\n"
		}))
		if err != nil {
			return fmt.Errorf("authenticating console session: %w", err)
		}
	}

	if c.banner != "" {
		if err := p.write(c.banner + "\n"); err != nil {
			return err
		}
	}

	for {
		line, err := p.prompt(Prompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading console input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			continue
		case "quit", "exit":
			return p.write("Bye.\n")
		}

		out, err := c.Submit(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			out = fmt.Sprintf("Error: %s", err)
		}
		if out != "" {
			if err := p.write(out + "\n"); err != nil {
				return err
			}
		}
	}
}
