package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
)

// Reader feeds lines from a blocking input such as stdin into the console.
// The read runs on its own goroutine so the tick goroutine never blocks on
// input.
type Reader struct {
	in      io.Reader
	console *Console
}

func NewReader(in io.Reader, c *Console) *Reader {
	return &Reader{in: in, console: c}
}

func (r *Reader) Start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- r.read(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil {
			slog.ErrorContext(ctx, "reading console input", "error", err)
		} else {
			slog.InfoContext(ctx, "console input closed")
		}
	}

	// A closed input leaves the process running.
	<-ctx.Done()
	return nil
}

func (r *Reader) read(ctx context.Context) error {
	sc := bufio.NewScanner(r.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.console.Push(sc.Text()); err != nil {
			slog.WarnContext(ctx, "dropping console line", "error", err)
		}
	}
	return sc.Err()
}
