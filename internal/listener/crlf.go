package listener

import (
	"bytes"
	"io"
)

// lineConn translates between the console's \n lines and a terminal's
// line endings. Input accepts \r\n (telnet), a bare \r (ssh pty) and the
// telnet \r\x00 pair. Output turns every \n into \r\n.
type lineConn struct {
	rw io.ReadWriter
	// lastCR is set when the previous read ended on \r, so a \n or \x00
	// opening the next read belongs to the same line ending.
	lastCR bool
}

func newCRLFReadWriter(rw io.ReadWriter) io.ReadWriter {
	return &lineConn{rw: rw}
}

func (c *lineConn) Read(p []byte) (int, error) {
	for {
		n, err := c.rw.Read(p)
		out := 0
		for _, b := range p[:n] {
			switch {
			case c.lastCR && (b == '\n' || b == 0):
				c.lastCR = false
				continue
			case b == '\r':
				c.lastCR = true
				b = '\n'
			default:
				c.lastCR = false
			}
			p[out] = b
			out++
		}
		// A read made only of a swallowed line ending must not look like EOF.
		if out == 0 && n > 0 && err == nil {
			continue
		}
		return out, err
	}
}

func (c *lineConn) Write(p []byte) (int, error) {
	if _, err := c.rw.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
