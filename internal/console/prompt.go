package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type promptValidator func(string) (bool, string)

type promptConfig struct {
	tries     int
	validator promptValidator
}

type promptOption func(*promptConfig)

func withValidator(v promptValidator) promptOption {
	return func(cfg *promptConfig) {
		cfg.validator = v
	}
}

func withMaxTries(i int) promptOption {
	return func(cfg *promptConfig) {
		cfg.tries = i
	}
}

// prompter reads lines from a remote console session. The buffered reader
// lives as long as the session so typed-ahead input is kept.
type prompter struct {
	rw io.ReadWriter
	br *bufio.Reader
}

func newPrompter(rw io.ReadWriter) *prompter {
	return &prompter{rw: rw, br: bufio.NewReader(rw)}
}

func (p *prompter) write(s string) error {
	_, err := io.WriteString(p.rw, s)
	return err
}

func (p *prompter) prompt(prompt string, opts ...promptOption) (string, error) {
	config := &promptConfig{}
	for _, opt := range opts {
		opt(config)
	}

	tries := 0
	for {
		if err := p.write(prompt); err != nil {
			return "", err
		}

		input, err := p.br.ReadString('\n')
		if err != nil && (err != io.EOF || input == "") {
			return "", err
		}
		input = strings.TrimRight(input, "\r\n")

		if config.validator != nil {
			ok, msg := config.validator(input)
			if !ok {
				if err := p.write(msg); err != nil {
					return "", err
				}

				tries++
				if config.tries > 0 && config.tries == tries {
					_ = p.write("Too many tries.\n")
					return "", fmt.Errorf("too many tries")
				}

				continue
			}
		}

		return input, nil
	}
}
