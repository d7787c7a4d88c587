package console

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/muesli/reflow/wordwrap"
)

const DefaultWidth = 80

var templateFuncs = sprig.TxtFuncMap()

// wrap word-wraps text to DefaultWidth, preserving ANSI escape sequences.
func wrap(text string) string {
	return wordwrap.String(text, DefaultWidth)
}

// ExpandTemplate renders tmplStr against data with the sprig function set
// and wraps the result for the console.
func ExpandTemplate(tmplStr string, data any) (string, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return wrap(buf.String()), nil
}
