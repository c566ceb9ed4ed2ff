package gh

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Outputs publishes step outputs. When GITHUB_OUTPUT is set (modern
// runners) values are appended to that file; otherwise the legacy
// ::set-output workflow command is printed.
type Outputs struct {
	path string
	out  io.Writer
}

// NewOutputs builds an Outputs bound to the current environment.
func NewOutputs() *Outputs {
	return &Outputs{path: os.Getenv("GITHUB_OUTPUT"), out: os.Stdout}
}

// NewFileOutputs builds an Outputs writing to an explicit file path,
// with legacy commands going to w. For tests.
func NewFileOutputs(path string, w io.Writer) *Outputs {
	return &Outputs{path: path, out: w}
}

// Set publishes one name=value output. Multiline values use the
// heredoc delimiter form required by the output file format.
func (o *Outputs) Set(name, value string) error {
	if o.path == "" {
		fmt.Fprintf(o.out, "::set-output name=%s::%s\n", name, value)
		return nil
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	if strings.Contains(value, "\n") {
		delim := "EOF_" + name
		_, err = fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
	} else {
		_, err = fmt.Fprintf(f, "%s=%s\n", name, value)
	}
	if err != nil {
		return fmt.Errorf("write output %s: %w", name, err)
	}
	return nil
}
