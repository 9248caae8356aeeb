// Package prompt asks the operator questions on the terminal.
//
// When standard input is not a terminal (cloud-init, CI, a pipe from
// another script) every question resolves to its default without reading,
// so unattended runs never block.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/primezdev/ovnode-setup/internal/model"
)

// Prompter reads answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// Interactive is false when answers cannot be read; questions then
	// return their defaults.
	Interactive bool
}

// New creates a Prompter reading from in and writing questions to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:          bufio.NewReader(in),
		out:         out,
		Interactive: IsTerminal(in),
	}
}

// IsTerminal reports whether r is a terminal file descriptor.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Ask prints question and returns the trimmed answer, or def when the
// answer is empty. End of input before any answer cancels the operation.
func (p *Prompter) Ask(question, def string) (string, error) {
	if !p.Interactive {
		return def, nil
	}
	if def != "" {
		fmt.Fprintf(p.out, "%s (default %s): ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", model.NewCLIError(model.ExitUserCancelled, "input closed")
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question. Only "y" and "yes" (any case) count as
// yes; an empty answer returns def.
func (p *Prompter) Confirm(question string, def bool) (bool, error) {
	if !p.Interactive {
		return def, nil
	}
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	fmt.Fprintf(p.out, "%s (%s): ", question, hint)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return false, model.NewCLIError(model.ExitUserCancelled, "input closed")
		}
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Pause waits for Enter. It returns immediately when not interactive.
func (p *Prompter) Pause(message string) {
	if !p.Interactive {
		return
	}
	fmt.Fprint(p.out, message)
	_, _ = p.in.ReadString('\n')
}
