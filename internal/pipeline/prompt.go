package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter asks on a terminal. When In is not a terminal every
// question is answered "no".
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalPrompter prompts on stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) Confirm(question string) (bool, error) {
	if p.In == nil || !term.IsTerminal(int(p.In.Fd())) {
		return false, nil
	}
	return confirm(p.In, p.Out, question)
}

// confirm writes question and reads answers until one is yes or no. An
// empty answer or end of input means no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	r := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [y/N] ", question)
		line, err := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			if err != nil && err != io.EOF {
				return false, err
			}
			return false, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}
