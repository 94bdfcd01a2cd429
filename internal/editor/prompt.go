// Package editor implements the line-oriented prompt loops that edit the
// configuration record in place. Callers persist the record afterwards.
package editor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter reads one line of operator input per prompt
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter wraps in and out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the trimmed reply. A final line without a
// newline is returned normally; io.EOF is only reported when nothing was read.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Prompter) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}
