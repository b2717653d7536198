package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers line by line. Passwords are masked when the input
// is a terminal.
type prompter struct {
	sc  *bufio.Scanner
	out io.Writer
	fd  int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{sc: bufio.NewScanner(in), out: out, fd: fd}
}

// line prints prompt and returns the next trimmed line. ok is false at end
// of input.
func (p *prompter) line(prompt string) (s string, ok bool) {
	fmt.Fprint(p.out, prompt)
	if !p.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.sc.Text()), true
}

func (p *prompter) id(prompt string) (int64, bool) {
	s, ok := p.line(prompt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Fprintf(p.out, "Invalid ID: %s\n", s)
		return 0, false
	}
	return id, true
}

// password reads a password with masking
func (p *prompter) password(prompt string) (string, error) {
	if p.fd < 0 {
		s, ok := p.line(prompt)
		if !ok {
			return "", io.ErrUnexpectedEOF
		}
		return s, nil
	}
	fmt.Fprint(p.out, prompt)
	bytePassword, err := term.ReadPassword(p.fd)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(p.out) // newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}
