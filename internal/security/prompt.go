package security

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrEmptyPassphrase is returned when the user enters nothing.
var ErrEmptyPassphrase = errors.New("empty passphrase")

// ReadPassphrase prompts on stderr and reads a passphrase from in without
// echo when in is a terminal. Otherwise it reads one line, so scripts can
// pipe the passphrase in.
func ReadPassphrase(in *os.File, prompt string) ([]byte, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		if len(b) == 0 {
			return nil, ErrEmptyPassphrase
		}
		return b, nil
	}
	return readLine(in)
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil, ErrEmptyPassphrase
	}
	return line, nil
}
