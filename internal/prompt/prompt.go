// Package prompt asks the operator questions on a terminal. Invalid answers
// are reported and the question is asked again.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoInput is returned when the input ends before a valid answer.
var ErrNoInput = errors.New("no answer, input closed")

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err == io.EOF {
		return "", ErrNoInput
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// YesNo asks until the answer is one of y, yes, n or no (any case).
func (p *Prompter) YesNo(question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s [yes/no]: ", question)
		answer, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Warning: Invalid input. Please enter 'yes' or 'no'.")
	}
}

// Row asks for a row number in [0, n). A non-nil accept can reject a row
// with a message; the question is then asked again.
func (p *Prompter) Row(question string, n int, accept func(int) error) (int, error) {
	if n <= 0 {
		return 0, errors.New("nothing to choose from")
	}
	for {
		fmt.Fprintf(p.out, "%s (from 0 to %d): ", question, n-1)
		answer, err := p.readLine()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			fmt.Fprintln(p.out, "Warning: Input cannot be empty. Please try again.")
			continue
		}
		row, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintln(p.out, "Warning: Invalid input. Please enter a valid row number.")
			continue
		}
		if row < 0 || row >= n {
			fmt.Fprintln(p.out, "Warning: Invalid image number. Please try again.")
			continue
		}
		if accept != nil {
			if err := accept(row); err != nil {
				fmt.Fprintf(p.out, "Warning: %v\n", err)
				continue
			}
		}
		return row, nil
	}
}
