package tokens

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// Confirmer decides whether a proposed trim goes ahead
type Confirmer interface {
	Confirm(ctx context.Context, plan Plan) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, plan Plan) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, plan Plan) (bool, error) {
	return f(ctx, plan)
}

// FixedConfirmer answers every prompt the same way
type FixedConfirmer bool

func (f FixedConfirmer) Confirm(ctx context.Context, plan Plan) (bool, error) {
	return bool(f), nil
}

// ConsoleConfirmer asks the operator on the terminal. When input is not a
// terminal it declines without prompting.
type ConsoleConfirmer struct {
	in         *bufio.Reader
	out        io.Writer
	isTerminal func() bool
}

// NewConsoleConfirmer prompts on stdin and stdout
func NewConsoleConfirmer() *ConsoleConfirmer {
	return &ConsoleConfirmer{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// NewPromptConfirmer prompts on arbitrary streams, treating them as a
// terminal
func NewPromptConfirmer(in io.Reader, out io.Writer) *ConsoleConfirmer {
	return &ConsoleConfirmer{
		in:         bufio.NewReader(in),
		out:        out,
		isTerminal: func() bool { return true },
	}
}

// Confirm loops until the answer is yes or no. End of input declines.
func (c *ConsoleConfirmer) Confirm(ctx context.Context, plan Plan) (bool, error) {
	if !c.isTerminal() {
		ui.PrintWarning("Input is not a terminal; keeping the full export (use --yes to trim)")
		return false, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		fmt.Fprint(c.out, "\nRemove oldest posts automatically to fit limit? (y/n): ")
		line, err := c.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		fmt.Fprintln(c.out, "Please enter 'y' or 'n'")
	}
}
