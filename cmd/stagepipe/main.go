package main

import (
	"errors"
	"os"
	"strings"

	"github.com/davidroman0O/stagepipe/internal/cli"
)

type exitCoder interface {
	ExitCode() int
}

func main() {
	if err := cli.Execute(os.Args[1:]); err != nil {
		// Print a short, single-line error to stderr on failures.
		msg := strings.Join(strings.Fields(err.Error()), " ")
		if msg == "" {
			msg = "error"
		}
		_, _ = os.Stderr.WriteString(msg + "\n")
		code := 1
		var ec exitCoder
		if errors.As(err, &ec) {
			if c := ec.ExitCode(); c != 0 {
				code = c
			}
		}
		os.Exit(code)
	}
}
