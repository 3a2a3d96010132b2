package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/zsprackett/event-reserve/cmd"
)

const (
	exitCodeSuccess = iota
	exitCodeError
)

func main() {
	root := cmd.New()
	c, err := root.ExecuteC()
	if err == nil {
		os.Exit(exitCodeSuccess)
	}
	if cmdErr(err) {
		fmt.Fprintln(os.Stderr, strings.TrimSuffix(err.Error(), "\n"))
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, c.UsageString())
		os.Exit(exitCodeError)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(exitCodeError)
}

// cmdErr reports whether err came from bad command line usage.
func cmdErr(err error) bool {
	keywords := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"invalid argument",
	}
	cause := err.Error()
	for _, k := range keywords {
		if strings.Contains(cause, k) {
			return true
		}
	}
	return false
}
