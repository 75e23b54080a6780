package main

import (
	"fmt"
	"os"

	"github.com/xiaot623/thirdeye/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if cli.IsViolation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
