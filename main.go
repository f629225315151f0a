package main

import (
	"fmt"
	"os"

	"github.com/SpiceLabsHQ/tfapi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// silentExitError has an empty message: the command already
		// reported the failure (e.g. as JSON on stdout).
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}
