// Package main is the entry point for the mixdeckd daemon.
package main

import (
	"os"

	"github.com/mixdeck-io/mixdeck/internal/daemon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
