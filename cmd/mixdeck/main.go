// Package main is the entry point for the mixdeck CLI.
package main

import (
	"os"

	"github.com/mixdeck-io/mixdeck/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
