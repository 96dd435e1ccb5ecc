// Package main is the entry point for the bookscout CLI.
package main

import (
	"os"

	"github.com/bookscout/bookscout/cmd/bookscout/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
