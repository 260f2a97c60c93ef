package main

import (
	"os"

	"github.com/Iron-Ham/todohub/internal/cmd"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	// Cobra prints the error
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
