package main

import (
	"fmt"
	"os"

	"github.com/tphakala/voicetrigger/cmd"
	"github.com/tphakala/voicetrigger/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	build := buildinfo.NewContext(version, buildDate, "")

	rootCmd := cmd.RootCommand(build)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution error: %v\n", err)
		os.Exit(1)
	}
}
