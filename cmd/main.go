package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `bazed - terminal frontend for the bazed editing backend

Usage:
  bazed <command> [options]

Commands:
  connect              Connect to the backend and render open views
  init                 Write a default config file
  trace list           List recorded trace sessions
  trace show <id>      Print the frames of a trace session
  version              Print the version
Run 'bazed <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "connect":
		return runConnect(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "trace":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: bazed trace <list|show>")
			return 1
		}
		switch args[2] {
		case "list":
			return runTraceList(args[3:], stdout, stderr)
		case "show":
			return runTraceShow(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown trace command: %s\n", args[2])
			return 1
		}
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "bazed %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
