package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bazed/frontend/internal/config"
	"github.com/bazed/frontend/internal/storage"
)

// formatDuration formats a duration in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// resolveTracePath picks the journal: the flag, then the config file, then
// ~/.bazed/trace.db.
func resolveTracePath(flagPath, configPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.TraceDB != "" {
		return cfg.TraceDB, nil
	}
	return config.DefaultTracePath()
}

func runTraceList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trace list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tracePath := fs.String("trace-db", "", "Trace journal (default: trace_db from config, then ~/.bazed/trace.db)")
	configPath := fs.String("config", "", "Path to config file (default: ~/.bazed/frontend.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bazed trace list [options]\n\nList recorded trace sessions.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	path, err := resolveTracePath(*tracePath, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No trace sessions found.")
		return 0
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open trace journal: %v\n", err)
		return 1
	}
	defer store.Close()

	sessions, err := store.ListSessions()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list trace sessions: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No trace sessions found.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tADDR\tSTARTED\tSTATUS\tFRAMES")
	fmt.Fprintln(w, "----------\t----\t-------\t------\t------")

	now := time.Now()
	for _, s := range sessions {
		n, err := store.CountFrames(s.ID)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to count frames: %v\n", err)
			return 1
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			s.ID,
			s.Addr,
			formatDuration(now.Sub(s.StartedAt)),
			s.Status,
			n,
		)
	}
	w.Flush()

	return 0
}

func runTraceShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trace show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tracePath := fs.String("trace-db", "", "Trace journal (default: trace_db from config, then ~/.bazed/trace.db)")
	configPath := fs.String("config", "", "Path to config file (default: ~/.bazed/frontend.toml)")
	limit := fs.Int("limit", 0, "Show only the most recent N frames (default: all)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bazed trace show [options] <session-id>\n\nPrint the frames of a trace session in order.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	sessionID := fs.Arg(0)

	path, err := resolveTracePath(*tracePath, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(stderr, "Error: trace journal %s does not exist\n", path)
		return 1
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open trace journal: %v\n", err)
		return 1
	}
	defer store.Close()

	if _, err := store.GetSession(sessionID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			fmt.Fprintf(stderr, "Error: trace session %s not found\n", sessionID)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	frames, err := store.ListFrames(sessionID, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list frames: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for _, f := range frames {
		method := f.Method
		if method == "" {
			method = "-"
		}
		if f.ErrorCode != "" {
			method += " !" + f.ErrorCode
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			f.RecordedAt.Format("15:04:05.000"),
			f.Direction,
			method,
			f.Payload,
		)
	}
	w.Flush()

	return 0
}
