package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/bazed/frontend/internal/config"
	"github.com/bazed/frontend/internal/correlator"
	"github.com/bazed/frontend/internal/session"
	"github.com/bazed/frontend/internal/storage"
	"github.com/bazed/frontend/internal/transport"
	"github.com/bazed/frontend/internal/viewstate"
)

// ConnectConfig holds the command-line options of the connect command.
type ConnectConfig struct {
	Config           string
	Addr             string
	Path             string
	RequestTimeoutMs int
	Reconnect        string
	ViewHeight       int
	ViewWidth        int
	TraceDB          string
	LogLevel         string

	// Once exits after the first view has been rendered.
	Once bool
}

func runConnect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ConnectConfig{}
	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.bazed/frontend.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Backend address (default: 127.0.0.1:6969)")
	fs.StringVar(&cfg.Path, "path", "", "WebSocket endpoint path (default: /)")
	fs.IntVar(&cfg.RequestTimeoutMs, "request-timeout-ms", 0, "View open timeout in milliseconds (default: none)")
	fs.StringVar(&cfg.Reconnect, "reconnect", "", "Reconnect policy: none or exponential (default: none)")
	fs.IntVar(&cfg.ViewHeight, "view-height", 0, "Lines per opened view (default: 200)")
	fs.IntVar(&cfg.ViewWidth, "view-width", 0, "Columns per opened view (default: 40)")
	fs.StringVar(&cfg.TraceDB, "trace-db", "", "Record protocol frames to this SQLite file")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level: debug (adds source locations), info, or error (silences diagnostics) (default: info)")
	fs.BoolVar(&cfg.Once, "once", false, "Exit after the first view is rendered")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bazed connect [options]\n\nConnect to the backend, open a view for every document it announces,\nand print views as they change.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	merged := mergeConnectConfig(cfg, fileCfg, explicitFlags)
	merged.ApplyDefaults()
	if err := merged.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	applyLogLevel(merged.LogLevel, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return connect(ctx, merged, cfg.Once, stdout, stderr)
}

// mergeConnectConfig overlays command-line values on the file config.
// CLI flags take precedence; numeric flags override only when set.
func mergeConnectConfig(cli *ConnectConfig, file *config.Config, explicit map[string]bool) *config.Config {
	merged := *file
	if cli.Addr != "" {
		merged.Addr = cli.Addr
	}
	if cli.Path != "" {
		merged.Path = cli.Path
	}
	if explicit["request-timeout-ms"] {
		merged.RequestTimeoutMs = cli.RequestTimeoutMs
	}
	if cli.Reconnect != "" {
		merged.Reconnect = cli.Reconnect
	}
	if explicit["view-height"] {
		merged.ViewHeight = cli.ViewHeight
	}
	if explicit["view-width"] {
		merged.ViewWidth = cli.ViewWidth
	}
	if cli.TraceDB != "" {
		merged.TraceDB = cli.TraceDB
	}
	if cli.LogLevel != "" {
		merged.LogLevel = cli.LogLevel
	}
	return &merged
}

// applyLogLevel routes diagnostics to stderr. "debug" stamps each line with
// microseconds and its source location; "error" leaves only the errors the
// command itself prints.
func applyLogLevel(level string, stderr io.Writer) {
	switch level {
	case "error":
		log.SetOutput(io.Discard)
		return
	case "debug":
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	default:
		log.SetFlags(log.LstdFlags)
	}
	log.SetOutput(stderr)
}

func reconnectPolicy(cfg *config.Config) transport.ReconnectPolicy {
	if cfg.Reconnect == config.ReconnectExponential {
		initial, max, maxElapsed := cfg.ReconnectDelays()
		return transport.NewExponentialReconnect(initial, max, maxElapsed)
	}
	return transport.NoReconnect{}
}

func connect(ctx context.Context, cfg *config.Config, once bool, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := transport.NewManager(transport.Options{
		URL:       cfg.URL(),
		Reconnect: reconnectPolicy(cfg),
	})
	store := viewstate.NewStore()
	sess := session.NewClient(manager, store, correlator.New(cfg.RequestTimeout()))
	viewport := session.Viewport{Height: cfg.ViewHeight, Width: cfg.ViewWidth}
	sess.SetDefaultViewport(viewport)

	var journal *session.Journal
	if cfg.TraceDB != "" {
		trace, err := storage.NewSQLiteStore(cfg.TraceDB)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open trace journal: %v\n", err)
			return 1
		}
		defer trace.Close()

		journal, err = session.NewJournal(trace, ulid.Make().String(), cfg.Addr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to start trace: %v\n", err)
			return 1
		}
		sess.SetRecorder(journal)
	}
	endTrace := func(status session.Status) {
		if journal == nil {
			return
		}
		if err := journal.End(status); err != nil {
			log.Printf("trace: %v", err)
		}
	}

	r := newRenderer(stdout)
	if once {
		r.onView = cancel
	}
	opener := newAutoOpener(ctx, sess, viewport)
	unsubscribe := store.Subscribe(func(st viewstate.State) {
		opener.observe(st)
		r.render(st)
	})
	defer unsubscribe()

	if err := sess.Connect(ctx); err != nil {
		endTrace(session.StatusFailed)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Connected to %s\n", cfg.URL())

	err := sess.Serve(ctx)
	sess.Close()
	opener.wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		endTrace(session.StatusFailed)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	endTrace(session.StatusClosed)
	return 0
}

// autoOpener opens one view per document the backend announces.
type autoOpener struct {
	ctx      context.Context
	sess     *session.Session
	viewport session.Viewport

	mu        sync.Mutex
	requested map[string]bool
	wg        sync.WaitGroup
}

func newAutoOpener(ctx context.Context, sess *session.Session, vp session.Viewport) *autoOpener {
	return &autoOpener{
		ctx:       ctx,
		sess:      sess,
		viewport:  vp,
		requested: make(map[string]bool),
	}
}

// observe runs on the dispatch goroutine. OpenView waits for that goroutine,
// so requests are issued from their own goroutines.
func (o *autoOpener) observe(st viewstate.State) {
	viewed := make(map[string]bool, len(st.Views))
	for _, v := range st.Views {
		viewed[v.Document] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for id := range st.Documents {
		if viewed[id] || o.requested[id] {
			continue
		}
		o.requested[id] = true
		o.wg.Add(1)
		go func(documentID string) {
			defer o.wg.Done()
			if _, err := o.sess.OpenView(o.ctx, documentID, o.viewport); err != nil {
				log.Printf("connect: view for %s not opened: %v", documentID, err)
			}
		}(id)
	}
}

func (o *autoOpener) wait() {
	o.wg.Wait()
}
