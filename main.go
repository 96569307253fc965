package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nstehr/vimy/vimy-tactics/agent"
	"github.com/nstehr/vimy/vimy-tactics/behavior"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/journal"
	"github.com/nstehr/vimy/vimy-tactics/telemetry"
)

const banner = `
██╗   ██╗██╗███╗   ███╗██╗   ██╗
██║   ██║██║████╗ ████║╚██╗ ██╔╝
██║   ██║██║██╔████╔██║ ╚████╔╝
╚██╗ ██╔╝██║██║╚██╔╝██║  ╚██╔╝
 ╚████╔╝ ██║██║ ╚═╝ ██║   ██║
  ╚═══╝  ╚═╝╚═╝     ╚═╝   ╚═╝

Tactical Micro for RTS Armies`

func main() {
	var (
		socketPath = flag.String("socket", "/tmp/vimy.sock", "unix socket the mod connects to")
		configPath = flag.String("config", "", "tuning YAML (defaults when empty)")
		treesPath  = flag.String("trees", "", "behavior tree YAML merged over the defaults")
		dbPath     = flag.String("journal", "", "SQLite command journal (disabled when empty)")
		debugAddr  = flag.String("debug-addr", "", "serve the telemetry websocket on this address")
		worker     = flag.Bool("worker", false, "decide unit actions on background workers")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	fmt.Println(banner)

	slog.Info("starting vimy-tactics")

	opts, cleanup, err := setup(*configPath, *treesPath, *dbPath, *debugAddr, *worker)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Unix sockets leave behind a file on unclean shutdown; remove it so we can rebind.
	if err := os.RemoveAll(*socketPath); err != nil {
		slog.Error("failed to clean up socket", "path", *socketPath, "error", err)
		os.Exit(1)
	}

	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		slog.Error("failed to listen on socket", "path", *socketPath, "error", err)
		os.Exit(1)
	}
	defer listener.Close()
	defer os.Remove(*socketPath)

	slog.Info("listening on domain socket", "path", *socketPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					slog.Error("failed to accept connection", "error", err)
					continue
				}
			}
			slog.Info("new connection accepted")
			go handleConn(ctx, conn, opts)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// setup loads tuning and trees and opens the optional journal and debug
// feed. cleanup releases whatever was opened.
func setup(configPath, treesPath, dbPath, debugAddr string, worker bool) (agent.Options, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tuning := config.Default()
	if configPath != "" {
		var err error
		if tuning, err = config.Load(configPath); err != nil {
			return agent.Options{}, cleanup, err
		}
		slog.Info("tuning loaded", "path", configPath)
	}

	lib := behavior.DefaultLibrary(tuning)
	if treesPath != "" {
		custom, err := behavior.LoadLibrary(treesPath)
		if err != nil {
			return agent.Options{}, cleanup, err
		}
		lib.Merge(custom)
		slog.Info("behavior trees loaded", "path", treesPath, "trees", lib.Names())
	}

	opts := agent.Options{Tuning: tuning, Library: lib, Worker: worker}

	if dbPath != "" {
		j, err := journal.Open(dbPath)
		if err != nil {
			return agent.Options{}, cleanup, err
		}
		closers = append(closers, func() { j.Close() })
		opts.Journal = j
		slog.Info("journal opened", "path", dbPath)
	}

	if debugAddr != "" {
		hub := telemetry.NewHub()
		srv := &http.Server{Addr: debugAddr, Handler: hub}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("telemetry server failed", "addr", debugAddr, "error", err)
			}
		}()
		closers = append(closers, func() { srv.Close() }, func() { hub.Close() })
		opts.Hub = hub
		slog.Info("telemetry listening", "addr", debugAddr)
	}
	return opts, cleanup, nil
}

func handleConn(ctx context.Context, conn net.Conn, opts agent.Options) {
	c := ipc.NewConnection(conn, nil)
	a := agent.New(ctx, c, opts)
	defer a.Close()
	c.RegisterHandler(ipc.TypeHello, func(env ipc.Envelope) (*ipc.Envelope, error) {
		resp, err := a.HandleHello(env)
		if err == nil {
			c.Player = a.Player
		}
		return resp, err
	})
	c.RegisterHandler(ipc.TypeGameState, a.HandleGameState)
	c.ReadLoop()
}
