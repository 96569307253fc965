// Command skirmish pits two AI players against each other on a generated
// map, driving the full tactical core headlessly through the same message
// handlers the sidecar uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nstehr/vimy/vimy-tactics/agent"
	"github.com/nstehr/vimy/vimy-tactics/behavior"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/journal"
	"github.com/nstehr/vimy/vimy-tactics/sandbox"
	"github.com/nstehr/vimy/vimy-tactics/telemetry"
)

// outbox collects what an agent would have sent to the mod.
type outbox struct {
	batches []ipc.CommandBatch
}

func (o *outbox) Send(msgType string, data any) error {
	b, ok := data.(ipc.CommandBatch)
	if !ok || msgType != ipc.TypeCommands {
		return fmt.Errorf("unexpected %s message", msgType)
	}
	o.batches = append(o.batches, b)
	return nil
}

type player struct {
	name  string
	agent *agent.Agent
	out   *outbox
}

func main() {
	var (
		ticks      = flag.Int("ticks", 3000, "maximum ticks to simulate")
		seed       = flag.Int64("seed", 1, "map seed")
		perSide    = flag.Int("units", 3, "units per type per player")
		configPath = flag.String("config", "", "tuning YAML (defaults when empty)")
		treesPath  = flag.String("trees", "", "behavior tree YAML merged over the defaults")
		dbPath     = flag.String("journal", "", "SQLite command journal (disabled when empty)")
		debugAddr  = flag.String("debug-addr", "", "serve the telemetry websocket on this address")
		worker     = flag.Bool("worker", false, "decide unit actions on background workers")
		pace       = flag.Duration("pace", 0, "wall-clock delay per tick, for watching over telemetry")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *ticks, *seed, *perSide, *configPath, *treesPath, *dbPath, *debugAddr, *worker, *pace); err != nil {
		slog.Error("skirmish failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, ticks int, seed int64, perSide int, configPath, treesPath, dbPath, debugAddr string, worker bool, pace time.Duration) error {
	tuning := config.Default()
	if configPath != "" {
		var err error
		if tuning, err = config.Load(configPath); err != nil {
			return err
		}
	}
	lib := behavior.DefaultLibrary(tuning)
	if treesPath != "" {
		custom, err := behavior.LoadLibrary(treesPath)
		if err != nil {
			return err
		}
		lib.Merge(custom)
	}

	opts := agent.Options{Tuning: tuning, Library: lib, Worker: worker}
	if dbPath != "" {
		j, err := journal.Open(dbPath)
		if err != nil {
			return err
		}
		defer j.Close()
		opts.Journal = j
	}
	if debugAddr != "" {
		hub := telemetry.NewHub()
		srv := &http.Server{Addr: debugAddr, Handler: hub}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("telemetry server failed", "addr", debugAddr, "error", err)
			}
		}()
		defer srv.Close()
		defer hub.Close()
		opts.Hub = hub
		slog.Info("telemetry listening", "addr", debugAddr)
	}

	scenario := sandbox.DefaultScenario(seed)
	scenario.PerSide = perSide
	world, err := scenario.Build()
	if err != nil {
		return err
	}

	var players []*player
	for _, name := range scenario.Players {
		out := &outbox{}
		a := agent.New(ctx, out, opts)
		defer a.Close()
		gs := world.Snapshot(name)
		hello, err := ipc.NewEnvelope(ipc.TypeHello, ipc.HelloMessage{
			Player:    name,
			Faction:   "skirmish",
			MapWidth:  gs.MapWidth,
			MapHeight: gs.MapHeight,
			Terrain:   ipc.NewTerrainData(world.Terrain()),
			Resources: world.Resources(),
		})
		if err != nil {
			return err
		}
		if _, err := a.HandleHello(hello); err != nil {
			return err
		}
		players = append(players, &player{name: name, agent: a, out: out})
	}

	start := time.Now()
	for world.Tick() < ticks {
		if ctx.Err() != nil {
			slog.Info("interrupted", "tick", world.Tick())
			break
		}
		for _, p := range players {
			env, err := ipc.NewEnvelope(ipc.TypeGameState, world.Snapshot(p.name))
			if err != nil {
				return err
			}
			if _, err := p.agent.HandleGameState(env); err != nil {
				return fmt.Errorf("%s at tick %d: %w", p.name, world.Tick(), err)
			}
			for _, b := range p.out.batches {
				if _, err := world.ApplyBatch(b); err != nil {
					return err
				}
			}
			p.out.batches = p.out.batches[:0]
		}
		world.Step()

		if winner, ok := world.Winner(); ok {
			slog.Info("battle decided", "winner", winner, "tick", world.Tick())
			break
		}
		if pace > 0 {
			time.Sleep(pace)
		}
	}

	summarize(world, players, time.Since(start))
	return nil
}

func summarize(world *sandbox.World, players []*player, elapsed time.Duration) {
	alive := world.Alive()
	fmt.Printf("\nskirmish finished after %d ticks (%s)\n\n", world.Tick(), elapsed.Round(time.Millisecond))
	fmt.Printf("%-10s %6s %8s %6s %6s %8s %6s %10s %8s\n",
		"player", "alive", "commands", "kites", "focus", "retreats", "forms", "transforms", "panics")
	for _, p := range players {
		st := p.agent.Scheduler().Stats()
		fmt.Printf("%-10s %6d %8d %6d %6d %8d %6d %10d %8d\n",
			p.name, alive[p.name], st.Commands, st.Kites, st.FocusSwitches, st.Retreats, st.Formations, st.Transforms, st.Panics)
		slog.Debug("scheduler stats", "player", p.name, "session", p.agent.SessionID(), "stats", st)
	}
}
