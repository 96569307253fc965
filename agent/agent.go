package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstehr/vimy/vimy-tactics/behavior"
	"github.com/nstehr/vimy/vimy-tactics/config"
	"github.com/nstehr/vimy/vimy-tactics/influence"
	"github.com/nstehr/vimy/vimy-tactics/ipc"
	"github.com/nstehr/vimy/vimy-tactics/journal"
	"github.com/nstehr/vimy/vimy-tactics/model"
	"github.com/nstehr/vimy/vimy-tactics/scheduler"
	"github.com/nstehr/vimy/vimy-tactics/session"
	"github.com/nstehr/vimy/vimy-tactics/tactics"
	"github.com/nstehr/vimy/vimy-tactics/telemetry"
)

// Sender delivers a typed message to the mod.
type Sender interface {
	Send(msgType string, data any) error
}

// Options are shared by every agent the sidecar creates. Journal and Hub
// are optional.
type Options struct {
	Tuning  config.Tuning
	Library *behavior.Library
	Journal *journal.Journal
	Hub     *telemetry.Hub
	Worker  bool // forces the background worker on regardless of Tuning.Worker.Enabled
}

// Agent owns the tactical decision-making for a single player session.
type Agent struct {
	Conn    Sender
	Player  string
	Faction string

	ctx  context.Context
	opts Options

	session   *session.Session
	field     *influence.Field
	coord     *tactics.Coordinator
	org       *tactics.Organizer
	scheduler *scheduler.Scheduler
	stopWork  context.CancelFunc

	prev *stateSnapshot
}

func New(ctx context.Context, conn Sender, opts Options) *Agent {
	if opts.Library == nil {
		opts.Library = behavior.DefaultLibrary(opts.Tuning)
	}
	return &Agent{Conn: conn, ctx: ctx, opts: opts}
}

// Scheduler is nil until the hello handshake.
func (a *Agent) Scheduler() *scheduler.Scheduler { return a.scheduler }

// SessionID identifies this player session in the journal.
func (a *Agent) SessionID() string {
	if a.session == nil {
		return ""
	}
	return a.session.ID.String()
}

// Close stops the background worker, if any.
func (a *Agent) Close() {
	if a.stopWork != nil {
		a.stopWork()
		a.stopWork = nil
	}
}

// HandleHello sets up the tactical core for the player's map and completes
// the handshake so the mod knows the bridge is ready. A repeated hello
// starts a fresh session.
func (a *Agent) HandleHello(env ipc.Envelope) (*ipc.Envelope, error) {
	var hello ipc.HelloMessage
	if err := env.Decode(&hello); err != nil {
		return nil, err
	}
	if hello.MapWidth <= 0 || hello.MapHeight <= 0 {
		return nil, fmt.Errorf("hello from %q: invalid map size %dx%d", hello.Player, hello.MapWidth, hello.MapHeight)
	}

	a.Close()
	a.Player = hello.Player
	a.Faction = hello.Faction
	a.setup(hello)
	slog.Info("player identified", "player", a.Player, "faction", a.Faction,
		"map", fmt.Sprintf("%dx%d", hello.MapWidth, hello.MapHeight), "session", a.SessionID())

	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok"})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

func (a *Agent) setup(hello ipc.HelloMessage) {
	t := a.opts.Tuning
	a.session = session.New()
	a.field = influence.New(float64(hello.MapWidth), float64(hello.MapHeight), t.Field)

	terrain := hello.Terrain.TerrainGrid()
	if terrain != nil {
		a.field.SetTerrain(terrain)
	} else if hello.Terrain != nil {
		slog.Warn("terrain payload ignored", "player", hello.Player, "cols", hello.Terrain.Cols, "rows", hello.Terrain.Rows)
	}

	a.coord = tactics.NewCoordinator(t.Retreat, a.field)
	a.coord.SetPositions(a.analyze(terrain, hello.Resources))
	a.org = tactics.NewOrganizer(t.Formation, t.Roles)

	var opts []scheduler.Option
	if a.opts.Worker || t.Worker.Enabled {
		ctx, cancel := context.WithCancel(a.ctx)
		w := scheduler.NewLocalWorker(t)
		go w.Start(ctx)
		a.stopWork = cancel
		opts = append(opts, scheduler.WithWorker(w))
	}
	a.scheduler = scheduler.New(hello.Player, a.field, a.session, a.opts.Library, a.coord, a.org, t, opts...)
	a.prev = nil
}

// analyze returns the map's strategic positions, from the journal's cache
// when this map has been seen before.
func (a *Agent) analyze(terrain *model.TerrainGrid, resources []model.Vec2) []tactics.StrategicPosition {
	j := a.opts.Journal
	if j == nil {
		return tactics.AnalyzeMap(terrain, resources, a.opts.Tuning.Analysis)
	}

	key := journal.MapKey(terrain, resources)
	ps, ok, err := j.LoadAnalysis(key)
	if err != nil {
		slog.Warn("analysis cache unavailable", "map", key, "error", err)
	}
	if ok {
		slog.Info("map analysis loaded from cache", "map", key, "positions", len(ps))
		return ps
	}

	ps = tactics.AnalyzeMap(terrain, resources, a.opts.Tuning.Analysis)
	if err := j.SaveAnalysis(key, ps); err != nil {
		slog.Warn("failed to cache map analysis", "map", key, "error", err)
	}
	return ps
}

// HandleGameState runs one tactical pass and sends the resulting commands
// back to the mod.
func (a *Agent) HandleGameState(env ipc.Envelope) (*ipc.Envelope, error) {
	var gs model.GameState
	if err := env.Decode(&gs); err != nil {
		return nil, err
	}
	if a.scheduler == nil {
		return nil, fmt.Errorf("game state at tick %d before hello", gs.Tick)
	}
	if gs.Player == "" {
		gs.Player = a.Player
	}

	cmds := a.react(gs)
	cmds = append(cmds, a.scheduler.Tick(&gs)...)

	if len(cmds) > 0 {
		batch, err := toBatch(gs.Tick, a.Player, cmds)
		if err != nil {
			return nil, err
		}
		if err := a.Conn.Send(ipc.TypeCommands, batch); err != nil {
			return nil, fmt.Errorf("send commands: %w", err)
		}
		slog.Debug("commands sent", "player", a.Player, "tick", gs.Tick, "count", len(cmds))
		if a.opts.Journal != nil {
			if err := a.opts.Journal.Record(a.SessionID(), gs.Tick, cmds); err != nil {
				slog.Error("journal write failed", "player", a.Player, "tick", gs.Tick, "error", err)
			}
		}
	}

	if a.opts.Hub != nil {
		a.opts.Hub.Publish(a.report(&gs))
	}

	ack, err := ipc.NewEnvelope(ipc.TypeAck, ipc.AckMessage{Status: "ok"})
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// react turns lifecycle events into scheduler cleanup and, when the army
// has been mauled, a group retreat.
func (a *Agent) react(gs model.GameState) []scheduler.Command {
	events := detectEvents(gs, a.prev)
	snap := takeSnapshot(gs)
	a.prev = &snap

	var out []scheduler.Command
	for _, e := range events {
		switch e.Kind {
		case EventUnitLost:
			for _, id := range e.IDs {
				a.scheduler.OnUnitRemoved(id)
			}
			slog.Debug("game event", "player", a.Player, "event", e.String())
			continue
		case EventArmyDevastated:
			out = append(out, a.scheduler.ForceRetreat(&gs)...)
		case EventCriticalBuildingLost:
			a.session.Invalidate(a.Player)
		}
		slog.Info("game event", "player", a.Player, "event", e.String())
	}
	return out
}

func (a *Agent) report(gs *model.GameState) telemetry.Report {
	var members []model.Unit
	for _, u := range gs.Units {
		if u.Alive() && !u.Worker {
			members = append(members, u)
		}
	}
	r := telemetry.Report{
		Player: a.Player,
		Tick:   gs.Tick,
		Stats:  a.scheduler.Stats(),
		Group:  a.coord.GroupStatus(a.Player, members),
		Orders: a.coord.Orders(a.Player),
	}
	if p, ok := a.coord.Rally(a.Player); ok {
		r.Rally = &p
	}
	if g, ok := a.org.Group(a.Player); ok {
		r.Army = g
	}
	// The grid only changes when the field is rebuilt.
	if a.field.LastUpdate() == gs.Tick {
		grid := a.field.Snapshot()
		r.Field = &grid
	}
	return r
}
