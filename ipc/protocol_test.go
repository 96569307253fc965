package ipc

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/nstehr/vimy/vimy-tactics/model"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	env, err := NewEnvelope(TypeHello, HelloMessage{Player: "Multi0", Faction: "soviet", MapWidth: 128, MapHeight: 96})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteEnvelope(&buf, env); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf.Bytes()[:4]); int(got) != buf.Len()-4 {
		t.Errorf("length prefix = %d, want %d", got, buf.Len()-4)
	}

	back, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	var hello HelloMessage
	if err := back.Decode(&hello); err != nil {
		t.Fatal(err)
	}
	if back.Type != TypeHello || hello.Player != "Multi0" || hello.MapHeight != 96 {
		t.Errorf("decoded %s %+v", back.Type, hello)
	}
}

func TestReadEnvelopeRejectsBadFrames(t *testing.T) {
	frame := func(n uint32, payload []byte) *bytes.Buffer {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, n)
		b.Write(payload)
		return &b
	}
	tests := []struct {
		name string
		in   *bytes.Buffer
	}{
		{"empty", &bytes.Buffer{}},
		{"zero length", frame(0, nil)},
		{"oversized", frame(MaxFrame+1, nil)},
		{"truncated", frame(10, []byte(`{"ty`))},
		{"not json", frame(3, []byte(`abc`))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadEnvelope(tc.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTerrainGrid(t *testing.T) {
	td := &TerrainData{Cols: 2, Rows: 1, CellW: 4, CellH: 4, Grid: []int{0, 2}}
	g := td.TerrainGrid()
	if g == nil || g.At(1, 0) != model.Cliff || !g.Passable(0, 0) {
		t.Fatalf("TerrainGrid() = %+v", g)
	}
	if (&TerrainData{Cols: 3, Rows: 1, Grid: []int{0}}).TerrainGrid() != nil {
		t.Error("mismatched size should yield nil")
	}
	var missing *TerrainData
	if missing.TerrainGrid() != nil {
		t.Error("nil terrain should yield nil")
	}

	back := NewTerrainData(g)
	if back.Cols != 2 || back.CellW != 4 || back.Grid[1] != 2 {
		t.Errorf("NewTerrainData() = %+v", back)
	}
	if NewTerrainData(nil) != nil {
		t.Error("nil grid should yield nil")
	}
}

func TestCommandBatch(t *testing.T) {
	b := CommandBatch{Tick: 40, Player: "Multi0"}
	if err := b.Add(TypeMove, MoveCommand{Tick: 40, ActorID: 7, X: 3, Y: 4, Waypoints: []Point{PointOf(model.V(1.6, 2.4))}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(TypeAttack, AttackCommand{Tick: 40, ActorID: 7, TargetID: 9}); err != nil {
		t.Fatal(err)
	}
	var mv MoveCommand
	if err := b.Commands[0].Decode(&mv); err != nil {
		t.Fatal(err)
	}
	if len(b.Commands) != 2 || b.Commands[1].Type != TypeAttack || mv.Waypoints[0] != (Point{2, 2}) {
		t.Errorf("batch = %+v, move = %+v", b, mv)
	}
}

func TestConnectionReadLoop(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := NewConnection(server, nil)
	c.RegisterHandler(TypeHello, func(env Envelope) (*Envelope, error) {
		ack, err := NewEnvelope(TypeAck, AckMessage{Status: "ok"})
		return &ack, err
	})
	done := make(chan struct{})
	go func() {
		c.ReadLoop()
		close(done)
	}()

	client.SetDeadline(time.Now().Add(2 * time.Second))
	// Unknown types are skipped without a reply.
	unknown, _ := NewEnvelope("bogus", struct{}{})
	if err := WriteEnvelope(client, unknown); err != nil {
		t.Fatal(err)
	}
	hello, _ := NewEnvelope(TypeHello, HelloMessage{Player: "p"})
	if err := WriteEnvelope(client, hello); err != nil {
		t.Fatal(err)
	}
	resp, err := ReadEnvelope(client)
	if err != nil {
		t.Fatalf("reading ack: %v", err)
	}
	if resp.Type != TypeAck {
		t.Errorf("reply type = %s, want ack", resp.Type)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not exit after close")
	}
}
